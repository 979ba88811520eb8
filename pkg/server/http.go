// Copyright 2026 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/sensorcap/pkg/frame"
	"github.com/livekit/sensorcap/pkg/pprof"
	"github.com/livekit/sensorcap/pkg/types"
)

const defaultSessionsLimit = 50

type Status struct {
	NodeID        string                  `json:"node_id"`
	GroupType     types.GroupType         `json:"group_type"`
	State         string                  `json:"state"`
	ActiveSensors []string                `json:"active_sensors"`
	Latest        map[string]*FrameStatus `json:"latest"`
	SessionID     string                  `json:"session_id,omitempty"`
	Terminating   bool                    `json:"terminating,omitempty"`
}

type FrameStatus struct {
	Timestamp frame.Timestamp `json:"timestamp"`
	Width     uint32          `json:"width"`
	Height    uint32          `json:"height"`
	Subtype   types.Subtype   `json:"subtype"`
	HasPose   bool            `json:"has_pose"`
}

type PoseUpdate struct {
	Timestamp      frame.Timestamp `json:"timestamp"`
	DeviceToOrigin frame.Float4x4  `json:"device_to_origin"`
}

func (s *Server) PromHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		s.registerer, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}),
	)
}

// Handler serves health checks, status and recording control.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/pose", s.handlePose)
	r.Route("/recording", func(r chi.Router) {
		r.Post("/start", s.handleStartRecording)
		r.Post("/stop", s.handleStopRecording)
	})
	r.Get("/sessions", s.handleSessions)
	r.Get("/sessions/{sessionID}", s.handleSession)
	r.Get("/debug/pprof/{profile}", s.handleProfile)

	return r
}

func (s *Server) Status() *Status {
	status := &Status{
		NodeID:      s.conf.NodeID,
		GroupType:   s.conf.GroupType,
		State:       s.group.State().String(),
		Latest:      make(map[string]*FrameStatus),
		SessionID:   s.recorder.SessionID(),
		Terminating: s.IsTerminating(),
	}
	for _, sensorType := range s.group.ActiveSensorTypes() {
		status.ActiveSensors = append(status.ActiveSensors, sensorType.String())
		f := s.group.GetLatestSensorFrame(sensorType)
		if f == nil {
			continue
		}
		status.Latest[sensorType.String()] = &FrameStatus{
			Timestamp: f.Timestamp,
			Width:     f.Width,
			Height:    f.Height,
			Subtype:   f.Subtype,
			HasPose:   f.HasPose,
		}
		f.Release()
	}
	return status
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.IsDisabled() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Server) handlePose(w http.ResponseWriter, r *http.Request) {
	var update PoseUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, errors.ErrInvalidInput("pose"))
		return
	}
	s.tracker.Update(update.Timestamp, update.DeviceToOrigin)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartRecording(w http.ResponseWriter, _ *http.Request) {
	if s.IsDisabled() {
		writeError(w, http.StatusServiceUnavailable, errors.ErrDeviceClosed)
		return
	}

	sessionID, err := s.recorder.Start()
	switch {
	case errors.Is(err, errors.ErrSessionActive):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID})
	}
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	info, err := s.recorder.Stop(r.Context())
	switch {
	case errors.Is(err, errors.ErrNoSession):
		writeError(w, http.StatusConflict, err)
	case err != nil && info == nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		// partial failures are reported in the session error field
		writeJSON(w, http.StatusOK, info)
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusNotFound, errors.ErrNotSupported("session catalog"))
		return
	}

	limit := defaultSessionsLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.ErrInvalidInput("limit"))
			return
		}
		limit = n
	}

	sessions, err := s.catalog.Sessions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusNotFound, errors.ErrNotSupported("session catalog"))
		return
	}

	session, err := s.catalog.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	switch {
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	case session == nil:
		writeError(w, http.StatusNotFound, errors.ErrNoSession)
	default:
		writeJSON(w, http.StatusOK, session)
	}
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	var seconds, debug int
	var err error
	q := r.URL.Query()
	if v := q.Get("seconds"); v != "" {
		if seconds, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, errors.ErrInvalidInput("seconds"))
			return
		}
	}
	if v := q.Get("debug"); v != "" {
		if debug, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, errors.ErrInvalidInput("debug"))
			return
		}
	}

	b, err := pprof.GetProfileData(r.Context(), chi.URLParam(r, "profile"), time.Duration(seconds)*time.Second, debug)
	switch {
	case errors.Is(err, errors.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(b)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnw("failed to write response", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
