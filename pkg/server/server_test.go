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
	"bytes"
	"encoding/json"
	"fmt"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/livekit/sensorcap/pkg/capture"
	"github.com/livekit/sensorcap/pkg/capture/mock"
	"github.com/livekit/sensorcap/pkg/catalog"
	"github.com/livekit/sensorcap/pkg/config"
	"github.com/livekit/sensorcap/pkg/frame"
	"github.com/livekit/sensorcap/pkg/source"
	"github.com/livekit/sensorcap/pkg/types"
)

const testTimeout = 5 * time.Second

func newTestServer(t *testing.T) (*Server, *mock.Device) {
	dir := t.TempDir()
	conf, err := config.NewServiceConfig(fmt.Sprintf(`
group_type: photo_video
catalog_path: %s
recording:
  dir: %s
  keep_local: true
`, filepath.Join(dir, "catalog.db"), filepath.Join(dir, "recordings")))
	require.NoError(t, err)

	device := mock.NewDevice(&capture.Source{
		ID:      "pv",
		Kind:    types.SourceKindColor,
		Formats: []capture.Format{{Subtype: types.SubtypeNV12, Width: 1280, Height: 720, FrameRate: 30}},
	})
	s, err := NewServer(conf, device, WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	return s, device
}

func runServer(t *testing.T, s *Server) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- s.Run()
	}()
	require.Eventually(t, func() bool {
		return s.group.State() == source.StateStreaming
	}, testTimeout, 10*time.Millisecond)
	return done
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func decode(t *testing.T, res *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(res.Body).Decode(v))
}

func TestServerRecording(t *testing.T) {
	s, device := newTestServer(t)
	done := runServer(t, s)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	res := do(t, http.MethodGet, ts.URL+"/healthz", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = do(t, http.MethodPost, ts.URL+"/pose", PoseUpdate{Timestamp: 10, DeviceToOrigin: frame.Identity()})
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	res = do(t, http.MethodPost, ts.URL+"/recording/start", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	started := map[string]string{}
	decode(t, res, &started)
	sessionID := started["session_id"]
	require.NotEmpty(t, sessionID)

	res = do(t, http.MethodPost, ts.URL+"/recording/start", nil)
	require.Equal(t, http.StatusConflict, res.StatusCode)

	require.True(t, device.Capture().Reader("pv").Push(20, make([]byte, 16), nil))

	res = do(t, http.MethodGet, ts.URL+"/status", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	status := &Status{}
	decode(t, res, status)
	require.Equal(t, "STREAMING", status.State)
	require.Equal(t, []string{"PhotoVideo"}, status.ActiveSensors)
	require.Equal(t, sessionID, status.SessionID)
	latest := status.Latest["PhotoVideo"]
	require.NotNil(t, latest)
	require.Equal(t, frame.Timestamp(20), latest.Timestamp)
	require.Equal(t, uint32(1280), latest.Width)
	require.True(t, latest.HasPose)

	res = do(t, http.MethodPost, ts.URL+"/recording/stop", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	info := &catalog.Session{}
	decode(t, res, info)
	require.Equal(t, sessionID, info.ID)
	require.Equal(t, 1, info.FrameCount)
	require.Empty(t, info.Error)

	res = do(t, http.MethodPost, ts.URL+"/recording/stop", nil)
	require.Equal(t, http.StatusConflict, res.StatusCode)

	res = do(t, http.MethodGet, ts.URL+"/sessions", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var sessions []*catalog.Session
	decode(t, res, &sessions)
	require.Len(t, sessions, 1)
	require.Equal(t, sessionID, sessions[0].ID)

	res = do(t, http.MethodGet, ts.URL+"/sessions/"+sessionID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res = do(t, http.MethodGet, ts.URL+"/sessions/unknown", nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	res = do(t, http.MethodGet, ts.URL+"/sessions?limit=0", nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	s.Shutdown(true, false)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("server did not stop")
	}

	require.Equal(t, source.StateIdle, s.group.State())
	require.True(t, device.Capture().Closed())

	res = do(t, http.MethodGet, ts.URL+"/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	res = do(t, http.MethodPost, ts.URL+"/recording/start", nil)
	require.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestShutdownStopsRecording(t *testing.T) {
	s, _ := newTestServer(t)
	done := runServer(t, s)

	sessionID, err := s.recorder.Start()
	require.NoError(t, err)

	s.Shutdown(false, true)
	require.NoError(t, <-done)
	require.Empty(t, s.recorder.SessionID())
	require.False(t, s.IsTerminating())

	db, err := catalog.Open(s.conf.CatalogPath)
	require.NoError(t, err)
	defer db.Close()
	recorded, err := db.GetSession(t.Context(), sessionID)
	require.NoError(t, err)
	require.NotNil(t, recorded)
}

func TestStartFailureReleasesPromPort(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	conf, err := config.NewServiceConfig(fmt.Sprintf(`
group_type: photo_video
prometheus_port: %d
recording:
  dir: %s
`, port, t.TempDir()))
	require.NoError(t, err)

	device := mock.NewDevice()
	device.OpenErr = errors.New("device busy")
	s, err := NewServer(conf, device, WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)

	require.Error(t, s.Run())

	// the listener is closed, so the port can be bound again
	l, err = net.Listen("tcp", fmt.Sprintf(":%d", port))
	require.NoError(t, err)
	require.NoError(t, l.Close())
}

func TestBadPose(t *testing.T) {
	s, _ := newTestServer(t)
	defer s.closeCatalog()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pose", bytes.NewBufferString("{")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPromHandler(t *testing.T) {
	s, device := newTestServer(t)
	done := runServer(t, s)

	require.True(t, device.Capture().Reader("pv").Push(1, make([]byte, 16), nil))

	rec := httptest.NewRecorder()
	s.PromHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `livekit_sensorcap_frames_arrived{node_id="`+s.conf.NodeID+`",sensor="PhotoVideo"} 1`)
	require.Contains(t, rec.Body.String(), "livekit_sensorcap_active_sensors")

	s.Shutdown(false, false)
	require.NoError(t, <-done)
}

func TestProfileHandler(t *testing.T) {
	s, _ := newTestServer(t)
	defer s.closeCatalog()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/heap", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotZero(t, rec.Body.Len())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/frames", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/cpu?seconds=x", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseExtrinsics(t *testing.T) {
	m := [16]float32{1, 0, 0, 0.1, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	extrinsics, err := parseExtrinsics(map[string][16]float32{"longthrowtofdepth": m})
	require.NoError(t, err)
	require.Equal(t, frame.Float4x4(m), extrinsics[types.SensorTypeLongThrowToFDepth])

	_, err = parseExtrinsics(map[string][16]float32{"Thermal": m})
	require.Error(t, err)
}
