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

package sink

import (
	"path/filepath"
	"time"

	"github.com/linkdata/deadlock"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/sensorcap/pkg/frame"
	"github.com/livekit/sensorcap/pkg/stats"
	"github.com/livekit/sensorcap/pkg/types"
)

const (
	defaultQueueSize         = 32
	defaultSlowSendThreshold = 20 * time.Millisecond
)

type RecorderOption func(*RecorderSink)

func WithQueueSize(n int) RecorderOption {
	return func(s *RecorderSink) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

func WithSlowSendThreshold(d time.Duration) RecorderOption {
	return func(s *RecorderSink) {
		if d > 0 {
			s.slowSendThreshold = d
		}
	}
}

func WithMonitor(m *stats.Monitor) RecorderOption {
	return func(s *RecorderSink) {
		s.monitor = m
	}
}

// RecorderSink writes the raw pixels of every frame it receives to the session folder,
// and a CSV manifest of timestamps and poses when the session stops.
type RecorderSink struct {
	sensorName        string
	queueSize         int
	slowSendThreshold time.Duration
	monitor           *stats.Monitor

	// session state, guards enqueueing
	mu          deadlock.Mutex
	destination string
	writer      *frameWriter
	intrinsics  *frame.CameraIntrinsics
	accepted    bool
	lastTs      frame.Timestamp
	dropped     int

	// written by the frame writer
	logMu deadlock.Mutex
	log   []RecorderLogEntry
	err   error
}

func NewRecorderSink(sensorName string, opts ...RecorderOption) *RecorderSink {
	s := &RecorderSink{
		sensorName:        sensorName,
		queueSize:         defaultQueueSize,
		slowSendThreshold: defaultSlowSendThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the sink to a destination folder. The log of any previous session is discarded.
func (s *RecorderSink) Start(destination string) error {
	if destination == "" {
		return errors.ErrInvalidInput("destination")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer != nil {
		return errors.ErrSessionActive
	}

	s.logMu.Lock()
	s.log = nil
	s.err = nil
	s.logMu.Unlock()

	s.destination = destination
	s.intrinsics = nil
	s.accepted = false
	s.lastTs = 0
	s.dropped = 0
	s.writer = newFrameWriter(s.sensorName, destination, s.queueSize, s.appendEntry, s.writeFailed)

	logger.Debugw("recorder sink started", "sensor", s.sensorName, "destination", destination)
	return nil
}

// Stop waits for pending writes and writes the manifest. It is a no-op without a session.
func (s *RecorderSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return nil
	}

	s.writer.drain()
	s.writer = nil

	manifestPath := filepath.Join(s.destination, s.manifestName())
	s.destination = ""

	s.logMu.Lock()
	entries := s.log
	s.logMu.Unlock()

	if err := writeManifest(manifestPath, entries); err != nil {
		err = errors.ErrWriteFailed(manifestPath, err)
		logger.Errorw("failed to write manifest", err, "sensor", s.sensorName)
		return err
	}

	logger.Debugw("recorder sink stopped", "sensor", s.sensorName, "frames", len(entries))
	return nil
}

func (s *RecorderSink) Send(f *frame.SensorFrame) {
	if f == nil {
		return
	}

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		if s.monitor.ObserveSend(s.sensorName, elapsed, s.slowSendThreshold) {
			logger.Infow("slow recorder send", "sensor", s.sensorName, "elapsed", elapsed)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return
	}

	// manifest rows are strictly increasing; an equal timestamp would also reuse the raw file name
	if s.accepted && f.Timestamp <= s.lastTs {
		reason := "out_of_order"
		if f.Timestamp == s.lastTs {
			reason = "duplicate"
		}
		s.dropped++
		s.monitor.IncFramesDropped(f.SensorType, reason)
		logger.Debugw("dropping frame",
			"sensor", s.sensorName,
			"timestamp", f.Timestamp,
			"last", s.lastTs,
			"reason", reason,
		)
		return
	}
	s.accepted = true
	s.lastTs = f.Timestamp

	if s.intrinsics == nil && f.Intrinsics != nil {
		intrinsics := *f.Intrinsics
		s.intrinsics = &intrinsics
	}

	s.writer.submit(f.Retain())
}

func (s *RecorderSink) GetSensorName() string {
	return s.sensorName
}

// GetCameraIntrinsics returns the intrinsics of the first frame of the session, if any.
func (s *RecorderSink) GetCameraIntrinsics() *frame.CameraIntrinsics {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.intrinsics
}

// ReportArchiveSourceFiles lists the manifest and every written image, relative to the destination.
func (s *RecorderSink) ReportArchiveSourceFiles() []string {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	files := make([]string, 0, len(s.log)+1)
	files = append(files, s.manifestName())
	for _, entry := range s.log {
		files = append(files, entry.RelativeImagePath)
	}
	return files
}

// Dropped returns the number of frames of the current or last session that were
// older than, or as old as, an already accepted frame.
func (s *RecorderSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dropped
}

// Entries returns a copy of the session log.
func (s *RecorderSink) Entries() []RecorderLogEntry {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	return append([]RecorderLogEntry(nil), s.log...)
}

// Err returns the last write error of the session.
func (s *RecorderSink) Err() error {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	return s.err
}

func (s *RecorderSink) manifestName() string {
	return s.sensorName + string(types.FileExtensionCSV)
}

func (s *RecorderSink) appendEntry(entry RecorderLogEntry) {
	s.logMu.Lock()
	s.log = append(s.log, entry)
	s.logMu.Unlock()

	s.monitor.IncFramesWritten(s.sensorName)
}

func (s *RecorderSink) writeFailed(err error) {
	s.logMu.Lock()
	s.err = err
	s.logMu.Unlock()

	s.monitor.IncWriteFailures(s.sensorName)
}
