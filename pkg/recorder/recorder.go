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

package recorder

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/linkdata/deadlock"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/sensorcap/pkg/catalog"
	"github.com/livekit/sensorcap/pkg/config"
	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/sensorcap/pkg/sink"
	"github.com/livekit/sensorcap/pkg/stats"
	"github.com/livekit/sensorcap/pkg/types"
	"github.com/livekit/sensorcap/pkg/uploader"
)

const (
	sessionTimeFormat  = "20060102_150405"
	descriptorFilename = "session" + string(types.FileExtensionJSON)
)

type Option func(*Recorder)

func WithUploader(u *uploader.Uploader) Option {
	return func(r *Recorder) {
		r.uploader = u
	}
}

func WithCatalog(db *catalog.DB) Option {
	return func(r *Recorder) {
		r.catalog = db
	}
}

func WithMonitor(m *stats.Monitor) Option {
	return func(r *Recorder) {
		r.monitor = m
	}
}

// Recorder runs recording sessions over one RecorderSink per recorded sensor type.
type Recorder struct {
	conf      config.RecordingConfig
	groupType types.GroupType
	uploader  *uploader.Uploader
	catalog   *catalog.DB
	monitor   *stats.Monitor

	sensorTypes []types.SensorType
	sinks       []*sink.RecorderSink
	group       *sink.Group

	mu      deadlock.Mutex
	session *session
}

type session struct {
	id        string
	folder    string
	startedAt time.Time
	timer     *time.Timer
}

func New(conf config.RecordingConfig, groupType types.GroupType, sensorTypes []types.SensorType, opts ...Option) *Recorder {
	r := &Recorder{
		conf:      conf,
		groupType: groupType,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.sensorTypes = sensorTypes
	r.sinks = RecorderSinks(sensorTypes,
		sink.WithQueueSize(conf.QueueSize),
		sink.WithSlowSendThreshold(conf.SlowSendThreshold),
		sink.WithMonitor(r.monitor),
	)
	r.group = sink.NewGroup()
	for i, s := range r.sinks {
		r.group.Add(sink.Filter(sensorTypes[i], s))
	}
	return r
}

// RecorderSinks creates one sink per sensor type, named after the sensor.
func RecorderSinks(sensorTypes []types.SensorType, opts ...sink.RecorderOption) []*sink.RecorderSink {
	sinks := make([]*sink.RecorderSink, 0, len(sensorTypes))
	for _, sensorType := range sensorTypes {
		sinks = append(sinks, sink.NewRecorderSink(sensorType.String(), opts...))
	}
	return sinks
}

// SinkGroup routes every frame to the sink of its sensor type.
func (r *Recorder) SinkGroup() *sink.Group {
	return r.group
}

func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return ""
	}
	return r.session.id
}

// Start creates a session folder and starts every sink. It returns the session id.
func (r *Recorder) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return "", errors.ErrSessionActive
	}

	now := time.Now()
	s := &session{
		id:        uuid.NewString(),
		startedAt: now,
	}
	s.folder = filepath.Join(r.conf.Dir, now.UTC().Format(sessionTimeFormat)+"_"+s.id)
	if err := os.MkdirAll(s.folder, 0755); err != nil {
		return "", errors.ErrWriteFailed(s.folder, err)
	}

	for i, rs := range r.sinks {
		if err := rs.Start(s.folder); err != nil {
			for _, started := range r.sinks[:i] {
				_ = started.Stop()
			}
			return "", err
		}
	}

	if r.conf.MaxDuration > 0 {
		s.timer = time.AfterFunc(r.conf.MaxDuration, func() {
			logger.Infow("max recording duration reached", "sessionID", s.id)
			if _, err := r.stop(context.Background(), s); err != nil && !errors.Is(err, errors.ErrNoSession) {
				logger.Warnw("failed to stop recording", err, "sessionID", s.id)
			}
		})
	}

	r.session = s
	logger.Infow("recording started", "sessionID", s.id, "folder", s.folder, "sensors", r.sensorTypes)
	return s.id, nil
}

// Stop ends the active session, archives and uploads it when configured, and records it in the catalog.
func (r *Recorder) Stop(ctx context.Context) (*catalog.Session, error) {
	r.mu.Lock()
	s := r.session
	r.mu.Unlock()

	if s == nil {
		return nil, errors.ErrNoSession
	}
	return r.stop(ctx, s)
}

func (r *Recorder) stop(ctx context.Context, s *session) (*catalog.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != s {
		return nil, errors.ErrNoSession
	}
	r.session = nil
	if s.timer != nil {
		s.timer.Stop()
	}

	errs := &errors.ErrArray{}
	info := &catalog.Session{
		ID:        s.id,
		Folder:    s.folder,
		GroupType: string(r.groupType),
		StartedAt: s.startedAt.UTC(),
	}
	for _, rs := range r.sinks {
		errs.AppendErr(rs.Stop())
		if err := rs.Err(); err != nil {
			logger.Warnw("recording had write failures", err, "sensor", rs.GetSensorName())
		}
		info.Sensors = append(info.Sensors, rs.GetSensorName())
		info.FrameCount += len(rs.Entries())
	}
	info.EndedAt = time.Now().UTC()

	if err := writeDescriptor(filepath.Join(s.folder, descriptorFilename), info, r.sinks); err != nil {
		errs.AppendErr(err)
	}

	if r.conf.Archive {
		errs.AppendErr(r.archive(ctx, s, info))
	} else if r.uploader != nil {
		errs.AppendErr(r.uploadFiles(ctx, s, info))
	}

	if errs.Len() > 0 {
		info.Error = errs.ToError().Error()
	}

	if r.catalog != nil {
		if err := r.catalog.RecordSession(ctx, info); err != nil {
			logger.Warnw("failed to record session", err, "sessionID", s.id)
			errs.AppendErr(err)
		}
	}

	logger.Infow("recording stopped",
		"sessionID", s.id,
		"frames", info.FrameCount,
		"duration", info.EndedAt.Sub(info.StartedAt),
		"archive", info.ArchiveLocation,
	)

	if errs.Len() > 0 {
		return info, errs.ToError()
	}
	return info, nil
}

func (r *Recorder) sessionFiles() []string {
	files := []string{descriptorFilename}
	for _, rs := range r.sinks {
		files = append(files, rs.ReportArchiveSourceFiles()...)
	}
	return files
}

func uploadSession(s *session, info *catalog.Session) *uploader.Session {
	return &uploader.Session{
		ID:        s.id,
		Name:      filepath.Base(s.folder),
		GroupType: info.GroupType,
		Sensors:   info.Sensors,
		StartedAt: info.StartedAt,
	}
}

func (r *Recorder) archive(ctx context.Context, s *session, info *catalog.Session) error {
	archivePath := filepath.Join(r.conf.Dir, filepath.Base(s.folder)+string(types.FileExtensionTar))
	size, err := writeArchive(archivePath, s.folder, r.sessionFiles())
	if err != nil {
		return errors.ErrWriteFailed(archivePath, err)
	}
	info.ArchiveLocation = archivePath
	info.ArchiveSize = size

	if r.uploader == nil {
		return nil
	}

	res, err := r.uploader.UploadArchive(ctx, uploadSession(s, info), archivePath)
	if err != nil {
		return err
	}
	info.ArchiveLocation = res.Location
	info.ArchiveSize = res.Size

	if !r.conf.KeepLocal {
		if err = os.Remove(archivePath); err != nil {
			logger.Warnw("failed to remove session archive", err, "archive", archivePath)
		}
		r.removeFolder(s)
	}
	return nil
}

// uploadFiles stores the manifests, images and descriptor of the session as individual objects.
func (r *Recorder) uploadFiles(ctx context.Context, s *session, info *catalog.Session) error {
	res, err := r.uploader.UploadFiles(ctx, uploadSession(s, info), s.folder, r.sessionFiles())
	if err != nil {
		return err
	}
	info.ArchiveLocation = res.Location
	info.ArchiveSize = res.Size

	if !r.conf.KeepLocal {
		r.removeFolder(s)
	}
	return nil
}

func (r *Recorder) removeFolder(s *session) {
	if err := os.RemoveAll(s.folder); err != nil {
		logger.Warnw("failed to remove session folder", err, "folder", s.folder)
	}
}
