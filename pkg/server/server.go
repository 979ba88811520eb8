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
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/frostbyte73/core"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/sensorcap/pkg/capture"
	"github.com/livekit/sensorcap/pkg/catalog"
	"github.com/livekit/sensorcap/pkg/config"
	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/sensorcap/pkg/frame"
	"github.com/livekit/sensorcap/pkg/pose"
	"github.com/livekit/sensorcap/pkg/recorder"
	"github.com/livekit/sensorcap/pkg/sink"
	"github.com/livekit/sensorcap/pkg/source"
	"github.com/livekit/sensorcap/pkg/stats"
	"github.com/livekit/sensorcap/pkg/types"
	"github.com/livekit/sensorcap/pkg/uploader"
)

const killTimeout = 5 * time.Second

type Option func(*Server)

// WithRegistry replaces the default prometheus registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registerer = reg
		s.gatherer = reg
	}
}

type Server struct {
	conf *config.ServiceConfig

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	monitor    *stats.Monitor
	promServer *http.Server
	promLn     net.Listener

	tracker  *pose.Tracker
	catalog  *catalog.DB
	recorder *recorder.Recorder
	group    *source.MediaFrameSourceGroup

	killed      atomic.Bool
	terminating core.Fuse
	shutdown    core.Fuse
}

func NewServer(conf *config.ServiceConfig, device capture.Device, opts ...Option) (*Server, error) {
	s := &Server{
		conf:       conf,
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.monitor = stats.NewMonitor(conf.NodeID, s.registerer)

	sensorTypes, err := conf.GetSensorTypes()
	if err != nil {
		return nil, err
	}
	recorded, err := conf.GetRecordedSensorTypes()
	if err != nil {
		return nil, err
	}
	extrinsics, err := parseExtrinsics(conf.Pose.Extrinsics)
	if err != nil {
		return nil, err
	}
	s.tracker = pose.NewTracker(conf.Pose.HistorySize, extrinsics)

	recorderOpts := []recorder.Option{recorder.WithMonitor(s.monitor)}
	if conf.StorageConfig != nil {
		u, err := uploader.New(conf.StorageConfig, conf.BackupConfig, s.monitor)
		if err != nil {
			return nil, err
		}
		recorderOpts = append(recorderOpts, recorder.WithUploader(u))
	}
	if conf.CatalogPath != "" {
		db, err := catalog.Open(conf.CatalogPath)
		if err != nil {
			return nil, err
		}
		s.catalog = db
		recorderOpts = append(recorderOpts, recorder.WithCatalog(db))
	}
	s.recorder = recorder.New(conf.Recording, conf.GroupType, recorded, recorderOpts...)

	s.group = source.New(
		conf.GroupType,
		device,
		s.tracker,
		sink.NewGroup(s.recorder.SinkGroup()),
		source.WithMonitor(s.monitor),
		source.WithSensorTypes(sensorTypes...),
	)

	if conf.PrometheusPort > 0 {
		s.promServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", conf.PrometheusPort),
			Handler: s.PromHandler(),
		}

		s.promLn, err = net.Listen("tcp", s.promServer.Addr)
		if err != nil {
			s.closeCatalog()
			return nil, err
		}
		go func() {
			_ = s.promServer.Serve(s.promLn)
		}()
	}

	return s, nil
}

// Run starts streaming and blocks until Shutdown is called.
func (s *Server) Run() error {
	logger.Debugw("starting service", "groupType", s.conf.GroupType)

	if err := <-s.group.StartAsync(context.Background()); err != nil {
		s.release(context.Background())
		return err
	}

	logger.Infow("service ready", "sensors", s.group.ActiveSensorTypes())
	<-s.shutdown.Watch()
	logger.Infow("draining")

	ctx := context.Background()
	if s.killed.Load() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, killTimeout)
		defer cancel()
	}

	if s.recorder.SessionID() != "" {
		if _, err := s.recorder.Stop(ctx); err != nil {
			logger.Warnw("failed to stop recording", err)
		}
	}
	if err := <-s.group.StopAsync(ctx); err != nil {
		logger.Warnw("failed to stop source group", err)
	}

	s.release(ctx)

	logger.Infow("service stopped")
	return nil
}

func (s *Server) IsDisabled() bool {
	return s.shutdown.IsBroken()
}

func (s *Server) IsTerminating() bool {
	return s.terminating.IsBroken()
}

func (s *Server) Shutdown(terminating, kill bool) {
	if terminating {
		s.terminating.Break()
	}
	if kill {
		s.killed.Store(true)
	}
	s.shutdown.Break()
}

// release stops the prometheus listener and closes the catalog.
func (s *Server) release(ctx context.Context) {
	if s.promServer != nil {
		_ = s.promServer.Shutdown(ctx)
		// Serve may not have picked up the listener yet
		_ = s.promLn.Close()
	}
	s.closeCatalog()
}

func (s *Server) closeCatalog() {
	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			logger.Warnw("failed to close catalog", err)
		}
	}
}

func parseExtrinsics(conf map[string][16]float32) (map[types.SensorType]frame.Float4x4, error) {
	extrinsics := make(map[types.SensorType]frame.Float4x4, len(conf))
	for name, m := range conf {
		sensorType, err := types.ParseSensorType(name)
		if err != nil {
			return nil, errors.ErrInvalidInput("pose.extrinsics")
		}
		extrinsics[sensorType] = frame.Float4x4(m)
	}
	return extrinsics, nil
}
