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

package source

import (
	"context"
	"time"

	"github.com/linkdata/deadlock"
	"go.opentelemetry.io/otel"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/sensorcap/pkg/capture"
	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/sensorcap/pkg/frame"
	"github.com/livekit/sensorcap/pkg/pose"
	"github.com/livekit/sensorcap/pkg/sink"
	"github.com/livekit/sensorcap/pkg/stats"
	"github.com/livekit/sensorcap/pkg/types"
)

var tracer = otel.Tracer("github.com/livekit/sensorcap/pkg/source")

// State is the lifecycle state of a MediaFrameSourceGroup.
type State int32

const (
	StateIdle         State = iota // no device open, ready to start
	StateInitializing              // opening the device and starting readers
	StateStreaming                 // readers are running
	StateStopping                  // tearing down readers and the device
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInitializing:
		return "INITIALIZING"
	case StateStreaming:
		return "STREAMING"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

type Option func(*MediaFrameSourceGroup)

func WithMonitor(m *stats.Monitor) Option {
	return func(g *MediaFrameSourceGroup) {
		g.monitor = m
	}
}

// WithSensorTypes restricts the group to a subset of its sensor types.
func WithSensorTypes(sensorTypes ...types.SensorType) Option {
	return func(g *MediaFrameSourceGroup) {
		g.enabled = [types.NumberOfSensorTypes]bool{}
		for _, s := range sensorTypes {
			if s.IsValid() {
				g.enabled[s] = true
			}
		}
	}
}

// MediaFrameSourceGroup opens one frame reader per sensor type of a source group, keeps the
// latest frame of every sensor and forwards each frame to an optional sink group.
type MediaFrameSourceGroup struct {
	groupType    types.GroupType
	device       capture.Device
	poseProvider pose.Provider
	sinks        *sink.Group
	monitor      *stats.Monitor
	enabled      [types.NumberOfSensorTypes]bool

	// start and stop only run from a stable state, which serializes them
	state atomic.Int32

	mu      deadlock.RWMutex
	capture capture.Capture
	readers [types.NumberOfSensorTypes]*readerContext

	latest [types.NumberOfSensorTypes]atomic.Pointer[frame.SensorFrame]
}

// New creates an idle source group. poseProvider and sinks may be nil.
func New(
	groupType types.GroupType,
	device capture.Device,
	poseProvider pose.Provider,
	sinks *sink.Group,
	opts ...Option,
) *MediaFrameSourceGroup {
	g := &MediaFrameSourceGroup{
		groupType:    groupType,
		device:       device,
		poseProvider: poseProvider,
		sinks:        sinks,
	}
	for _, s := range types.GroupSensorTypes[groupType] {
		g.enabled[s] = true
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *MediaFrameSourceGroup) State() State {
	return State(g.state.Load())
}

// StartAsync opens the device and starts a reader for every sensor type with a matching source.
// The returned channel receives the result once.
func (g *MediaFrameSourceGroup) StartAsync(ctx context.Context) <-chan error {
	res := make(chan error, 1)
	if !g.state.CompareAndSwap(int32(StateIdle), int32(StateInitializing)) {
		res <- g.transitionError(StateIdle)
		close(res)
		return res
	}

	go func() {
		defer close(res)
		res <- g.start(ctx)
	}()
	return res
}

// StopAsync stops and releases every reader and the device. Stopping an idle group succeeds.
func (g *MediaFrameSourceGroup) StopAsync(ctx context.Context) <-chan error {
	res := make(chan error, 1)
	if !g.state.CompareAndSwap(int32(StateStreaming), int32(StateStopping)) {
		if g.State() == StateIdle {
			res <- nil
		} else {
			res <- g.transitionError(StateStreaming)
		}
		close(res)
		return res
	}

	go func() {
		defer close(res)
		res <- g.stop(ctx)
	}()
	return res
}

func (g *MediaFrameSourceGroup) transitionError(required State) error {
	switch current := g.State(); current {
	case StateInitializing, StateStopping:
		return errors.ErrLifecycleBusy
	default:
		logger.Debugw("invalid lifecycle transition", "state", current.String(), "required", required.String())
		return errors.ErrInvalidState
	}
}

// GetLatestSensorFrame returns the most recent frame of a sensor, or nil. The caller owns
// a reference to the returned frame and must Release it.
func (g *MediaFrameSourceGroup) GetLatestSensorFrame(sensorType types.SensorType) *frame.SensorFrame {
	if !sensorType.IsValid() {
		return nil
	}

	slot := &g.latest[sensorType]
	for {
		f := slot.Load()
		if f == nil {
			return nil
		}
		if f.TryRetain() {
			return f
		}
		// superseded and released between the load and the retain
	}
}

// ActiveSensorTypes returns the sensor types with a running reader, in registry order.
func (g *MediaFrameSourceGroup) ActiveSensorTypes() []types.SensorType {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var active []types.SensorType
	for _, rc := range g.readers {
		if rc != nil {
			active = append(active, rc.sensorType)
		}
	}
	return active
}

func (g *MediaFrameSourceGroup) start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "MediaFrameSourceGroup.Start")
	defer span.End()

	startedAt := time.Now()
	c, readers, err := g.initialize(ctx)
	g.monitor.ObserveLifecycle("start", time.Since(startedAt), err)
	if err != nil {
		span.RecordError(err)
		logger.Warnw("failed to start source group", err, "groupType", g.groupType)
		g.state.Store(int32(StateIdle))
		return err
	}

	g.mu.Lock()
	g.capture = c
	g.readers = readers
	g.mu.Unlock()

	active := g.ActiveSensorTypes()
	g.monitor.SetActiveSensors(len(active))
	g.state.Store(int32(StateStreaming))

	logger.Infow("source group streaming", "groupType", g.groupType, "sensors", active)
	return nil
}

func (g *MediaFrameSourceGroup) initialize(ctx context.Context) (capture.Capture, [types.NumberOfSensorTypes]*readerContext, error) {
	var readers [types.NumberOfSensorTypes]*readerContext

	c, err := g.device.Open(ctx, g.groupType)
	if err != nil {
		return nil, readers, errors.ErrInitialization(err)
	}

	started := 0
	for _, src := range c.Sources() {
		sensorType := types.GetSensorType(g.groupType, src.Kind, src.ID)
		if !sensorType.IsValid() || !g.enabled[sensorType] || readers[sensorType] != nil {
			continue
		}

		format, ok := selectFormat(src)
		if !ok {
			logger.Debugw("no requested format", "sensor", sensorType, "sourceID", src.ID)
			continue
		}

		rc, err := g.openReader(ctx, c, sensorType, src, format)
		if err != nil {
			logger.Warnw("failed to start reader", err, "sensor", sensorType, "sourceID", src.ID)
			continue
		}

		readers[sensorType] = rc
		started++
		logger.Debugw("reader started",
			"sensor", sensorType,
			"sourceID", src.ID,
			"subtype", format.Subtype,
			"width", format.Width,
			"height", format.Height,
		)
	}

	if started == 0 {
		if err = c.Close(); err != nil {
			logger.Warnw("failed to close capture device", err)
		}
		return nil, readers, errors.ErrInitialization(errors.ErrNoMatchingSource)
	}

	return c, readers, nil
}

func (g *MediaFrameSourceGroup) stop(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "MediaFrameSourceGroup.Stop")
	defer span.End()

	startedAt := time.Now()

	g.mu.Lock()
	readers := g.readers
	c := g.capture
	g.readers = [types.NumberOfSensorTypes]*readerContext{}
	g.capture = nil
	g.mu.Unlock()

	errs := &errors.ErrArray{}
	for _, rc := range readers {
		if rc == nil {
			continue
		}
		errs.AppendErr(g.closeReader(ctx, rc))
		if f := g.latest[rc.sensorType].Swap(nil); f != nil {
			f.Release()
		}
	}
	if c != nil {
		errs.AppendErr(c.Close())
	}

	g.monitor.SetActiveSensors(0)
	g.state.Store(int32(StateIdle))

	if errs.Len() == 0 {
		g.monitor.ObserveLifecycle("stop", time.Since(startedAt), nil)
		logger.Infow("source group stopped", "groupType", g.groupType)
		return nil
	}

	err := errs.ToError()
	g.monitor.ObserveLifecycle("stop", time.Since(startedAt), err)
	span.RecordError(err)
	logger.Warnw("source group stopped with errors", err, "groupType", g.groupType)
	return err
}
