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

	"github.com/linkdata/deadlock"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/sensorcap/pkg/capture"
	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/sensorcap/pkg/frame"
	"github.com/livekit/sensorcap/pkg/types"
)

// readerContext ties a running reader to the sensor type it feeds.
type readerContext struct {
	sensorType types.SensorType
	source     *capture.Source
	format     capture.Format
	reader     capture.Reader
	token      capture.Token

	// held for reading by frame callbacks, cleared under the write lock at teardown
	mu     deadlock.RWMutex
	active bool
}

// selectFormat picks the first format matching the requested subtypes, uncompressed first.
func selectFormat(src *capture.Source) (capture.Format, bool) {
	for _, subtype := range types.GetRequestedSubtypes(src.Kind) {
		for _, format := range src.Formats {
			if format.Subtype == subtype {
				return format, true
			}
		}
	}
	return capture.Format{}, false
}

func (g *MediaFrameSourceGroup) openReader(
	ctx context.Context,
	c capture.Capture,
	sensorType types.SensorType,
	src *capture.Source,
	format capture.Format,
) (*readerContext, error) {
	reader, err := c.NewReader(ctx, src, format)
	if err != nil {
		return nil, err
	}

	rc := &readerContext{
		sensorType: sensorType,
		source:     src,
		format:     format,
		reader:     reader,
		active:     true,
	}
	rc.token = reader.AddFrameArrived(func(raw *capture.RawFrame) {
		g.onFrameArrived(rc, raw)
	})

	if err = reader.Start(ctx); err != nil {
		rc.deactivate()
		reader.RemoveFrameArrived(rc.token)
		if closeErr := reader.Close(); closeErr != nil {
			logger.Debugw("failed to close reader", "error", closeErr, "sensor", sensorType)
		}
		return nil, err
	}

	return rc, nil
}

func (g *MediaFrameSourceGroup) closeReader(ctx context.Context, rc *readerContext) error {
	rc.deactivate()
	rc.reader.RemoveFrameArrived(rc.token)

	errs := &errors.ErrArray{}
	errs.AppendErr(rc.reader.Stop(ctx))
	errs.AppendErr(rc.reader.Close())
	if errs.Len() > 0 {
		return errs.ToError()
	}
	return nil
}

// deactivate waits for in-flight callbacks, after which frames of this context are dropped.
func (rc *readerContext) deactivate() {
	rc.mu.Lock()
	rc.active = false
	rc.mu.Unlock()
}

// onFrameArrived owns one reference to raw.Buffer.
func (g *MediaFrameSourceGroup) onFrameArrived(rc *readerContext, raw *capture.RawFrame) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	if !rc.active {
		if raw.Buffer != nil {
			raw.Buffer.Release()
		}
		g.monitor.IncFramesDropped(rc.sensorType, "inactive")
		return
	}

	var frameToOrigin frame.Float4x4
	hasPose := false
	if g.poseProvider != nil {
		frameToOrigin, hasPose = g.poseProvider.PoseAt(rc.sensorType, raw.Timestamp)
	}
	if !hasPose {
		frameToOrigin = frame.Float4x4{}
	}

	f := frame.NewSensorFrame(rc.sensorType, raw.Timestamp, frameToOrigin, hasPose, raw.Buffer, rc.source.Intrinsics)
	f.Width = raw.Format.Width
	f.Height = raw.Format.Height
	f.Subtype = raw.Format.Subtype

	// one reference for the slot, one for the sinks
	f.Retain()
	defer f.Release()

	if !g.publish(f) {
		f.Release()
		g.monitor.IncFramesDropped(rc.sensorType, "stale")
		return
	}
	g.monitor.IncFramesArrived(rc.sensorType)

	if g.sinks != nil {
		g.sinks.Send(f)
	}
}

// publish replaces the latest frame unless a newer one is already cached.
func (g *MediaFrameSourceGroup) publish(f *frame.SensorFrame) bool {
	slot := &g.latest[f.SensorType]
	for {
		old := slot.Load()
		if old != nil && old.Timestamp > f.Timestamp {
			return false
		}
		if slot.CompareAndSwap(old, f) {
			if old != nil {
				old.Release()
			}
			return true
		}
	}
}
