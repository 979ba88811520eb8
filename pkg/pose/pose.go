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

package pose

import (
	"sort"

	"github.com/linkdata/deadlock"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/sensorcap/pkg/frame"
	"github.com/livekit/sensorcap/pkg/types"
)

// Provider resolves the sensor-to-origin transform at a capture timestamp.
type Provider interface {
	PoseAt(sensorType types.SensorType, ts frame.Timestamp) (frame.Float4x4, bool)
}

// Static returns the same transform for every sensor and timestamp.
type Static frame.Float4x4

func (s Static) PoseAt(_ types.SensorType, _ frame.Timestamp) (frame.Float4x4, bool) {
	return frame.Float4x4(s), true
}

type sample struct {
	ts            frame.Timestamp
	deviceToWorld frame.Float4x4
}

// Tracker keeps a bounded history of device poses and composes them with per-sensor
// extrinsics. Transforms use column vectors: p_origin = FrameToOrigin * p_sensor.
type Tracker struct {
	mu         deadlock.RWMutex
	history    []sample
	size       int
	extrinsics [types.NumberOfSensorTypes]frame.Float4x4
}

func NewTracker(historySize int, extrinsics map[types.SensorType]frame.Float4x4) *Tracker {
	t := &Tracker{
		history: make([]sample, 0, historySize),
		size:    historySize,
	}
	for i := range t.extrinsics {
		t.extrinsics[i] = frame.Identity()
	}
	for sensorType, m := range extrinsics {
		if sensorType.IsValid() {
			t.extrinsics[sensorType] = m
		}
	}
	return t
}

// Update records the device pose at ts. Samples older than the newest one are ignored.
func (t *Tracker) Update(ts frame.Timestamp, deviceToOrigin frame.Float4x4) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.history); n > 0 && ts < t.history[n-1].ts {
		logger.Debugw("dropping out of order pose", "ts", ts, "latest", t.history[n-1].ts)
		return
	}

	if len(t.history) == t.size {
		copy(t.history, t.history[1:])
		t.history = t.history[:t.size-1]
	}
	t.history = append(t.history, sample{ts: ts, deviceToWorld: deviceToOrigin})
}

// PoseAt uses the latest device pose at or before ts.
func (t *Tracker) PoseAt(sensorType types.SensorType, ts frame.Timestamp) (frame.Float4x4, bool) {
	if !sensorType.IsValid() {
		return frame.Float4x4{}, false
	}

	t.mu.RLock()
	i := sort.Search(len(t.history), func(i int) bool {
		return t.history[i].ts > ts
	})
	if i == 0 {
		t.mu.RUnlock()
		return frame.Float4x4{}, false
	}
	deviceToOrigin := t.history[i-1].deviceToWorld
	t.mu.RUnlock()

	return deviceToOrigin.Mul(t.extrinsics[sensorType]), true
}
