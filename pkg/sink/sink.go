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
	"github.com/linkdata/deadlock"

	"github.com/livekit/sensorcap/pkg/frame"
	"github.com/livekit/sensorcap/pkg/types"
)

// Sink consumes published frames. The frame is only borrowed for the duration of Send;
// sinks that hold on to it must Retain it and Release it when done.
type Sink interface {
	Send(f *frame.SensorFrame)
}

// Group forwards every frame to its sinks in registration order.
type Group struct {
	mu    deadlock.RWMutex
	sinks []Sink
}

func NewGroup(sinks ...Sink) *Group {
	return &Group{
		sinks: sinks,
	}
}

func (g *Group) Add(s Sink) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sinks = append(g.sinks, s)
}

func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.sinks)
}

func (g *Group) Send(f *frame.SensorFrame) {
	g.mu.RLock()
	sinks := g.sinks
	g.mu.RUnlock()

	for _, s := range sinks {
		s.Send(f)
	}
}

type filter struct {
	sensorType types.SensorType
	sink       Sink
}

// Filter wraps s so that it only receives frames of the given sensor type.
func Filter(sensorType types.SensorType, s Sink) Sink {
	return &filter{
		sensorType: sensorType,
		sink:       s,
	}
}

func (f *filter) Send(sf *frame.SensorFrame) {
	if sf != nil && sf.SensorType == f.sensorType {
		f.sink.Send(sf)
	}
}
