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

// Package mock provides an in-memory capture device for tests.
package mock

import (
	"context"

	"github.com/linkdata/deadlock"
	"go.uber.org/atomic"

	"github.com/livekit/sensorcap/pkg/capture"
	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/sensorcap/pkg/frame"
	"github.com/livekit/sensorcap/pkg/types"
)

type Device struct {
	sources []*capture.Source

	// OpenErr fails every Open call when set.
	OpenErr error
	// ReaderErrs fails NewReader for the given source ids.
	ReaderErrs map[string]error
	// OpenGate blocks Open until closed, when set.
	OpenGate chan struct{}

	Opens atomic.Int32

	mu      deadlock.Mutex
	capture *Capture
}

func NewDevice(sources ...*capture.Source) *Device {
	return &Device{
		sources:    sources,
		ReaderErrs: make(map[string]error),
	}
}

func (d *Device) Open(ctx context.Context, _ types.GroupType) (capture.Capture, error) {
	if d.OpenGate != nil {
		select {
		case <-d.OpenGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.Opens.Inc()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}

	c := &Capture{
		device:  d,
		readers: make(map[string]*Reader),
	}
	d.mu.Lock()
	d.capture = c
	d.mu.Unlock()
	return c, nil
}

// Capture returns the most recently opened capture.
func (d *Device) Capture() *Capture {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capture
}

type Capture struct {
	device *Device
	closed atomic.Bool

	mu      deadlock.Mutex
	readers map[string]*Reader
}

func (c *Capture) Sources() []*capture.Source {
	return c.device.sources
}

func (c *Capture) NewReader(_ context.Context, source *capture.Source, format capture.Format) (capture.Reader, error) {
	if err := c.device.ReaderErrs[source.ID]; err != nil {
		return nil, err
	}

	r := &Reader{
		Source: source,
		Format: format,
	}
	c.mu.Lock()
	c.readers[source.ID] = r
	c.mu.Unlock()
	return r, nil
}

func (c *Capture) Reader(sourceID string) *Reader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readers[sourceID]
}

func (c *Capture) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *Capture) Closed() bool {
	return c.closed.Load()
}

type Reader struct {
	Source *capture.Source
	Format capture.Format

	handlers capture.Handlers
	started  atomic.Bool
	closed   atomic.Bool
}

func (r *Reader) AddFrameArrived(handler capture.FrameArrivedHandler) capture.Token {
	return r.handlers.Add(handler)
}

func (r *Reader) RemoveFrameArrived(token capture.Token) {
	r.handlers.Remove(token)
}

func (r *Reader) Handlers() int {
	return r.handlers.Len()
}

func (r *Reader) Start(_ context.Context) error {
	if r.closed.Load() {
		return errors.ErrDeviceClosed
	}
	r.started.Store(true)
	return nil
}

func (r *Reader) Stop(_ context.Context) error {
	r.started.Store(false)
	return nil
}

func (r *Reader) Close() error {
	r.closed.Store(true)
	return nil
}

func (r *Reader) Started() bool {
	return r.started.Load()
}

func (r *Reader) Closed() bool {
	return r.closed.Load()
}

// Push delivers a frame to the registered handlers as if the hardware produced it.
// Returns false when the reader is not streaming.
func (r *Reader) Push(ts frame.Timestamp, data []byte, onRelease func([]byte)) bool {
	if !r.started.Load() {
		return false
	}
	r.handlers.Emit(&capture.RawFrame{
		Timestamp: ts,
		Format:    r.Format,
		Buffer:    frame.NewBuffer(data, onRelease),
	})
	return true
}
