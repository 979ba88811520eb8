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

// Package synthetic implements a capture device that renders test patterns,
// for running the service without sensor hardware.
package synthetic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/linkdata/deadlock"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/sensorcap/pkg/capture"
	"github.com/livekit/sensorcap/pkg/config"
	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/sensorcap/pkg/frame"
	"github.com/livekit/sensorcap/pkg/types"
)

type Device struct {
	conf *config.SyntheticConfig
}

func NewDevice(conf *config.SyntheticConfig) *Device {
	return &Device{conf: conf}
}

func (d *Device) Open(_ context.Context, groupType types.GroupType) (capture.Capture, error) {
	sourceConfigs := d.conf.Sources
	if len(sourceConfigs) == 0 {
		sourceConfigs = DefaultSources(groupType)
	}
	if len(sourceConfigs) == 0 {
		return nil, errors.ErrNotSupported(fmt.Sprintf("synthetic group %s", groupType))
	}

	c := &Capture{}
	for _, sc := range sourceConfigs {
		src := &capture.Source{
			ID:   sc.ID,
			Kind: types.SourceKind(sc.Kind),
			Formats: []capture.Format{{
				Subtype:   types.Subtype(sc.Subtype),
				Width:     sc.Width,
				Height:    sc.Height,
				FrameRate: sc.FrameRate,
			}},
		}
		if sc.Kind == string(types.SourceKindColor) {
			src.Intrinsics = &frame.CameraIntrinsics{
				FocalLength:    [2]float32{float32(sc.Width), float32(sc.Width)},
				PrincipalPoint: [2]float32{float32(sc.Width) / 2, float32(sc.Height) / 2},
				ImageWidth:     sc.Width,
				ImageHeight:    sc.Height,
			}
		}
		c.sources = append(c.sources, src)
	}

	logger.Debugw("synthetic capture opened", "groupType", groupType, "sources", len(c.sources))
	return c, nil
}

func DefaultSources(groupType types.GroupType) []config.SyntheticSource {
	switch groupType {
	case types.GroupTypePhotoVideo:
		return []config.SyntheticSource{
			{ID: "photo video", Kind: string(types.SourceKindColor), Subtype: string(types.SubtypeBGRA8), Width: 640, Height: 360, FrameRate: 15},
		}

	case types.GroupTypeResearchModeSensors:
		var sources []config.SyntheticSource
		for _, name := range []string{"Short Throw ToF", "Long Throw ToF"} {
			sources = append(sources,
				config.SyntheticSource{ID: name + " Depth", Kind: string(types.SourceKindDepth), Subtype: string(types.SubtypeD16), Width: 448, Height: 450, FrameRate: 5},
				config.SyntheticSource{ID: name + " Reflectivity", Kind: string(types.SourceKindInfrared), Subtype: string(types.SubtypeL8), Width: 448, Height: 450, FrameRate: 5},
			)
		}
		for _, name := range []string{"Left Left", "Left Front", "Right Front", "Right Right"} {
			sources = append(sources,
				config.SyntheticSource{ID: "Visible Light " + name, Kind: string(types.SourceKindInfrared), Subtype: string(types.SubtypeL8), Width: 640, Height: 480, FrameRate: 15},
			)
		}
		return sources
	}

	return nil
}

type Capture struct {
	sources []*capture.Source

	mu      deadlock.Mutex
	readers []*Reader
	closed  bool
}

func (c *Capture) Sources() []*capture.Source {
	return c.sources
}

func (c *Capture) NewReader(_ context.Context, source *capture.Source, format capture.Format) (capture.Reader, error) {
	size := format.FrameSize()
	if size == 0 {
		return nil, errors.ErrNotSupported(string(format.Subtype))
	}
	if format.FrameRate <= 0 {
		return nil, errors.ErrInvalidInput("frame_rate")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.ErrDeviceClosed
	}

	r := &Reader{
		source: source,
		format: format,
		pool: &sync.Pool{
			New: func() any {
				b := make([]byte, size)
				return &b
			},
		},
	}
	c.readers = append(c.readers, r)
	return r, nil
}

func (c *Capture) Close() error {
	c.mu.Lock()
	readers := c.readers
	c.readers = nil
	c.closed = true
	c.mu.Unlock()

	for _, r := range readers {
		_ = r.Close()
	}
	return nil
}

type Reader struct {
	source   *capture.Source
	format   capture.Format
	pool     *sync.Pool
	handlers capture.Handlers

	mu      deadlock.Mutex
	stop    *core.Fuse
	done    *core.Fuse
	running bool
	seq     uint64
}

func (r *Reader) AddFrameArrived(handler capture.FrameArrivedHandler) capture.Token {
	return r.handlers.Add(handler)
}

func (r *Reader) RemoveFrameArrived(token capture.Token) {
	r.handlers.Remove(token)
}

func (r *Reader) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	r.running = true
	r.stop = &core.Fuse{}
	r.done = &core.Fuse{}
	go r.run(r.stop.Watch(), r.done)
	return nil
}

func (r *Reader) run(stop <-chan struct{}, done *core.Fuse) {
	defer done.Break()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / r.format.FrameRate))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			r.emit(now)
		}
	}
}

func (r *Reader) emit(now time.Time) {
	buf := r.pool.Get().(*[]byte)
	data := *buf
	r.seq++
	// moving gradient so consecutive frames differ
	shift := byte(r.seq)
	for i := range data {
		data[i] = byte(i) + shift
	}

	r.handlers.Emit(&capture.RawFrame{
		Timestamp: frame.TimestampFromTime(now),
		Format:    r.format,
		Buffer:    frame.NewBuffer(data, func([]byte) { r.pool.Put(buf) }),
	})
}

func (r *Reader) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.stop.Break()
	done := r.done.Watch()
	r.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reader) Close() error {
	return r.Stop(context.Background())
}
