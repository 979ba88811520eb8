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

// Package capture describes the media capture API the source group drives.
// Implementations wrap a platform capture stack; mock and synthetic implementations
// live in subpackages.
package capture

import (
	"context"

	"github.com/livekit/sensorcap/pkg/frame"
	"github.com/livekit/sensorcap/pkg/types"
)

// Device opens capture sessions for a source group.
type Device interface {
	Open(ctx context.Context, groupType types.GroupType) (Capture, error)
}

// Capture is an open capture session.
type Capture interface {
	// Sources returns the available sources in the device's priority order.
	Sources() []*Source
	NewReader(ctx context.Context, source *Source, format Format) (Reader, error)
	Close() error
}

type Source struct {
	ID         string
	Kind       types.SourceKind
	Formats    []Format
	Intrinsics *frame.CameraIntrinsics
}

type Format struct {
	Subtype   types.Subtype
	Width     uint32
	Height    uint32
	FrameRate float64
}

// FrameSize returns the byte length of an uncompressed frame in this format,
// or 0 when it cannot be known up front.
func (f Format) FrameSize() int {
	bpp, ok := types.BytesPerPixel[f.Subtype]
	if !ok {
		return 0
	}
	return int(float64(f.Width) * float64(f.Height) * bpp)
}

// Reader delivers frames of a single source to its registered handlers.
type Reader interface {
	AddFrameArrived(handler FrameArrivedHandler) Token
	RemoveFrameArrived(token Token)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Close() error
}

type Token uint64

// RawFrame is what a reader hands to its handlers. The handler owns the buffer reference.
type RawFrame struct {
	Timestamp frame.Timestamp
	Format    Format
	Buffer    *frame.Buffer
}

type FrameArrivedHandler func(f *RawFrame)
