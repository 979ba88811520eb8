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

package frame

import (
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"
)

// Buffer is a reference counted pixel buffer. The last Release hands the bytes back to
// the owner through onRelease.
type Buffer struct {
	data      []byte
	refs      atomic.Int32
	onRelease func([]byte)
}

// NewBuffer returns a buffer holding a single reference.
func NewBuffer(data []byte, onRelease func([]byte)) *Buffer {
	b := &Buffer{
		data:      data,
		onRelease: onRelease,
	}
	b.refs.Store(1)
	return b
}

func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Len() int {
	return len(b.data)
}

func (b *Buffer) Refs() int32 {
	return b.refs.Load()
}

func (b *Buffer) Retain() {
	b.refs.Inc()
}

// TryRetain takes a reference unless the buffer was already handed back to its owner.
func (b *Buffer) TryRetain() bool {
	for {
		refs := b.refs.Load()
		if refs <= 0 {
			return false
		}
		if b.refs.CompareAndSwap(refs, refs+1) {
			return true
		}
	}
}

func (b *Buffer) Release() {
	switch refs := b.refs.Dec(); {
	case refs == 0:
		if b.onRelease != nil {
			b.onRelease(b.data)
		}
	case refs < 0:
		logger.Warnw("pixel buffer released too many times", nil, "refs", refs)
	}
}
