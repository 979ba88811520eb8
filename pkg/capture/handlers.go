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

package capture

import (
	"github.com/linkdata/deadlock"
)

// Handlers is a frame-arrived registration table for Reader implementations.
type Handlers struct {
	mu       deadlock.RWMutex
	next     Token
	handlers map[Token]FrameArrivedHandler
	order    []Token
}

func (h *Handlers) Add(handler FrameArrivedHandler) Token {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.handlers == nil {
		h.handlers = make(map[Token]FrameArrivedHandler)
	}
	h.next++
	h.handlers[h.next] = handler
	h.order = append(h.order, h.next)
	return h.next
}

func (h *Handlers) Remove(token Token) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.handlers[token]; !ok {
		return
	}
	delete(h.handlers, token)
	for i, t := range h.order {
		if t == token {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

func (h *Handlers) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers)
}

// Emit delivers f to every handler. Each handler receives its own buffer reference;
// the frame is released when nobody is registered.
func (h *Handlers) Emit(f *RawFrame) {
	h.mu.RLock()
	handlers := make([]FrameArrivedHandler, 0, len(h.order))
	for _, t := range h.order {
		handlers = append(handlers, h.handlers[t])
	}
	h.mu.RUnlock()

	if len(handlers) == 0 {
		if f.Buffer != nil {
			f.Buffer.Release()
		}
		return
	}

	if f.Buffer != nil {
		for range len(handlers) - 1 {
			f.Buffer.Retain()
		}
	}
	for _, handler := range handlers {
		handler(f)
	}
}
