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
	"fmt"
	"os"
	"path/filepath"

	"github.com/frostbyte73/core"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/sensorcap/pkg/frame"
	"github.com/livekit/sensorcap/pkg/types"
)

// frameWriter persists the frames of one recording session in arrival order.
// Only the writer goroutine touches the files; results are reported through callbacks.
type frameWriter struct {
	sensorName string
	dir        string

	opChan chan *frame.SensorFrame
	done   core.Fuse

	onWritten func(entry RecorderLogEntry)
	onFailed  func(err error)
}

func newFrameWriter(
	sensorName, dir string,
	queueSize int,
	onWritten func(RecorderLogEntry),
	onFailed func(error),
) *frameWriter {
	w := &frameWriter{
		sensorName: sensorName,
		dir:        dir,
		opChan:     make(chan *frame.SensorFrame, queueSize),
		onWritten:  onWritten,
		onFailed:   onFailed,
	}
	go w.run()
	return w
}

func rawFileName(ts frame.Timestamp, sensorName string) string {
	return fmt.Sprintf("%020d_%s%s", uint64(ts), sensorName, types.FileExtensionRaw)
}

// submit takes ownership of one reference to f.
func (w *frameWriter) submit(f *frame.SensorFrame) {
	w.opChan <- f
}

// drain stops accepting frames and blocks until every queued frame has been written.
func (w *frameWriter) drain() {
	close(w.opChan)
	<-w.done.Watch()
}

func (w *frameWriter) run() {
	defer w.done.Break()

	for f := range w.opChan {
		w.write(f)
		f.Release()
	}
}

func (w *frameWriter) write(f *frame.SensorFrame) {
	name := rawFileName(f.Timestamp, w.sensorName)
	localPath := filepath.Join(w.dir, name)

	if err := os.WriteFile(localPath, f.Pixels(), 0644); err != nil {
		err = errors.ErrWriteFailed(localPath, err)
		logger.Warnw("skipping frame", err, "sensor", w.sensorName, "timestamp", f.Timestamp)
		w.onFailed(err)
		return
	}

	w.onWritten(RecorderLogEntry{
		Timestamp:         f.Timestamp,
		FrameToOrigin:     f.FrameToOrigin,
		RelativeImagePath: name,
	})
}
