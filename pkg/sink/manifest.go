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
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/livekit/sensorcap/pkg/frame"
)

type RecorderLogEntry struct {
	Timestamp         frame.Timestamp
	FrameToOrigin     frame.Float4x4
	RelativeImagePath string
}

var manifestHeader = func() []string {
	header := []string{"Timestamp", "ImageFileName"}
	for row := 1; row <= 4; row++ {
		for col := 1; col <= 4; col++ {
			header = append(header, fmt.Sprintf("FrameToOrigin.m%d%d", row, col))
		}
	}
	return header
}()

func (e RecorderLogEntry) record() []string {
	rec := make([]string, 0, len(manifestHeader))
	rec = append(rec, strconv.FormatUint(uint64(e.Timestamp), 10), e.RelativeImagePath)
	for _, v := range e.FrameToOrigin {
		rec = append(rec, strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	return rec
}

func writeManifest(localPath string, entries []RecorderLogEntry) error {
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err = w.Write(manifestHeader); err != nil {
		_ = f.Close()
		return err
	}
	for _, entry := range entries {
		if err = w.Write(entry.record()); err != nil {
			_ = f.Close()
			return err
		}
	}

	w.Flush()
	if err = w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadManifest parses a manifest written by a RecorderSink.
func ReadManifest(localPath string) ([]RecorderLogEntry, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: missing header", localPath)
	}

	entries := make([]RecorderLogEntry, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(manifestHeader) {
			return nil, fmt.Errorf("%s: row %d has %d fields", localPath, i+1, len(rec))
		}

		ts, err := strconv.ParseUint(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", localPath, i+1, err)
		}
		entry := RecorderLogEntry{
			Timestamp:         frame.Timestamp(ts),
			RelativeImagePath: rec[1],
		}
		for j := range entry.FrameToOrigin {
			v, err := strconv.ParseFloat(rec[j+2], 32)
			if err != nil {
				return nil, fmt.Errorf("%s: row %d: %w", localPath, i+1, err)
			}
			entry.FrameToOrigin[j] = float32(v)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
