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

package recorder

import (
	"archive/tar"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/livekit/sensorcap/pkg/catalog"
	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/sensorcap/pkg/frame"
	"github.com/livekit/sensorcap/pkg/sink"
)

// Descriptor is written next to the manifests of every session.
type Descriptor struct {
	SessionID string             `json:"session_id"`
	GroupType string             `json:"group_type"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at"`
	Sensors   []SensorDescriptor `json:"sensors"`
}

type SensorDescriptor struct {
	Name       string                  `json:"name"`
	Manifest   string                  `json:"manifest"`
	FrameCount int                     `json:"frame_count"`
	Intrinsics *frame.CameraIntrinsics `json:"intrinsics,omitempty"`
}

func writeDescriptor(localPath string, info *catalog.Session, sinks []*sink.RecorderSink) error {
	d := &Descriptor{
		SessionID: info.ID,
		GroupType: info.GroupType,
		StartedAt: info.StartedAt,
		EndedAt:   info.EndedAt,
	}
	for _, rs := range sinks {
		files := rs.ReportArchiveSourceFiles()
		d.Sensors = append(d.Sensors, SensorDescriptor{
			Name:       rs.GetSensorName(),
			Manifest:   files[0],
			FrameCount: len(files) - 1,
			Intrinsics: rs.GetCameraIntrinsics(),
		})
	}

	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	if err = os.WriteFile(localPath, b, 0644); err != nil {
		return errors.ErrWriteFailed(localPath, err)
	}
	return nil
}

// writeArchive bundles files, relative to dir, into a tar at archivePath and returns its size.
func writeArchive(archivePath, dir string, files []string) (int64, error) {
	f, err := os.Create(archivePath)
	if err != nil {
		return 0, err
	}

	tw := tar.NewWriter(f)
	for _, name := range files {
		if err = addFile(tw, dir, name); err != nil {
			_ = f.Close()
			return 0, err
		}
	}
	if err = tw.Close(); err != nil {
		_ = f.Close()
		return 0, err
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, err
	}
	return stat.Size(), f.Close()
}

func addFile(tw *tar.Writer, dir, name string) error {
	src, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer src.Close()

	stat, err := src.Stat()
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(stat, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(name)

	if err = tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, src)
	return err
}
