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
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livekit/sensorcap/pkg/catalog"
	"github.com/livekit/sensorcap/pkg/config"
	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/sensorcap/pkg/frame"
	"github.com/livekit/sensorcap/pkg/types"
	"github.com/livekit/sensorcap/pkg/uploader"
)

var recordedSensors = []types.SensorType{
	types.SensorTypeLongThrowToFDepth,
	types.SensorTypeVisibleLightLeftLeft,
}

func sendFrames(r *Recorder, sensorType types.SensorType, n int, intrinsics *frame.CameraIntrinsics) {
	for i := 1; i <= n; i++ {
		f := frame.NewSensorFrame(sensorType, frame.Timestamp(i), frame.Identity(), true,
			frame.NewBuffer(make([]byte, 8), nil), intrinsics)
		r.SinkGroup().Send(f)
		f.Release()
	}
}

func readArchive(t *testing.T, archivePath string) []string {
	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	var names []string
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	return names
}

func TestRecorderSession(t *testing.T) {
	dir := t.TempDir()
	r := New(config.RecordingConfig{Dir: dir, KeepLocal: true}, types.GroupTypeResearchModeSensors, recordedSensors)

	id, err := r.Start()
	require.NoError(t, err)
	require.Equal(t, id, r.SessionID())

	_, err = r.Start()
	require.ErrorIs(t, err, errors.ErrSessionActive)

	intrinsics := &frame.CameraIntrinsics{ImageWidth: 640, ImageHeight: 480}
	sendFrames(r, types.SensorTypeLongThrowToFDepth, 3, nil)
	sendFrames(r, types.SensorTypeVisibleLightLeftLeft, 2, intrinsics)
	// not recorded
	sendFrames(r, types.SensorTypeShortThrowToFDepth, 4, nil)

	info, err := r.Stop(context.Background())
	require.NoError(t, err)
	require.Empty(t, r.SessionID())
	require.Equal(t, id, info.ID)
	require.Equal(t, 5, info.FrameCount)
	require.Equal(t, []string{"LongThrowToFDepth", "VisibleLightLeftLeft"}, info.Sensors)
	require.Equal(t, id, filepath.Base(info.Folder)[len(sessionTimeFormat)+1:])

	files, err := os.ReadDir(info.Folder)
	require.NoError(t, err)
	require.Len(t, files, 3+2+2+1)

	b, err := os.ReadFile(filepath.Join(info.Folder, descriptorFilename))
	require.NoError(t, err)
	var d Descriptor
	require.NoError(t, json.Unmarshal(b, &d))
	require.Equal(t, id, d.SessionID)
	require.Equal(t, "research_mode_sensors", d.GroupType)
	require.Len(t, d.Sensors, 2)
	require.Equal(t, "LongThrowToFDepth.csv", d.Sensors[0].Manifest)
	require.Equal(t, 3, d.Sensors[0].FrameCount)
	require.Nil(t, d.Sensors[0].Intrinsics)
	require.Equal(t, intrinsics, d.Sensors[1].Intrinsics)

	_, err = r.Stop(context.Background())
	require.ErrorIs(t, err, errors.ErrNoSession)
}

func TestRecorderArchive(t *testing.T) {
	dir := t.TempDir()
	storageDir := t.TempDir()
	u, err := uploader.New(&config.StorageConfig{Prefix: storageDir}, nil, nil)
	require.NoError(t, err)
	db, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer db.Close()

	r := New(
		config.RecordingConfig{Dir: dir, Archive: true},
		types.GroupTypeResearchModeSensors,
		recordedSensors,
		WithUploader(u),
		WithCatalog(db),
	)

	id, err := r.Start()
	require.NoError(t, err)
	sendFrames(r, types.SensorTypeLongThrowToFDepth, 2, nil)
	info, err := r.Stop(context.Background())
	require.NoError(t, err)

	archiveName := filepath.Base(info.Folder) + ".tar"
	require.Equal(t, filepath.Join(storageDir, archiveName), info.ArchiveLocation)
	require.NotZero(t, info.ArchiveSize)

	names := readArchive(t, info.ArchiveLocation)
	sort.Strings(names)
	require.Equal(t, []string{
		"00000000000000000001_LongThrowToFDepth.raw",
		"00000000000000000002_LongThrowToFDepth.raw",
		"LongThrowToFDepth.csv",
		"VisibleLightLeftLeft.csv",
		"session.json",
	}, names)

	// local copies are removed after upload
	_, err = os.Stat(info.Folder)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, archiveName))
	require.True(t, os.IsNotExist(err))

	recorded, err := db.GetSession(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, recorded)
	require.Equal(t, 2, recorded.FrameCount)
	require.Equal(t, info.ArchiveLocation, recorded.ArchiveLocation)
	require.Empty(t, recorded.Error)
}

func TestRecorderUploadFiles(t *testing.T) {
	storageDir := t.TempDir()
	u, err := uploader.New(&config.StorageConfig{Prefix: storageDir}, nil, nil)
	require.NoError(t, err)

	r := New(
		config.RecordingConfig{Dir: t.TempDir()},
		types.GroupTypeResearchModeSensors,
		recordedSensors,
		WithUploader(u),
	)

	_, err = r.Start()
	require.NoError(t, err)
	sendFrames(r, types.SensorTypeVisibleLightLeftLeft, 2, nil)
	info, err := r.Stop(context.Background())
	require.NoError(t, err)
	require.Empty(t, info.Error)

	remote := filepath.Join(storageDir, filepath.Base(info.Folder))
	require.Equal(t, remote, info.ArchiveLocation)
	require.NotZero(t, info.ArchiveSize)

	entries, err := os.ReadDir(remote)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	require.Equal(t, []string{
		"00000000000000000001_VisibleLightLeftLeft.raw",
		"00000000000000000002_VisibleLightLeftLeft.raw",
		"LongThrowToFDepth.csv",
		"VisibleLightLeftLeft.csv",
		"session.json",
	}, names)

	_, err = os.Stat(info.Folder)
	require.True(t, os.IsNotExist(err))
}

func TestRecorderMaxDuration(t *testing.T) {
	r := New(
		config.RecordingConfig{Dir: t.TempDir(), KeepLocal: true, MaxDuration: 50 * time.Millisecond},
		types.GroupTypePhotoVideo,
		[]types.SensorType{types.SensorTypePhotoVideo},
	)

	_, err := r.Start()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return r.SessionID() == ""
	}, 5*time.Second, 10*time.Millisecond)

	_, err = r.Stop(context.Background())
	require.ErrorIs(t, err, errors.ErrNoSession)

	// a new session can be started afterwards
	_, err = r.Start()
	require.NoError(t, err)
	_, err = r.Stop(context.Background())
	require.NoError(t, err)
}
