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
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/sensorcap/pkg/frame"
	"github.com/livekit/sensorcap/pkg/types"
)

type collector struct {
	mu     sync.Mutex
	name   string
	order  *[]string
	frames []*frame.SensorFrame
}

func (c *collector) Send(f *frame.SensorFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	if c.order != nil {
		*c.order = append(*c.order, c.name)
	}
}

func newTestFrame(ts frame.Timestamp, data []byte, pose frame.Float4x4) *frame.SensorFrame {
	return frame.NewSensorFrame(types.SensorTypePhotoVideo, ts, pose, true, frame.NewBuffer(data, nil), nil)
}

func listDir(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestGroupSend(t *testing.T) {
	var order []string
	a := &collector{name: "a", order: &order}
	b := &collector{name: "b", order: &order}
	depth := &collector{name: "depth", order: &order}

	g := NewGroup(a)
	g.Add(b)
	g.Add(Filter(types.SensorTypeLongThrowToFDepth, depth))
	require.Equal(t, 3, g.Len())

	f := newTestFrame(1, nil, frame.Identity())
	g.Send(f)

	require.Equal(t, []string{"a", "b"}, order)
	require.Len(t, depth.frames, 0)

	g.Send(frame.NewSensorFrame(types.SensorTypeLongThrowToFDepth, 2, frame.Identity(), true, nil, nil))
	require.Equal(t, []string{"a", "b", "a", "b", "depth"}, order)
}

func TestRecorderSinkSession(t *testing.T) {
	dir := t.TempDir()
	s := NewRecorderSink("PhotoVideo", WithQueueSize(2))

	require.NoError(t, s.Start(dir))
	require.ErrorIs(t, s.Start(dir), errors.ErrSessionActive)

	const n = 10
	for i := 0; i < n; i++ {
		data := make([]byte, 100+i)
		s.Send(newTestFrame(frame.Timestamp(1000+i), data, frame.Identity()))
	}
	require.NoError(t, s.Stop())
	require.NoError(t, s.Err())

	entries, err := ReadManifest(filepath.Join(dir, "PhotoVideo.csv"))
	require.NoError(t, err)
	require.Len(t, entries, n)
	for i, entry := range entries {
		require.Equal(t, frame.Timestamp(1000+i), entry.Timestamp)
		require.Equal(t, frame.Identity(), entry.FrameToOrigin)

		info, err := os.Stat(filepath.Join(dir, entry.RelativeImagePath))
		require.NoError(t, err)
		require.Equal(t, int64(100+i), info.Size())
	}
	require.Equal(t, "00000000000000001000_PhotoVideo.raw", entries[0].RelativeImagePath)

	files := s.ReportArchiveSourceFiles()
	require.Len(t, files, n+1)
	require.Equal(t, "PhotoVideo.csv", files[0])
	require.Equal(t, entries[n-1].RelativeImagePath, files[n])

	// stopped sinks ignore frames
	s.Send(newTestFrame(5000, []byte{1}, frame.Identity()))
	require.Len(t, listDir(t, dir), n+1)
}

func TestManifestHeader(t *testing.T) {
	dir := t.TempDir()
	s := NewRecorderSink("LongThrowToFDepth")
	require.NoError(t, s.Start(dir))
	require.NoError(t, s.Stop())

	b, err := os.ReadFile(filepath.Join(dir, "LongThrowToFDepth.csv"))
	require.NoError(t, err)
	require.Equal(t,
		"Timestamp,ImageFileName,"+
			"FrameToOrigin.m11,FrameToOrigin.m12,FrameToOrigin.m13,FrameToOrigin.m14,"+
			"FrameToOrigin.m21,FrameToOrigin.m22,FrameToOrigin.m23,FrameToOrigin.m24,"+
			"FrameToOrigin.m31,FrameToOrigin.m32,FrameToOrigin.m33,FrameToOrigin.m34,"+
			"FrameToOrigin.m41,FrameToOrigin.m42,FrameToOrigin.m43,FrameToOrigin.m44\n",
		string(b),
	)
}

func TestSendWithoutSession(t *testing.T) {
	dir := t.TempDir()
	released := atomic.NewInt32(0)

	s := NewRecorderSink("PhotoVideo")
	f := frame.NewSensorFrame(types.SensorTypePhotoVideo, 1, frame.Identity(), true,
		frame.NewBuffer([]byte{1, 2, 3}, func([]byte) { released.Inc() }), nil)
	s.Send(f)
	f.Release()

	require.Empty(t, listDir(t, dir))
	require.Equal(t, int32(1), released.Load())
	require.Equal(t, []string{"PhotoVideo.csv"}, s.ReportArchiveSourceFiles())
}

func TestStopWithoutStart(t *testing.T) {
	dir := t.TempDir()
	s := NewRecorderSink("PhotoVideo")
	require.NoError(t, s.Stop())
	require.Empty(t, listDir(t, dir))

	require.NoError(t, s.Start(dir))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	require.Equal(t, []string{"PhotoVideo.csv"}, listDir(t, dir))
}

func TestPoseRoundTrip(t *testing.T) {
	for name, pose := range map[string]frame.Float4x4{
		"all ones":  frame.Fill(1),
		"all zeros": frame.Fill(0),
		"mixed":     {0.1, -2.5, 3, 1e-7, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15.25},
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			s := NewRecorderSink("PhotoVideo")
			require.NoError(t, s.Start(dir))
			s.Send(newTestFrame(42, []byte{0}, pose))
			require.NoError(t, s.Stop())

			entries, err := ReadManifest(filepath.Join(dir, "PhotoVideo.csv"))
			require.NoError(t, err)
			require.Len(t, entries, 1)
			require.Equal(t, pose, entries[0].FrameToOrigin)
		})
	}
}

func TestConcurrentSends(t *testing.T) {
	dir := t.TempDir()
	s := NewRecorderSink("PhotoVideo", WithQueueSize(4))
	require.NoError(t, s.Start(dir))

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				f := newTestFrame(frame.Timestamp(w*perWorker+i+1), []byte{byte(w), byte(i)}, frame.Identity())
				s.Send(f)
				f.Release()
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, s.Stop())

	entries, err := ReadManifest(filepath.Join(dir, "PhotoVideo.csv"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	require.Equal(t, workers*perWorker, len(entries)+s.Dropped())

	// rows stay in acceptance order, which never goes backwards
	for i := 1; i < len(entries); i++ {
		require.Greater(t, entries[i].Timestamp, entries[i-1].Timestamp, "row %d", i)
	}
	require.Len(t, listDir(t, dir), len(entries)+1)
}

func TestConcurrentSendsInArrivalOrder(t *testing.T) {
	dir := t.TempDir()
	s := NewRecorderSink("PhotoVideo", WithQueueSize(4))
	require.NoError(t, s.Start(dir))

	const workers = 8
	const perWorker = 25

	// producers stamp frames from a shared clock as they hand them over
	var clockMu sync.Mutex
	var clock frame.Timestamp

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				clockMu.Lock()
				clock++
				f := newTestFrame(clock, []byte{byte(w), byte(i)}, frame.Identity())
				s.Send(f)
				clockMu.Unlock()
				f.Release()
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, s.Stop())
	require.Zero(t, s.Dropped())

	entries, err := ReadManifest(filepath.Join(dir, "PhotoVideo.csv"))
	require.NoError(t, err)

	got := make([]uint64, 0, len(entries))
	for _, entry := range entries {
		got = append(got, uint64(entry.Timestamp))
	}
	expected := make([]uint64, 0, workers*perWorker)
	for i := 1; i <= workers*perWorker; i++ {
		expected = append(expected, uint64(i))
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Fatalf("unexpected timestamps (-want +got):\n%s", diff)
	}
}

func TestOutOfOrderFramesDropped(t *testing.T) {
	dir := t.TempDir()
	released := atomic.NewInt32(0)
	onRelease := func([]byte) { released.Inc() }

	s := NewRecorderSink("PhotoVideo")
	require.NoError(t, s.Start(dir))

	// one unfiltered sink fed by several sensors
	for _, in := range []struct {
		sensorType types.SensorType
		ts         frame.Timestamp
	}{
		{types.SensorTypePhotoVideo, 200},
		{types.SensorTypeLongThrowToFDepth, 100},
		{types.SensorTypePhotoVideo, 150},
		{types.SensorTypeLongThrowToFDepth, 200},
		{types.SensorTypePhotoVideo, 300},
	} {
		f := frame.NewSensorFrame(in.sensorType, in.ts, frame.Identity(), true,
			frame.NewBuffer([]byte{1}, onRelease), nil)
		s.Send(f)
		f.Release()
	}
	require.NoError(t, s.Stop())
	require.Equal(t, 3, s.Dropped())
	require.Equal(t, int32(5), released.Load())

	entries, err := ReadManifest(filepath.Join(dir, "PhotoVideo.csv"))
	require.NoError(t, err)
	got := make([]frame.Timestamp, 0, len(entries))
	for _, entry := range entries {
		got = append(got, entry.Timestamp)
	}
	if diff := cmp.Diff([]frame.Timestamp{200, 300}, got); diff != "" {
		t.Fatalf("unexpected timestamps (-want +got):\n%s", diff)
	}
	require.Len(t, listDir(t, dir), 3)

	// a new session starts over
	require.NoError(t, s.Start(dir))
	s.Send(newTestFrame(10, []byte{1}, frame.Identity()))
	require.NoError(t, s.Stop())
	require.Zero(t, s.Dropped())
	require.Len(t, s.Entries(), 1)
}

func TestWriteFailureSkipsFrame(t *testing.T) {
	dir := t.TempDir()
	s := NewRecorderSink("PhotoVideo")
	require.NoError(t, s.Start(dir))

	// a directory in place of the raw file makes that one write fail
	require.NoError(t, os.Mkdir(filepath.Join(dir, rawFileName(2, "PhotoVideo")), 0755))

	for ts := frame.Timestamp(1); ts <= 3; ts++ {
		s.Send(newTestFrame(ts, []byte{1, 2}, frame.Identity()))
	}
	require.NoError(t, s.Stop())
	require.Error(t, s.Err())

	entries := s.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, frame.Timestamp(1), entries[0].Timestamp)
	require.Equal(t, frame.Timestamp(3), entries[1].Timestamp)
}

func TestSessionRestart(t *testing.T) {
	s := NewRecorderSink("PhotoVideo")
	first := &frame.CameraIntrinsics{ImageWidth: 640, ImageHeight: 480}
	second := &frame.CameraIntrinsics{ImageWidth: 1280, ImageHeight: 720}

	dir1 := t.TempDir()
	require.NoError(t, s.Start(dir1))
	require.Nil(t, s.GetCameraIntrinsics())
	s.Send(frame.NewSensorFrame(types.SensorTypePhotoVideo, 1, frame.Identity(), true, nil, first))
	s.Send(frame.NewSensorFrame(types.SensorTypePhotoVideo, 2, frame.Identity(), true, nil, second))
	require.NoError(t, s.Stop())
	require.Equal(t, first, s.GetCameraIntrinsics())
	require.Len(t, s.Entries(), 2)

	dir2 := t.TempDir()
	require.NoError(t, s.Start(dir2))
	s.Send(frame.NewSensorFrame(types.SensorTypePhotoVideo, 3, frame.Identity(), true, nil, second))
	require.NoError(t, s.Stop())
	require.Equal(t, second, s.GetCameraIntrinsics())

	entries, err := ReadManifest(filepath.Join(dir2, "PhotoVideo.csv"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, frame.Timestamp(3), entries[0].Timestamp)
}

func TestFramesReleasedAfterWrite(t *testing.T) {
	dir := t.TempDir()
	released := atomic.NewInt32(0)

	s := NewRecorderSink("PhotoVideo")
	require.NoError(t, s.Start(dir))
	for ts := frame.Timestamp(1); ts <= 5; ts++ {
		f := frame.NewSensorFrame(types.SensorTypePhotoVideo, ts, frame.Identity(), true,
			frame.NewBuffer([]byte{1}, func([]byte) { released.Inc() }), nil)
		s.Send(f)
		f.Release()
	}
	require.NoError(t, s.Stop())
	require.Equal(t, int32(5), released.Load())
}
