package pose

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livekit/sensorcap/pkg/frame"
	"github.com/livekit/sensorcap/pkg/types"
)

func translation(x, y, z float32) frame.Float4x4 {
	m := frame.Identity()
	m[3], m[7], m[11] = x, y, z
	return m
}

func TestTrackerLookup(t *testing.T) {
	tr := NewTracker(3, nil)

	_, ok := tr.PoseAt(types.SensorTypePhotoVideo, 100)
	require.False(t, ok)

	tr.Update(100, translation(1, 0, 0))
	tr.Update(200, translation(2, 0, 0))

	_, ok = tr.PoseAt(types.SensorTypePhotoVideo, 99)
	require.False(t, ok)

	m, ok := tr.PoseAt(types.SensorTypePhotoVideo, 100)
	require.True(t, ok)
	require.Equal(t, translation(1, 0, 0), m)

	m, ok = tr.PoseAt(types.SensorTypePhotoVideo, 199)
	require.True(t, ok)
	require.Equal(t, translation(1, 0, 0), m)

	m, ok = tr.PoseAt(types.SensorTypePhotoVideo, 1000)
	require.True(t, ok)
	require.Equal(t, translation(2, 0, 0), m)

	_, ok = tr.PoseAt(types.SensorTypeUndefined, 1000)
	require.False(t, ok)
}

func TestTrackerHistoryBound(t *testing.T) {
	tr := NewTracker(2, nil)
	tr.Update(100, translation(1, 0, 0))
	tr.Update(200, translation(2, 0, 0))
	tr.Update(300, translation(3, 0, 0))

	// oldest sample evicted
	_, ok := tr.PoseAt(types.SensorTypePhotoVideo, 150)
	require.False(t, ok)

	// out of order samples are ignored
	tr.Update(250, translation(9, 0, 0))
	m, ok := tr.PoseAt(types.SensorTypePhotoVideo, 260)
	require.True(t, ok)
	require.Equal(t, translation(2, 0, 0), m)
}

func TestTrackerExtrinsics(t *testing.T) {
	tr := NewTracker(4, map[types.SensorType]frame.Float4x4{
		types.SensorTypeVisibleLightLeftLeft: translation(0, 0, 1),
	})
	tr.Update(10, translation(1, 0, 0))

	m, ok := tr.PoseAt(types.SensorTypeVisibleLightLeftLeft, 10)
	require.True(t, ok)
	require.Equal(t, translation(1, 0, 1), m)

	m, ok = tr.PoseAt(types.SensorTypeVisibleLightRightRight, 10)
	require.True(t, ok)
	require.Equal(t, translation(1, 0, 0), m)
}

func TestStatic(t *testing.T) {
	m, ok := Static(frame.Fill(1)).PoseAt(types.SensorTypePhotoVideo, 5)
	require.True(t, ok)
	require.Equal(t, frame.Fill(1), m)
}
