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
	"time"

	"github.com/livekit/sensorcap/pkg/types"
)

// ticksPerSecond is the resolution of frame timestamps (100ns ticks).
const ticksPerSecond = 10_000_000

// unixEpochTicks is the number of ticks between 1601-01-01 and 1970-01-01.
const unixEpochTicks = 116444736000000000

// Timestamp counts 100ns ticks since 1601-01-01 UTC.
type Timestamp uint64

func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp(uint64(t.UnixNano()/100) + unixEpochTicks)
}

func (t Timestamp) Time() time.Time {
	ticks := int64(uint64(t) - unixEpochTicks)
	return time.Unix(ticks/ticksPerSecond, (ticks%ticksPerSecond)*100).UTC()
}

// CameraIntrinsics describes the projection model of the camera that produced a frame.
type CameraIntrinsics struct {
	FocalLength          [2]float32 `json:"focal_length"`
	PrincipalPoint       [2]float32 `json:"principal_point"`
	RadialDistortion     [3]float32 `json:"radial_distortion"`
	TangentialDistortion [2]float32 `json:"tangential_distortion"`
	ImageWidth           uint32     `json:"image_width"`
	ImageHeight          uint32     `json:"image_height"`
}

// SensorFrame is a single captured image. It must not be modified once created.
type SensorFrame struct {
	SensorType types.SensorType
	Timestamp  Timestamp

	// FrameToOrigin maps sensor coordinates to the world origin at capture time.
	// Only meaningful when HasPose is set.
	FrameToOrigin Float4x4
	HasPose       bool

	Width   uint32
	Height  uint32
	Subtype types.Subtype

	// Intrinsics is optional.
	Intrinsics *CameraIntrinsics

	buffer *Buffer
}

func NewSensorFrame(
	sensorType types.SensorType,
	ts Timestamp,
	frameToOrigin Float4x4,
	hasPose bool,
	buffer *Buffer,
	intrinsics *CameraIntrinsics,
) *SensorFrame {
	return &SensorFrame{
		SensorType:    sensorType,
		Timestamp:     ts,
		FrameToOrigin: frameToOrigin,
		HasPose:       hasPose,
		Intrinsics:    intrinsics,
		buffer:        buffer,
	}
}

// Pixels returns the pixel bytes. The slice is shared and must be treated as read only.
func (f *SensorFrame) Pixels() []byte {
	if f == nil || f.buffer == nil {
		return nil
	}
	return f.buffer.Bytes()
}

// Retain takes an additional reference on the pixel buffer for consumers that outlive the callback.
func (f *SensorFrame) Retain() *SensorFrame {
	if f != nil && f.buffer != nil {
		f.buffer.Retain()
	}
	return f
}

// TryRetain is Retain for frames that may be concurrently released by their last holder.
// It reports false when the pixels are already gone.
func (f *SensorFrame) TryRetain() bool {
	if f == nil {
		return false
	}
	if f.buffer == nil {
		return true
	}
	return f.buffer.TryRetain()
}

// Release drops one reference on the pixel buffer.
func (f *SensorFrame) Release() {
	if f != nil && f.buffer != nil {
		f.buffer.Release()
	}
}
