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

package config

import (
	"time"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/sensorcap/pkg/types"
)

type BaseConfig struct {
	NodeID string // do not supply - will be overwritten

	// optional
	Logging     *logger.Config  `yaml:"logging"`      // logging config
	GroupType   types.GroupType `yaml:"group_type"`   // photo_video or research_mode_sensors
	Sensors     []string        `yaml:"sensors"`      // sensor types to stream, defaults to every sensor of the group
	CatalogPath string          `yaml:"catalog_path"` // sqlite session catalog, disabled when empty

	Recording     RecordingConfig `yaml:"recording"`          // recording sink settings
	StorageConfig *StorageConfig  `yaml:"storage,omitempty"` // archive upload config
	BackupConfig  *StorageConfig  `yaml:"backup,omitempty"`  // backup config, for storage failures

	Synthetic *SyntheticConfig `yaml:"synthetic,omitempty"` // render test patterns instead of opening hardware
	Pose      PoseConfig       `yaml:"pose"`                // pose tracker settings
}

type RecordingConfig struct {
	Dir               string        `yaml:"dir"`                 // parent directory of recording sessions
	Sensors           []string      `yaml:"sensors"`             // sensor types to record, defaults to every streamed sensor
	QueueSize         int           `yaml:"queue_size"`          // frames buffered per sensor before Send blocks
	SlowSendThreshold time.Duration `yaml:"slow_send_threshold"` // Send calls slower than this are reported
	MaxDuration       time.Duration `yaml:"max_duration"`        // stop recording after this long, 0 to disable
	Archive           bool          `yaml:"archive"`             // tar and upload each session on stop
	KeepLocal         bool          `yaml:"keep_local"`          // keep session files after a successful upload
}

type SyntheticConfig struct {
	Sources []SyntheticSource `yaml:"sources"` // defaults to the sources of the configured group type
}

type SyntheticSource struct {
	ID        string  `yaml:"id"`
	Kind      string  `yaml:"kind"`
	Subtype   string  `yaml:"subtype"`
	Width     uint32  `yaml:"width"`
	Height    uint32  `yaml:"height"`
	FrameRate float64 `yaml:"frame_rate"`
}

type PoseConfig struct {
	HistorySize int                    `yaml:"history_size"` // device poses kept for timestamp lookups
	Extrinsics  map[string][16]float32 `yaml:"extrinsics"`   // sensor to device transforms, row-major
}

func (c *BaseConfig) initLogger(values ...interface{}) error {
	zl, err := logger.NewZapLogger(c.Logging)
	if err != nil {
		return err
	}

	l := zl.WithValues(values...)
	logger.SetLogger(l, "sensorcap")
	return nil
}
