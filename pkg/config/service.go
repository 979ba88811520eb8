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

	"gopkg.in/yaml.v3"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/utils"
	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/sensorcap/pkg/types"
)

const (
	defaultRecordingDir      = "/home/sensorcap/recordings"
	defaultQueueSize         = 32
	defaultSlowSendThreshold = 20 * time.Millisecond
	defaultPoseHistorySize   = 512
)

type ServiceConfig struct {
	BaseConfig `yaml:",inline"`

	HealthPort     int `yaml:"health_port"`     // status and health check port
	PrometheusPort int `yaml:"prometheus_port"` // prometheus handler port
}

func NewServiceConfig(confString string) (*ServiceConfig, error) {
	conf := &ServiceConfig{
		BaseConfig: BaseConfig{
			Logging: &logger.Config{
				Level: "info",
			},
		},
	}
	if confString != "" {
		if err := yaml.Unmarshal([]byte(confString), conf); err != nil {
			return nil, errors.ErrCouldNotParseConfig(err)
		}
	}

	// always create a new node ID
	conf.NodeID = utils.NewGuid("SC_")

	if err := conf.applyDefaults(); err != nil {
		return nil, err
	}

	if err := conf.initLogger("nodeID", conf.NodeID); err != nil {
		return nil, err
	}

	return conf, nil
}

func (c *BaseConfig) applyDefaults() error {
	if c.GroupType == "" {
		c.GroupType = types.GroupTypePhotoVideo
	}
	if !c.GroupType.IsValid() {
		return errors.ErrInvalidInput("group_type")
	}

	if c.Recording.Dir == "" {
		c.Recording.Dir = defaultRecordingDir
	}
	if c.Recording.QueueSize <= 0 {
		c.Recording.QueueSize = defaultQueueSize
	}
	if c.Recording.SlowSendThreshold <= 0 {
		c.Recording.SlowSendThreshold = defaultSlowSendThreshold
	}
	if c.Pose.HistorySize <= 0 {
		c.Pose.HistorySize = defaultPoseHistorySize
	}
	c.StorageConfig.applyDefaults()
	c.BackupConfig.applyDefaults()

	if _, err := c.GetSensorTypes(); err != nil {
		return err
	}
	if _, err := c.GetRecordedSensorTypes(); err != nil {
		return err
	}
	return nil
}

// GetSensorTypes returns the sensor types to stream, in registry order.
func (c *BaseConfig) GetSensorTypes() ([]types.SensorType, error) {
	groupSensors := types.GroupSensorTypes[c.GroupType]
	if len(c.Sensors) == 0 {
		return groupSensors, nil
	}
	return parseSensorTypes(c.Sensors, groupSensors, "sensors")
}

// GetRecordedSensorTypes returns the sensor types that get a recorder sink.
func (c *BaseConfig) GetRecordedSensorTypes() ([]types.SensorType, error) {
	streamed, err := c.GetSensorTypes()
	if err != nil {
		return nil, err
	}
	if len(c.Recording.Sensors) == 0 {
		return streamed, nil
	}
	return parseSensorTypes(c.Recording.Sensors, streamed, "recording.sensors")
}

func parseSensorTypes(names []string, allowed []types.SensorType, field string) ([]types.SensorType, error) {
	requested := make(map[types.SensorType]bool)
	for _, name := range names {
		s, err := types.ParseSensorType(name)
		if err != nil {
			return nil, errors.ErrInvalidInput(field)
		}
		requested[s] = true
	}

	res := make([]types.SensorType, 0, len(requested))
	for _, s := range allowed {
		if requested[s] {
			res = append(res, s)
			delete(requested, s)
		}
	}
	if len(requested) > 0 {
		return nil, errors.ErrInvalidInput(field)
	}
	return res, nil
}
