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

	"github.com/livekit/storage"
)

type StorageConfig struct {
	Prefix string `yaml:"prefix"` // prefix applied to all filenames

	S3     *storage.S3Config     `yaml:"s3"`     // upload to s3
	Azure  *storage.AzureConfig  `yaml:"azure"`  // upload to azure
	GCP    *storage.GCPConfig    `yaml:"gcp"`    // upload to gcp
	AliOSS *storage.AliOSSConfig `yaml:"alioss"` // upload to alibaba cloud oss
}

func (s *StorageConfig) applyDefaults() {
	if s == nil || s.S3 == nil {
		return
	}
	if s.S3.MaxRetries == 0 {
		s.S3.MaxRetries = 5
	}
	if s.S3.MaxRetryDelay == 0 {
		s.S3.MaxRetryDelay = time.Second * 5
	}
	if s.S3.MinRetryDelay == 0 {
		s.S3.MinRetryDelay = time.Millisecond * 100
	}
}

func (s *StorageConfig) IsLocal() bool {
	return s.S3 == nil && s.GCP == nil && s.Azure == nil && s.AliOSS == nil
}
