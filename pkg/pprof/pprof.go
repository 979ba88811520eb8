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

package pprof

import (
	"bytes"
	"context"
	"runtime/pprof"
	"time"

	"github.com/livekit/sensorcap/pkg/errors"
)

const (
	cpuProfileName     = "cpu"
	defaultCPUDuration = 30 * time.Second
)

// GetProfileData captures a cpu profile for the given duration, or snapshots any other runtime profile.
func GetProfileData(ctx context.Context, profileName string, duration time.Duration, debug int) ([]byte, error) {
	if profileName == cpuProfileName {
		return getCPUProfileData(ctx, duration)
	}
	return getSnapshot(profileName, debug)
}

func getCPUProfileData(ctx context.Context, duration time.Duration) ([]byte, error) {
	if duration <= 0 {
		duration = defaultCPUDuration
	}

	buf := &bytes.Buffer{}
	if err := pprof.StartCPUProfile(buf); err != nil {
		return nil, err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		go pprof.StopCPUProfile()
		return nil, ctx.Err()
	case <-timer.C:
	}

	pprof.StopCPUProfile()
	return buf.Bytes(), nil
}

func getSnapshot(profileName string, debug int) ([]byte, error) {
	p := pprof.Lookup(profileName)
	if p == nil {
		return nil, errors.ErrProfileNotFound
	}

	buf := &bytes.Buffer{}
	if err := p.WriteTo(buf, debug); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
