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

//go:build mage

package main

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/livekit/mageutil"
)

const (
	binDir     = "bin"
	binaryName = "sensorcap"
)

func Build() error {
	if err := os.MkdirAll(binDir, 0755); err != nil {
		return err
	}
	return mageutil.Run(context.Background(),
		fmt.Sprintf("go build -o %s ./cmd/server", path.Join(binDir, binaryName)),
	)
}

func Test() error {
	return mageutil.Run(context.Background(), "go test -race ./pkg/...")
}

// Record runs the service against the synthetic device with the given config file.
func Record(configFile string) error {
	if err := Build(); err != nil {
		return err
	}
	return mageutil.Run(context.Background(),
		fmt.Sprintf("%s --config %s", path.Join(binDir, binaryName), configFile),
	)
}

func Clean() error {
	return os.RemoveAll(binDir)
}
