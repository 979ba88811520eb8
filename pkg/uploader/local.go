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

package uploader

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/livekit/sensorcap/pkg/errors"
)

// localStore copies objects to a directory tree; keys are local paths and metadata is dropped.
type localStore struct{}

func (s *localStore) put(ctx context.Context, obj *object) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, errors.ErrUploadFailed("local", err)
	}

	src, err := os.Open(obj.localPath)
	if err != nil {
		return "", 0, errors.ErrUploadFailed("local", err)
	}
	defer func() {
		_ = src.Close()
	}()

	dst := filepath.FromSlash(obj.key)
	if dir := filepath.Dir(dst); dir != "." {
		if err = os.MkdirAll(dir, 0755); err != nil {
			return "", 0, errors.ErrUploadFailed("local", err)
		}
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", 0, errors.ErrUploadFailed("local", err)
	}
	size, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, errors.ErrUploadFailed("local", err)
	}

	return dst, size, nil
}
