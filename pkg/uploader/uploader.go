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
	"path"
	"time"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/psrpc"
	"github.com/livekit/sensorcap/pkg/config"
	"github.com/livekit/sensorcap/pkg/stats"
	"github.com/livekit/sensorcap/pkg/types"
)

const (
	maxRetries = 5
	minDelay   = time.Millisecond * 100
	maxDelay   = time.Second * 5

	uploadTypeArchive = "archive"
	uploadTypeFiles   = "files"
)

// object is one local file bound for a storage key.
type object struct {
	localPath   string
	key         string
	contentType types.OutputType
	metadata    map[string]string
}

type store interface {
	put(ctx context.Context, obj *object) (location string, size int64, err error)
}

// destination is a store and the prefix applied to every key written to it.
type destination struct {
	store  store
	prefix string
}

// Uploader copies recording sessions to the configured storage, falling back to the backup storage.
type Uploader struct {
	primary *destination
	backup  *destination
	monitor *stats.Monitor
}

func New(conf, backup *config.StorageConfig, monitor *stats.Monitor) (*Uploader, error) {
	p, err := newDestination(conf)
	if err != nil {
		return nil, err
	}

	u := &Uploader{
		primary: p,
		monitor: monitor,
	}

	if backup != nil {
		b, err := newDestination(backup)
		if err != nil {
			logger.Errorw("failed to create backup uploader", err)
		} else {
			u.backup = b
		}
	}

	return u, nil
}

func newDestination(conf *config.StorageConfig) (*destination, error) {
	if conf == nil {
		return &destination{store: &localStore{}}, nil
	}

	var s store
	var err error
	switch {
	case conf.IsLocal():
		s = &localStore{}
	case conf.S3 != nil:
		s, err = newS3Store(conf.S3)
	case conf.GCP != nil:
		s, err = newGCPStore(conf.GCP)
	case conf.Azure != nil:
		s, err = newAzureStore(conf.Azure)
	default:
		s, err = newAliOSSStore(conf.AliOSS)
	}
	if err != nil {
		return nil, err
	}
	return &destination{store: s, prefix: conf.Prefix}, nil
}

// putAll writes every object to one destination, stopping at the first failure.
func (d *destination) putAll(ctx context.Context, objects []*object) ([]string, int64, error) {
	locations := make([]string, 0, len(objects))
	var total int64
	for _, obj := range objects {
		prefixed := *obj
		prefixed.key = path.Join(d.prefix, obj.key)

		location, size, err := d.store.put(ctx, &prefixed)
		if err != nil {
			return nil, 0, err
		}
		locations = append(locations, location)
		total += size
	}
	return locations, total, nil
}

// upload writes the whole set to the primary destination. When any object fails, the whole
// set goes to the backup destination so a session never ends up split across storages.
func (u *Uploader) upload(ctx context.Context, uploadType string, objects []*object) ([]string, int64, bool, error) {
	start := time.Now()
	locations, size, primaryErr := u.primary.putAll(ctx, objects)
	elapsed := float64(time.Since(start).Milliseconds())

	if primaryErr == nil {
		u.monitor.IncUploadCountSuccess(uploadType, elapsed)
		return locations, size, false, nil
	}

	u.monitor.IncUploadCountFailure(uploadType, elapsed)
	if u.backup == nil {
		return nil, 0, false, primaryErr
	}

	locations, size, backupErr := u.backup.putAll(ctx, objects)
	if backupErr != nil {
		return nil, 0, false, psrpc.NewErrorf(psrpc.InvalidArgument,
			"primary: %s\nbackup: %s", primaryErr.Error(), backupErr.Error())
	}

	logger.Warnw("primary upload failed, backup used", primaryErr, "objects", len(objects))
	u.monitor.IncBackupStorageWrites()
	return locations, size, true, nil
}
