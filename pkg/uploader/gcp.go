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

	"cloud.google.com/go/storage"
	"github.com/googleapis/gax-go/v2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/livekit/sensorcap/pkg/errors"
	lkstorage "github.com/livekit/storage"
)

const storageScope = "https://www.googleapis.com/auth/devstorage.read_write"

type gcpStore struct {
	bucket  *storage.BucketHandle
	baseURL string
}

func newGCPStore(conf *lkstorage.GCPConfig) (*gcpStore, error) {
	var opts []option.ClientOption
	if conf.CredentialsJSON != "" {
		jwtConfig, err := google.JWTConfigFromJSON([]byte(conf.CredentialsJSON), storageScope)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithTokenSource(jwtConfig.TokenSource(context.Background())))
	}

	httpClient, err := proxyClient(conf.ProxyConfig)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	return &gcpStore{
		bucket:  client.Bucket(conf.Bucket),
		baseURL: "https://" + conf.Bucket + ".storage.googleapis.com",
	}, nil
}

func (s *gcpStore) put(ctx context.Context, obj *object) (string, int64, error) {
	file, err := os.Open(obj.localPath)
	if err != nil {
		return "", 0, errors.ErrUploadFailed("GCP", err)
	}
	defer func() {
		_ = file.Close()
	}()

	// objects are written whole, so every attempt is idempotent
	wc := s.bucket.Object(obj.key).Retryer(
		storage.WithBackoff(gax.Backoff{
			Initial:    minDelay,
			Max:        maxDelay,
			Multiplier: 2,
		}),
		storage.WithMaxAttempts(maxRetries),
		storage.WithPolicy(storage.RetryAlways),
	).NewWriter(ctx)
	wc.ContentType = string(obj.contentType)
	wc.Metadata = obj.metadata

	size, err := io.Copy(wc, file)
	if err != nil {
		_ = wc.Close()
		return "", 0, errors.ErrUploadFailed("GCP", err)
	}
	if err = wc.Close(); err != nil {
		return "", 0, errors.ErrUploadFailed("GCP", err)
	}

	return s.baseURL + "/" + obj.key, size, nil
}
