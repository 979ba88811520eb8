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
	"fmt"
	"os"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/storage"
)

type aliOSSStore struct {
	bucket  *oss.Bucket
	baseURL string
}

func newAliOSSStore(conf *storage.AliOSSConfig) (*aliOSSStore, error) {
	client, err := oss.New(conf.Endpoint, conf.AccessKey, conf.Secret)
	if err != nil {
		return nil, err
	}
	bucket, err := client.Bucket(conf.Bucket)
	if err != nil {
		return nil, err
	}

	return &aliOSSStore{
		bucket:  bucket,
		baseURL: fmt.Sprintf("https://%s.%s", conf.Bucket, conf.Endpoint),
	}, nil
}

func (s *aliOSSStore) put(ctx context.Context, obj *object) (string, int64, error) {
	stat, err := os.Stat(obj.localPath)
	if err != nil {
		return "", 0, errors.ErrUploadFailed("AliOSS", err)
	}

	opts := []oss.Option{
		oss.WithContext(ctx),
		oss.ContentType(string(obj.contentType)),
	}
	for k, v := range obj.metadata {
		opts = append(opts, oss.Meta(k, v))
	}

	if err = s.bucket.PutObjectFromFile(obj.key, obj.localPath, opts...); err != nil {
		return "", 0, errors.ErrUploadFailed("AliOSS", err)
	}

	return s.baseURL + "/" + obj.key, stat.Size(), nil
}
