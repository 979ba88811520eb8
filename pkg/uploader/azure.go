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
	"net/url"
	"os"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/storage"
)

const azureBlockSize = 4 * 1024 * 1024

type azureStore struct {
	container azblob.ContainerURL
	baseURL   string
}

func newAzureStore(conf *storage.AzureConfig) (*azureStore, error) {
	credential, err := azblob.NewSharedKeyCredential(conf.AccountName, conf.AccountKey)
	if err != nil {
		return nil, err
	}

	baseURL := fmt.Sprintf("https://%s.blob.core.windows.net/%s", conf.AccountName, conf.ContainerName)
	containerURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{
		Retry: azblob.RetryOptions{
			Policy:        azblob.RetryPolicyExponential,
			MaxTries:      maxRetries,
			RetryDelay:    minDelay,
			MaxRetryDelay: maxDelay,
		},
	})

	return &azureStore{
		container: azblob.NewContainerURL(*containerURL, pipeline),
		baseURL:   baseURL,
	}, nil
}

func (s *azureStore) put(ctx context.Context, obj *object) (string, int64, error) {
	file, err := os.Open(obj.localPath)
	if err != nil {
		return "", 0, errors.ErrUploadFailed("Azure", err)
	}
	defer func() {
		_ = file.Close()
	}()

	stat, err := file.Stat()
	if err != nil {
		return "", 0, errors.ErrUploadFailed("Azure", err)
	}

	// metadata keys are identifiers, which the session keys already are
	_, err = azblob.UploadFileToBlockBlob(ctx, file, s.container.NewBlockBlobURL(obj.key), azblob.UploadToBlockBlobOptions{
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{ContentType: string(obj.contentType)},
		Metadata:        obj.metadata,
		BlockSize:       azureBlockSize,
		Parallelism:     16,
	})
	if err != nil {
		return "", 0, errors.ErrUploadFailed("Azure", err)
	}

	return s.baseURL + "/" + obj.key, stat.Size(), nil
}
