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
	"maps"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/livekit/psrpc"
	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/storage"
)

const defaultBucketLocation = "us-east-1"

// errors that a retry cannot fix
var permanentS3Errors = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"NoSuchBucket":          true,
	"SignatureDoesNotMatch": true,
}

type s3Store struct {
	conf     *storage.S3Config
	uploader *manager.Uploader
	baseURL  string
}

func newS3Store(conf *storage.S3Config) (*s3Store, error) {
	httpClient, err := proxyClient(conf.ProxyConfig)
	if err != nil {
		return nil, err
	}

	awsConf, err := awsConfig.LoadDefaultConfig(context.Background(), func(o *awsConfig.LoadOptions) error {
		o.Region = conf.Region
		if o.Region == "" {
			o.Region = defaultBucketLocation
		}
		if conf.AccessKey != "" && conf.Secret != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(conf.AccessKey, conf.Secret, conf.SessionToken)
		}
		o.Retryer = func() aws.Retryer {
			return retry.NewStandard(func(so *retry.StandardOptions) {
				so.MaxAttempts = conf.MaxRetries
				so.MaxBackoff = conf.MaxRetryDelay
				so.Retryables = append([]retry.IsErrorRetryable{retry.IsErrorRetryableFunc(retryS3Upload)}, so.Retryables...)
			})
		}
		if httpClient != nil {
			o.HTTPClient = httpClient
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if conf.Endpoint != "" {
		awsConf.BaseEndpoint = aws.String(conf.Endpoint)
	}

	newClient := func() *s3.Client {
		return s3.NewFromConfig(awsConf, func(o *s3.Options) {
			o.UsePathStyle = conf.ForcePathStyle
		})
	}
	client := newClient()
	if conf.Region == "" {
		// the bucket may live outside the default region
		region, err := bucketRegion(client, conf.Bucket)
		if err != nil {
			return nil, err
		}
		if region != "" {
			awsConf.Region = region
			client = newClient()
		}
	}

	return &s3Store{
		conf:     conf,
		uploader: manager.NewUploader(client),
		baseURL:  s3BaseURL(conf),
	}, nil
}

func bucketRegion(client *s3.Client, bucket string) (string, error) {
	resp, err := client.GetBucketLocation(context.Background(), &s3.GetBucketLocationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return "", psrpc.NewErrorf(psrpc.InvalidArgument, "failed to retrieve upload bucket region: %v", err)
	}
	return string(resp.LocationConstraint), nil
}

func s3BaseURL(conf *storage.S3Config) string {
	endpoint := "s3.amazonaws.com"
	if conf.Endpoint != "" {
		endpoint = conf.Endpoint
	}
	if conf.ForcePathStyle {
		return fmt.Sprintf("https://%s/%s", endpoint, conf.Bucket)
	}
	return fmt.Sprintf("https://%s.%s", conf.Bucket, endpoint)
}

func retryS3Upload(err error) aws.Ternary {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && permanentS3Errors[apiErr.ErrorCode()] {
		return aws.FalseTernary
	}
	return aws.TrueTernary
}

func (s *s3Store) put(ctx context.Context, obj *object) (string, int64, error) {
	file, err := os.Open(obj.localPath)
	if err != nil {
		return "", 0, errors.ErrUploadFailed("S3", err)
	}
	defer func() {
		_ = file.Close()
	}()

	stat, err := file.Stat()
	if err != nil {
		return "", 0, errors.ErrUploadFailed("S3", err)
	}

	// session metadata wins over configured metadata
	metadata := make(map[string]string, len(s.conf.Metadata)+len(obj.metadata))
	maps.Copy(metadata, s.conf.Metadata)
	maps.Copy(metadata, obj.metadata)

	input := &s3.PutObjectInput{
		Body:        file,
		Bucket:      aws.String(s.conf.Bucket),
		Key:         aws.String(obj.key),
		ContentType: aws.String(string(obj.contentType)),
		Metadata:    metadata,
	}
	if s.conf.Tagging != "" {
		input.Tagging = aws.String(s.conf.Tagging)
	}
	if s.conf.ContentDisposition != "" {
		input.ContentDisposition = aws.String(s.conf.ContentDisposition)
	}

	// aws logs are only written out when the upload fails
	l := storage.NewS3Logger()
	if _, err = s.uploader.Upload(ctx, input, manager.WithUploaderRequestOptions(func(o *s3.Options) {
		o.Logger = l
	})); err != nil {
		l.WriteLogs()
		return "", 0, errors.ErrUploadFailed("S3", err)
	}

	return s.baseURL + "/" + obj.key, stat.Size(), nil
}
