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

package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/livekit/psrpc"
)

var (
	ErrNoConfig         = errors.New("missing config")
	ErrInvalidState     = errors.New("invalid lifecycle state")
	ErrLifecycleBusy    = errors.New("lifecycle operation already in progress")
	ErrSessionActive    = errors.New("recording session already active")
	ErrNoSession        = errors.New("no recording session active")
	ErrNoMatchingSource = errors.New("no source matched a requested sensor type and format")
	ErrDeviceClosed     = errors.New("capture device closed")
	ErrProfileNotFound  = errors.New("profile not found")
)

func New(err string) error {
	return errors.New(err)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// Fatal marks an error that must end the process rather than the operation.
type FatalError struct {
	err error
}

func Fatal(err error) error {
	return &FatalError{err: err}
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

func ErrCouldNotParseConfig(err error) error {
	return fmt.Errorf("could not parse config: %w", err)
}

func ErrInvalidInput(field string) error {
	return fmt.Errorf("request has missing or invalid field: %s", field)
}

func ErrInitialization(err error) error {
	return fmt.Errorf("source group initialization failed: %w", err)
}

func ErrSensorNotAvailable(sensor string) error {
	return fmt.Errorf("sensor %s not available", sensor)
}

func ErrWriteFailed(path string, err error) error {
	return fmt.Errorf("failed to write %s: %w", path, err)
}

func ErrUploadFailed(location string, err error) error {
	return fmt.Errorf("%s upload failed: %w", location, err)
}

func ErrNotSupported(feature string) error {
	return fmt.Errorf("%s is not yet supported", feature)
}

// ErrArray collects errors from best-effort operations that keep going on failure.
type ErrArray struct {
	errs []error
}

func (e *ErrArray) AppendErr(err error) {
	if err != nil {
		e.errs = append(e.errs, err)
	}
}

func (e *ErrArray) Len() int {
	return len(e.errs)
}

func (e *ErrArray) ToError() psrpc.Error {
	if len(e.errs) == 0 {
		return nil
	}

	code := psrpc.Unknown
	msg := make([]string, 0, len(e.errs))
	for _, err := range e.errs {
		// use the first error code found
		if code == psrpc.Unknown {
			var psrpcErr psrpc.Error
			if errors.As(err, &psrpcErr) {
				code = psrpcErr.Code()
			}
		}
		msg = append(msg, err.Error())
	}

	return psrpc.NewErrorf(code, "%s", strings.Join(msg, "\n"))
}
