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
	"path/filepath"
	"strings"
	"time"

	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/sensorcap/pkg/types"
)

// metadata keys attached to every uploaded object
const (
	MetadataSessionID = "session_id"
	MetadataGroupType = "group_type"
	MetadataSensors   = "sensors"
	MetadataStartedAt = "started_at"
)

// Session describes the recording a set of uploaded objects belongs to.
type Session struct {
	ID        string
	Name      string // session folder name, the root of every storage key
	GroupType string
	Sensors   []string
	StartedAt time.Time
}

type Result struct {
	// Location of the archive, or of the session folder for file uploads.
	Location string
	Size     int64
	Objects  int
	Backup   bool
}

func (s *Session) metadata() map[string]string {
	m := map[string]string{
		MetadataSessionID: s.ID,
		MetadataGroupType: s.GroupType,
		MetadataSensors:   strings.Join(s.Sensors, ","),
	}
	if !s.StartedAt.IsZero() {
		m[MetadataStartedAt] = s.StartedAt.UTC().Format(time.RFC3339)
	}
	return m
}

// ContentType maps a session file to its upload content type.
func ContentType(name string) types.OutputType {
	switch types.FileExtension(filepath.Ext(name)) {
	case types.FileExtensionCSV:
		return types.OutputTypeCSV
	case types.FileExtensionJSON:
		return types.OutputTypeJSON
	case types.FileExtensionTar:
		return types.OutputTypeTar
	default:
		return types.OutputTypeRaw
	}
}

// UploadArchive stores the session tar as <name>.tar.
func (u *Uploader) UploadArchive(ctx context.Context, s *Session, archivePath string) (*Result, error) {
	if s == nil || s.Name == "" {
		return nil, errors.ErrInvalidInput("session")
	}

	obj := &object{
		localPath:   archivePath,
		key:         s.Name + string(types.FileExtensionTar),
		contentType: types.OutputTypeTar,
		metadata:    s.metadata(),
	}
	locations, size, backup, err := u.upload(ctx, uploadTypeArchive, []*object{obj})
	if err != nil {
		return nil, err
	}

	return &Result{
		Location: locations[0],
		Size:     size,
		Objects:  1,
		Backup:   backup,
	}, nil
}

// UploadFiles stores each session file, relative to dir, under <name>/.
func (u *Uploader) UploadFiles(ctx context.Context, s *Session, dir string, files []string) (*Result, error) {
	if s == nil || s.Name == "" {
		return nil, errors.ErrInvalidInput("session")
	}
	if len(files) == 0 {
		return nil, errors.ErrInvalidInput("files")
	}

	metadata := s.metadata()
	objects := make([]*object, 0, len(files))
	for _, name := range files {
		objects = append(objects, &object{
			localPath:   filepath.Join(dir, name),
			key:         path.Join(s.Name, filepath.ToSlash(name)),
			contentType: ContentType(name),
			metadata:    metadata,
		})
	}

	locations, size, backup, err := u.upload(ctx, uploadTypeFiles, objects)
	if err != nil {
		return nil, err
	}

	return &Result{
		Location: strings.TrimSuffix(locations[0], "/"+filepath.ToSlash(files[0])),
		Size:     size,
		Objects:  len(objects),
		Backup:   backup,
	}, nil
}
