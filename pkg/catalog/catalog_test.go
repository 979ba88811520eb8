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

package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	first := &Session{
		ID:         "a",
		Folder:     "/recordings/20261001_120000_a",
		GroupType:  "photo_video",
		Sensors:    []string{"PhotoVideo"},
		FrameCount: 30,
		StartedAt:  base,
		EndedAt:    base.Add(time.Second),
	}
	second := &Session{
		ID:              "b",
		Folder:          "/recordings/20261001_120100_b",
		GroupType:       "research_mode_sensors",
		Sensors:         []string{"LongThrowToFDepth", "VisibleLightLeftLeft"},
		FrameCount:      120,
		StartedAt:       base.Add(time.Minute),
		EndedAt:         base.Add(2 * time.Minute),
		ArchiveLocation: "https://bucket.s3.amazonaws.com/b.tar",
		ArchiveSize:     4096,
	}
	require.NoError(t, db.RecordSession(ctx, first))
	require.NoError(t, db.RecordSession(ctx, second))

	sessions, err := db.Sessions(ctx, 10)
	require.NoError(t, err)
	if diff := cmp.Diff([]*Session{second, first}, sessions); diff != "" {
		t.Fatalf("unexpected sessions (-want +got):\n%s", diff)
	}

	sessions, err = db.Sessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "b", sessions[0].ID)

	// re-recording a session replaces it
	first.Error = "upload failed"
	require.NoError(t, db.RecordSession(ctx, first))
	got, err := db.GetSession(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "upload failed", got.Error)

	got, err = db.GetSession(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, got)
}
