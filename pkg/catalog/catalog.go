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

// Package catalog indexes finished recording sessions in a sqlite database.
package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/livekit/protocol/logger"
)

//go:embed schema.sql
var schemaSQL string

type DB struct {
	*sql.DB
}

type Session struct {
	ID              string    `json:"id"`
	Folder          string    `json:"folder"`
	GroupType       string    `json:"group_type"`
	Sensors         []string  `json:"sensors"`
	FrameCount      int       `json:"frame_count"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	ArchiveLocation string    `json:"archive_location,omitempty"`
	ArchiveSize     int64     `json:"archive_size,omitempty"`
	Error           string    `json:"error,omitempty"`
}

func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err = db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}

	logger.Debugw("catalog opened", "path", path)
	return &DB{db}, nil
}

// RecordSession inserts a session, replacing any previous record with the same id.
func (db *DB) RecordSession(ctx context.Context, s *Session) error {
	sensors, err := json.Marshal(s.Sensors)
	if err != nil {
		return err
	}

	query := `
		INSERT OR REPLACE INTO recording_sessions (
			session_id, folder, group_type, sensors, frame_count,
			started_at, ended_at, archive_location, archive_size, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = db.ExecContext(ctx, query,
		s.ID, s.Folder, s.GroupType, string(sensors), s.FrameCount,
		s.StartedAt.UnixNano(), s.EndedAt.UnixNano(), s.ArchiveLocation, s.ArchiveSize, s.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", s.ID, err)
	}
	return nil
}

// Sessions returns the most recent sessions first.
func (db *DB) Sessions(ctx context.Context, limit int) ([]*Session, error) {
	query := `
		SELECT session_id, folder, group_type, sensors, frame_count,
			started_at, ended_at, archive_location, archive_size, error
		FROM recording_sessions
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// GetSession returns nil when no session has the id.
func (db *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT session_id, folder, group_type, sensors, frame_count,
			started_at, ended_at, archive_location, archive_size, error
		FROM recording_sessions
		WHERE session_id = ?
	`

	s, err := scanSession(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s                  Session
		sensors            string
		startedAt, endedAt int64
	)
	err := row.Scan(
		&s.ID, &s.Folder, &s.GroupType, &sensors, &s.FrameCount,
		&startedAt, &endedAt, &s.ArchiveLocation, &s.ArchiveSize, &s.Error,
	)
	if err != nil {
		return nil, err
	}

	if err = json.Unmarshal([]byte(sensors), &s.Sensors); err != nil {
		return nil, fmt.Errorf("invalid sensors for session %s: %w", s.ID, err)
	}
	s.StartedAt = time.Unix(0, startedAt).UTC()
	s.EndedAt = time.Unix(0, endedAt).UTC()
	return &s, nil
}
