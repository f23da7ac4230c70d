//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides a SQLite-backed checkpoint store for session
// persistence and recovery across process restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trpc.group/trpc-go/trpc-council-go/graph/checkpoint"
	"trpc.group/trpc-go/trpc-council-go/session"
)

const (
	sqliteCreateCheckpoints = "CREATE TABLE IF NOT EXISTS session_checkpoints (" +
		"session_id TEXT PRIMARY KEY, " +
		"status TEXT NOT NULL, " +
		"position TEXT NOT NULL, " +
		"state_json BLOB NOT NULL, " +
		"updated_at INTEGER NOT NULL" +
		")"

	sqliteCreateStatusIndex = "CREATE INDEX IF NOT EXISTS idx_session_checkpoints_status " +
		"ON session_checkpoints (status)"

	// INSERT OR REPLACE keeps exactly one authoritative row per session;
	// the replace is atomic at the statement level.
	sqliteUpsertCheckpoint = "INSERT OR REPLACE INTO session_checkpoints (" +
		"session_id, status, position, state_json, updated_at) VALUES (?, ?, ?, ?, ?)"

	sqliteSelectBySession = "SELECT state_json, position, updated_at " +
		"FROM session_checkpoints WHERE session_id = ? LIMIT 1"

	sqliteSelectByStatus = "SELECT state_json, position, updated_at " +
		"FROM session_checkpoints WHERE status = ? ORDER BY updated_at ASC"
)

// Store is a SQLite-backed implementation of checkpoint.Store.
// It expects an initialized *sql.DB using a SQLite driver and creates the
// required schema on construction. The full session state is stored as a
// JSON blob; status and position are lifted into columns for querying.
type Store struct {
	db *sql.DB
}

var _ checkpoint.Store = (*Store)(nil)

// New creates a store over the provided DB and ensures the schema exists.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(sqliteCreateCheckpoints); err != nil {
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	if _, err := db.Exec(sqliteCreateStatusIndex); err != nil {
		return nil, fmt.Errorf("create status index: %w", err)
	}
	return &Store{db: db}, nil
}

// Save atomically replaces the session's checkpoint row.
func (s *Store) Save(ctx context.Context, ckpt *checkpoint.Checkpoint) error {
	if err := ckpt.Validate(); err != nil {
		return err
	}
	stateJSON, err := json.Marshal(ckpt.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	updatedAt := ckpt.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, sqliteUpsertCheckpoint,
		ckpt.SessionID,
		string(ckpt.State.Status),
		string(ckpt.Position),
		stateJSON,
		updatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// Load returns the authoritative checkpoint for the session.
func (s *Store) Load(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error) {
	if sessionID == "" {
		return nil, checkpoint.ErrSessionIDRequired
	}
	row := s.db.QueryRowContext(ctx, sqliteSelectBySession, sessionID)
	ckpt, err := scanCheckpoint(sessionID, row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, checkpoint.ErrNotFound
	}
	return ckpt, err
}

// ListByStatus returns every checkpoint whose session status matches,
// oldest first.
func (s *Store) ListByStatus(ctx context.Context, status session.Status) ([]*checkpoint.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectByStatus, string(status))
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()

	var out []*checkpoint.Checkpoint
	for rows.Next() {
		ckpt, err := scanCheckpoint("", rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, ckpt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return out, nil
}

// Close closes the underlying DB handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanCheckpoint(sessionID string, scan func(dest ...any) error) (*checkpoint.Checkpoint, error) {
	var (
		stateJSON []byte
		position  string
		updatedAt int64
	)
	if err := scan(&stateJSON, &position, &updatedAt); err != nil {
		return nil, err
	}
	var st session.State
	if err := json.Unmarshal(stateJSON, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if sessionID == "" {
		sessionID = st.SessionID
	}
	return &checkpoint.Checkpoint{
		SessionID: sessionID,
		State:     &st,
		Position:  checkpoint.Position(position),
		UpdatedAt: time.Unix(0, updatedAt).UTC(),
	}, nil
}
