//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

package sqlite

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3" // Import SQLite driver.
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-council-go/graph/checkpoint"
	"trpc.group/trpc-go/trpc-council-go/session"
)

func setupTestDB(t *testing.T) (string, *sql.DB, func()) {
	tmpfile, err := os.CreateTemp("", "council-*.db")
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", tmpfile.Name())
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.Remove(tmpfile.Name())
	}
	return tmpfile.Name(), db, cleanup
}

func newState(t *testing.T, id string, status session.Status) *session.State {
	st, err := session.New(id, session.Metadata{Title: "Weekly sync"}, []session.Utterance{
		{Speaker: "Alice", Text: "I'll own the rollout."},
	})
	require.NoError(t, err)
	st.Status = status
	return st
}

func TestStore_SaveSupersedes(t *testing.T) {
	_, db, cleanup := setupTestDB(t)
	defer cleanup()

	store, err := New(db)
	require.NoError(t, err)

	ctx := context.Background()
	st := newState(t, "meeting-1", session.StatusPending)
	require.NoError(t, store.Save(ctx, checkpoint.New(st, checkpoint.PositionAnalyze)))

	st.Draft = &session.EmailDraft{Subject: "Follow-up", Body: "Hi"}
	st.Status = session.StatusActiveReview
	require.NoError(t, store.Save(ctx, checkpoint.New(st, checkpoint.PositionHumanReview)))

	got, err := store.Load(ctx, "meeting-1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.PositionHumanReview, got.Position)
	assert.Equal(t, session.StatusActiveReview, got.State.Status)
	require.NotNil(t, got.State.Draft)
	assert.Equal(t, "Follow-up", got.State.Draft.Subject)

	// Only one authoritative row per session.
	all, err := store.ListByStatus(ctx, session.StatusActiveReview)
	require.NoError(t, err)
	require.Len(t, all, 1)
	pending, err := store.ListByStatus(ctx, session.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStore_LoadNotFound(t *testing.T) {
	_, db, cleanup := setupTestDB(t)
	defer cleanup()

	store, err := New(db)
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "missing")
	require.ErrorIs(t, err, checkpoint.ErrNotFound)

	_, err = store.Load(context.Background(), "")
	require.ErrorIs(t, err, checkpoint.ErrSessionIDRequired)
}

func TestStore_SurvivesReopen(t *testing.T) {
	path, db, cleanup := setupTestDB(t)
	defer cleanup()

	store, err := New(db)
	require.NoError(t, err)

	ctx := context.Background()
	st := newState(t, "meeting-2", session.StatusActiveReview)
	st.SetRetryCount("extractor", 2)
	require.NoError(t, store.Save(ctx, checkpoint.New(st, checkpoint.PositionHumanReview)))
	require.NoError(t, store.Close())

	db2, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	store2, err := New(db2)
	require.NoError(t, err)
	defer store2.Close()

	got, err := store2.Load(ctx, "meeting-2")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.PositionHumanReview, got.Position)
	assert.Equal(t, 2, got.State.RetryCount("extractor"))
	assert.Equal(t, "Weekly sync", got.State.Metadata.Title)
}

func TestStore_RejectsInvalidCheckpoint(t *testing.T) {
	_, db, cleanup := setupTestDB(t)
	defer cleanup()

	store, err := New(db)
	require.NoError(t, err)

	err = store.Save(context.Background(), &checkpoint.Checkpoint{SessionID: "x"})
	require.ErrorIs(t, err, checkpoint.ErrStateRequired)
	err = store.Save(context.Background(), &checkpoint.Checkpoint{})
	require.ErrorIs(t, err, checkpoint.ErrSessionIDRequired)
}
