//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-council-go/graph/checkpoint"
	"trpc.group/trpc-go/trpc-council-go/graph/checkpoint/inmemory"
	"trpc.group/trpc-go/trpc-council-go/session"
)

// slowLoadStore delays Load so concurrent admissions for the same id
// overlap inside the durable check.
type slowLoadStore struct {
	checkpoint.Store
	delay time.Duration
}

func (s *slowLoadStore) Load(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	time.Sleep(s.delay)
	return s.Store.Load(ctx, id)
}

// failingListStore makes the stale-review scan fail.
type failingListStore struct {
	checkpoint.Store
}

func (s *failingListStore) ListByStatus(context.Context, session.Status) ([]*checkpoint.Checkpoint, error) {
	return nil, errors.New("backend unavailable")
}

func newState(t *testing.T, id string, status session.Status) *session.State {
	t.Helper()
	st, err := session.New(id, session.Metadata{Title: "Weekly sync"}, nil)
	require.NoError(t, err)
	st.Status = status
	return st
}

func TestAdmitNewSession(t *testing.T) {
	g := New(inmemory.New())
	decision, err := g.Admit(context.Background(), "meeting-1")
	require.NoError(t, err)
	assert.Equal(t, Admitted, decision)
	assert.True(t, g.InFlight("meeting-1"))
}

func TestAdmitRequiresID(t *testing.T) {
	g := New(inmemory.New())
	_, err := g.Admit(context.Background(), "")
	assert.ErrorIs(t, err, session.ErrSessionIDRequired)
}

func TestAdmitDuplicateInFlight(t *testing.T) {
	g := New(inmemory.New())
	ctx := context.Background()

	decision, err := g.Admit(ctx, "meeting-1")
	require.NoError(t, err)
	require.Equal(t, Admitted, decision)

	decision, err = g.Admit(ctx, "meeting-1")
	require.NoError(t, err)
	assert.Equal(t, AlreadyActive, decision)
}

func TestAdmitConcurrentDuplicates(t *testing.T) {
	// The id must be reserved before the durable check: with a slow store
	// every caller reaches Load at the same time, and without the
	// reservation more than one of them would be admitted.
	g := New(&slowLoadStore{Store: inmemory.New(), delay: 20 * time.Millisecond})
	ctx := context.Background()

	const callers = 8
	decisions := make([]Decision, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i], errs[i] = g.Admit(ctx, "meeting-dup")
		}(i)
	}
	wg.Wait()

	admitted := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		switch decisions[i] {
		case Admitted:
			admitted++
		case AlreadyActive:
		default:
			t.Fatalf("unexpected decision %q", decisions[i])
		}
	}
	assert.Equal(t, 1, admitted, "exactly one caller owns the session")
	assert.True(t, g.InFlight("meeting-dup"))
}

func TestAdmitRollsBackReservationOnError(t *testing.T) {
	g := New(&failingListStore{Store: inmemory.New()})
	ctx := context.Background()

	_, err := g.Admit(ctx, "meeting-1")
	require.Error(t, err)
	assert.False(t, g.InFlight("meeting-1"), "failed admission must not leave the id reserved")

	// A later admission for the same id is not blocked by the failure.
	g2 := New(inmemory.New())
	decision, err := g2.Admit(ctx, "meeting-1")
	require.NoError(t, err)
	assert.Equal(t, Admitted, decision)
}

func TestAdmitDuplicateFromDurableState(t *testing.T) {
	store := inmemory.New()
	ctx := context.Background()
	st := newState(t, "meeting-1", session.StatusActiveReview)
	require.NoError(t, store.Save(ctx, checkpoint.New(st, checkpoint.PositionHumanReview)))

	// Fresh guard with an empty in-flight set: the durable check must
	// still reject the duplicate.
	g := New(store)
	decision, err := g.Admit(ctx, "meeting-1")
	require.NoError(t, err)
	assert.Equal(t, AlreadyActive, decision)
	assert.True(t, g.InFlight("meeting-1"))
}

func TestAdmitCompletedSession(t *testing.T) {
	store := inmemory.New()
	ctx := context.Background()
	st := newState(t, "meeting-1", session.StatusApproved)
	require.NoError(t, store.Save(ctx, checkpoint.New(st, checkpoint.PositionDone)))

	g := New(store)
	decision, err := g.Admit(ctx, "meeting-1")
	require.NoError(t, err)
	assert.Equal(t, AlreadyCompleted, decision)
	assert.False(t, g.InFlight("meeting-1"), "terminal sessions are never in flight")
}

func TestAdmitForceClosesStaleReview(t *testing.T) {
	store := inmemory.New()
	ctx := context.Background()
	stale := newState(t, "meeting-1", session.StatusActiveReview)
	stale.Draft = &session.EmailDraft{Subject: "Follow-up", Body: "Hi all"}
	require.NoError(t, store.Save(ctx, checkpoint.New(stale, checkpoint.PositionHumanReview)))

	g := New(store)
	require.NoError(t, g.Rehydrate(ctx))

	decision, err := g.Admit(ctx, "meeting-2")
	require.NoError(t, err)
	assert.Equal(t, Admitted, decision)

	closed, err := store.Load(ctx, "meeting-1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusApproved, closed.State.Status)
	assert.Equal(t, checkpoint.PositionDone, closed.Position)
	// The closed session keeps its draft as the final one.
	require.NotNil(t, closed.State.Draft)
	assert.Equal(t, "Follow-up", closed.State.Draft.Subject)
	assert.False(t, g.InFlight("meeting-1"))
}

func TestRehydrateSeedsInFlight(t *testing.T) {
	store := inmemory.New()
	ctx := context.Background()
	pending := newState(t, "meeting-1", session.StatusPending)
	require.NoError(t, store.Save(ctx, checkpoint.New(pending, checkpoint.PositionAnalyze)))
	review := newState(t, "meeting-2", session.StatusActiveReview)
	require.NoError(t, store.Save(ctx, checkpoint.New(review, checkpoint.PositionHumanReview)))

	g := New(store)
	require.NoError(t, g.Rehydrate(ctx))
	assert.True(t, g.InFlight("meeting-1"))
	assert.True(t, g.InFlight("meeting-2"))
}

func TestRelease(t *testing.T) {
	g := New(inmemory.New())
	ctx := context.Background()

	_, err := g.Admit(ctx, "meeting-1")
	require.NoError(t, err)
	g.Release("meeting-1")
	assert.False(t, g.InFlight("meeting-1"))

	// Unknown ids are a no-op.
	g.Release("meeting-unknown")
}
