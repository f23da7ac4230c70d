//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

// Package guard admits source events into the pipeline exactly once. It
// keeps an in-process set of in-flight sessions as a fast path and treats
// the checkpoint store as the authority, so admission stays correct
// across process restarts.
package guard

import (
	"context"
	"fmt"
	"sync"

	"trpc.group/trpc-go/trpc-council-go/graph/checkpoint"
	"trpc.group/trpc-go/trpc-council-go/log"
	"trpc.group/trpc-go/trpc-council-go/session"
)

// Decision is the admission outcome for a session id.
type Decision string

// Decision values.
const (
	// Admitted means the caller owns the session and may start a run.
	Admitted Decision = "admitted"
	// AlreadyActive means a run for the id is in flight or awaiting
	// review; the caller must not start another.
	AlreadyActive Decision = "already_active"
	// AlreadyCompleted means the id reached a terminal status.
	AlreadyCompleted Decision = "already_completed"
)

// Guard is the dedup admission gate. One guard instance fronts one
// executor; its in-flight set is process-wide state mutated only here.
type Guard struct {
	store checkpoint.Store

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates a guard over the checkpoint store.
func New(store checkpoint.Store) *Guard {
	return &Guard{
		store:    store,
		inFlight: make(map[string]struct{}),
	}
}

// Rehydrate seeds the in-flight set from durable state at startup:
// every non-terminal checkpoint marks its session as in flight.
func (g *Guard) Rehydrate(ctx context.Context) error {
	var ids []string
	for _, status := range []session.Status{session.StatusPending, session.StatusActiveReview} {
		ckpts, err := g.store.ListByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("rehydrate guard: %w", err)
		}
		for _, ckpt := range ckpts {
			ids = append(ids, ckpt.SessionID)
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		g.inFlight[id] = struct{}{}
	}
	if len(ids) > 0 {
		log.Infof("guard rehydrated %d in-flight sessions", len(ids))
	}
	return nil
}

// Admit decides whether a run may start for the session id. The id is
// reserved in the in-flight set before the durable check, so concurrent
// calls for the same id serialize on the reservation and at most one of
// them can be Admitted. The durable checkpoint stays the source of
// truth: a reservation it contradicts is rolled back. On Admitted any
// stale session still awaiting review is force-closed, so at most one
// session is in active_review at a time.
func (g *Guard) Admit(ctx context.Context, sessionID string) (Decision, error) {
	if sessionID == "" {
		return "", session.ErrSessionIDRequired
	}
	if !g.reserve(sessionID) {
		return AlreadyActive, nil
	}

	ckpt, err := g.store.Load(ctx, sessionID)
	switch {
	case err == nil:
		if ckpt.State.Status.Terminal() {
			g.Release(sessionID)
			return AlreadyCompleted, nil
		}
		// Durable record says in flight even though the set missed it
		// (e.g. another instance wrote it before a restart). The
		// reservation stays so later duplicates short-circuit.
		return AlreadyActive, nil
	case !checkpoint.IsNotFound(err):
		g.Release(sessionID)
		return "", fmt.Errorf("admit %s: %w", sessionID, err)
	}

	if err := g.closeStaleReviews(ctx, sessionID); err != nil {
		g.Release(sessionID)
		return "", err
	}
	return Admitted, nil
}

// Release clears the in-flight mark once the session reaches a terminal
// status or aborts. Safe to call for unknown ids.
func (g *Guard) Release(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, sessionID)
}

// InFlight reports whether the id is currently marked in flight.
func (g *Guard) InFlight(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inFlight[sessionID]
	return ok
}

// reserve marks the id in flight unless it already is. Check and insert
// happen under one lock hold so two racing admissions cannot both pass.
func (g *Guard) reserve(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, active := g.inFlight[sessionID]; active {
		return false
	}
	g.inFlight[sessionID] = struct{}{}
	return true
}

// closeStaleReviews force-approves every other session still suspended in
// review. Newer work takes priority over an unresolved review; the closed
// session keeps its last draft as the final one.
func (g *Guard) closeStaleReviews(ctx context.Context, admitting string) error {
	ckpts, err := g.store.ListByStatus(ctx, session.StatusActiveReview)
	if err != nil {
		return fmt.Errorf("scan stale reviews: %w", err)
	}
	for _, ckpt := range ckpts {
		if ckpt.SessionID == admitting {
			continue
		}
		ckpt.State.Apply(&session.Delta{Status: session.StatusApproved})
		closed := checkpoint.New(ckpt.State, checkpoint.PositionDone)
		if err := g.store.Save(ctx, closed); err != nil {
			return fmt.Errorf("close stale review %s: %w", ckpt.SessionID, err)
		}
		g.Release(ckpt.SessionID)
		log.Warnf("session %s auto-approved: superseded by incoming session %s", ckpt.SessionID, admitting)
	}
	return nil
}
