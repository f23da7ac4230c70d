//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

// Package checkpoint defines durable snapshots of pipeline execution.
// One checkpoint is authoritative per session at any time; saving a new
// one atomically supersedes the prior one.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"trpc.group/trpc-go/trpc-council-go/session"
)

// Errors.
var (
	ErrNotFound          = errors.New("checkpoint not found")
	ErrSessionIDRequired = errors.New("checkpoint session_id is required")
	ErrStateRequired     = errors.New("checkpoint state is required")
)

// IsNotFound reports whether err means no checkpoint exists for the id.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Position names the next step the executor will run for a session.
// Persisting it as plain data is what makes resume "load position,
// continue the step sequence" rather than reconstructing control flow.
type Position string

// Position values.
const (
	// PositionAnalyze runs the parallel strategist/extractor layer.
	PositionAnalyze Position = "analyze"
	// PositionStrategist re-runs the strategist branch alone after a
	// critic rejection.
	PositionStrategist Position = "strategist"
	// PositionExtractor re-runs the extractor branch alone after a
	// critic rejection.
	PositionExtractor Position = "extractor"
	// PositionCritic cross-validates the analysis branches.
	PositionCritic Position = "critic"
	// PositionCopywriter drafts the follow-up email.
	PositionCopywriter Position = "copywriter"
	// PositionHumanReview is the suspended interrupt point.
	PositionHumanReview Position = "human_review"
	// PositionRefiner applies reviewer feedback to the draft.
	PositionRefiner Position = "refiner"
	// PositionDone is terminal.
	PositionDone Position = "done"
)

// Valid reports whether p is a known position.
func (p Position) Valid() bool {
	switch p {
	case PositionAnalyze, PositionStrategist, PositionExtractor,
		PositionCritic, PositionCopywriter, PositionHumanReview,
		PositionRefiner, PositionDone:
		return true
	}
	return false
}

// Checkpoint is the durable record of one session: the complete state
// snapshot plus the execution position. Partial writes are never
// observable through a Store.
type Checkpoint struct {
	SessionID string         `json:"session_id"`
	State     *session.State `json:"state"`
	Position  Position       `json:"position"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// New builds a checkpoint for the given state and position. The stored
// state is a deep copy so later mutation of st is not observable.
func New(st *session.State, pos Position) *Checkpoint {
	return &Checkpoint{
		SessionID: st.SessionID,
		State:     st.Clone(),
		Position:  pos,
		UpdatedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy of the checkpoint.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	cp := *c
	cp.State = c.State.Clone()
	return &cp
}

// Validate reports the first structural problem with the checkpoint.
func (c *Checkpoint) Validate() error {
	if c == nil || c.SessionID == "" {
		return ErrSessionIDRequired
	}
	if c.State == nil {
		return ErrStateRequired
	}
	return nil
}

// Store persists checkpoints. Save must be an atomic upsert: after it
// returns, the written checkpoint is the sole authoritative snapshot for
// the session and must survive process restart on durable backends.
type Store interface {
	// Save atomically replaces the session's checkpoint.
	Save(ctx context.Context, ckpt *Checkpoint) error
	// Load returns the authoritative checkpoint or ErrNotFound.
	Load(ctx context.Context, sessionID string) (*Checkpoint, error)
	// ListByStatus returns every checkpoint whose session status matches.
	// The dedup guard uses it to find stale in-review sessions.
	ListByStatus(ctx context.Context, status session.Status) ([]*Checkpoint, error)
	// Close releases backend resources.
	Close() error
}
