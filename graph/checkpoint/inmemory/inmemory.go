//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory checkpoint store. It is meant
// for tests and single-process development; nothing survives a restart.
package inmemory

import (
	"context"
	"sync"

	"trpc.group/trpc-go/trpc-council-go/graph/checkpoint"
	"trpc.group/trpc-go/trpc-council-go/session"
)

// Store is a thread-safe in-memory checkpoint store.
type Store struct {
	mu    sync.RWMutex
	ckpts map[string]*checkpoint.Checkpoint
}

var _ checkpoint.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{ckpts: make(map[string]*checkpoint.Checkpoint)}
}

// Save atomically replaces the session's checkpoint.
func (s *Store) Save(ctx context.Context, ckpt *checkpoint.Checkpoint) error {
	if err := ckpt.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ckpts[ckpt.SessionID] = ckpt.Clone()
	return nil
}

// Load returns a copy of the authoritative checkpoint.
func (s *Store) Load(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error) {
	if sessionID == "" {
		return nil, checkpoint.ErrSessionIDRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ckpt, ok := s.ckpts[sessionID]
	if !ok {
		return nil, checkpoint.ErrNotFound
	}
	return ckpt.Clone(), nil
}

// ListByStatus returns copies of every checkpoint in the given status.
func (s *Store) ListByStatus(ctx context.Context, status session.Status) ([]*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*checkpoint.Checkpoint
	for _, ckpt := range s.ckpts {
		if ckpt.State != nil && ckpt.State.Status == status {
			out = append(out, ckpt.Clone())
		}
	}
	return out, nil
}

// Close drops all stored checkpoints.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ckpts = make(map[string]*checkpoint.Checkpoint)
	return nil
}
