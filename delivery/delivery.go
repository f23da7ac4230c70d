//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

// Package delivery is the boundary to the collaborator that renders and
// sends review material to wherever the human reviewer lives. The engine
// only hands over the current review snapshot; formatting, channels and
// feedback capture are the collaborator's concern.
package delivery

import (
	"context"

	"trpc.group/trpc-go/trpc-council-go/session"
)

// Review is the snapshot handed to the delivery collaborator whenever a
// session suspends for review or produces a refined draft.
type Review struct {
	SessionID  string                    `json:"session_id"`
	Metadata   session.Metadata          `json:"metadata"`
	Strategist *session.StrategistOutput `json:"strategist,omitempty"`
	Extractor  *session.ExtractorOutput  `json:"extractor,omitempty"`
	Draft      *session.EmailDraft       `json:"email,omitempty"`
	Status     session.Status            `json:"status"`
	// Unverified is set when validation ran out of retries and the
	// analysis proceeded unapproved; reviewers see it flagged.
	Unverified bool `json:"unverified,omitempty"`
}

// Notifier receives review snapshots. Implementations must tolerate being
// called more than once per session (one call per refinement round).
type Notifier interface {
	ReviewReady(ctx context.Context, review *Review) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, review *Review) error

// ReviewReady calls f.
func (f NotifierFunc) ReviewReady(ctx context.Context, review *Review) error {
	return f(ctx, review)
}

// Noop returns a notifier that drops every snapshot. Default wiring for
// tests and headless runs.
func Noop() Notifier {
	return NotifierFunc(func(context.Context, *Review) error { return nil })
}

// FromState builds the review snapshot for a session.
func FromState(st *session.State) *Review {
	r := &Review{
		SessionID:  st.SessionID,
		Metadata:   st.Metadata,
		Strategist: st.Strategist,
		Extractor:  st.Extractor,
		Draft:      st.Draft,
		Status:     st.Status,
	}
	if st.Critic != nil {
		r.Unverified = st.Critic.Unverified
	}
	return r
}
