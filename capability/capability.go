//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

// Package capability defines the typed contracts of the pluggable analysis
// and generation units invoked by pipeline steps. The engine never looks
// inside a capability; it sees the typed input, the typed output and the
// failure classification that drives its retry policy.
package capability

import (
	"context"
	"errors"

	"trpc.group/trpc-go/trpc-council-go/session"
)

// Input carries the immutable meeting context given to the analysis steps.
type Input struct {
	SessionID  string
	Metadata   session.Metadata
	Transcript []session.Utterance
}

// ReviewInput carries both branch outputs for cross-validation.
type ReviewInput struct {
	Input
	Strategist *session.StrategistOutput
	Extractor  *session.ExtractorOutput
}

// DraftInput carries the validated analysis used to draft the email.
type DraftInput struct {
	Input
	Strategist *session.StrategistOutput
	Extractor  *session.ExtractorOutput
}

// RefineInput carries the current draft and the reviewer's instructions.
type RefineInput struct {
	Input
	Draft        *session.EmailDraft
	Extractor    *session.ExtractorOutput
	Instructions string
}

// Strategist analyzes meeting context: type, tone, sentiment, evidence.
type Strategist interface {
	Analyze(ctx context.Context, in *Input) (*session.StrategistOutput, error)
}

// Extractor pulls factual commitments, metrics and decisions.
type Extractor interface {
	Extract(ctx context.Context, in *Input) (*session.ExtractorOutput, error)
}

// Critic cross-validates both analysis branches against the transcript.
type Critic interface {
	Review(ctx context.Context, in *ReviewInput) (*session.CriticOutput, error)
}

// Copywriter drafts the follow-up email from validated analysis.
type Copywriter interface {
	Draft(ctx context.Context, in *DraftInput) (*session.EmailDraft, error)
}

// Refiner applies reviewer instructions to the current draft.
type Refiner interface {
	Refine(ctx context.Context, in *RefineInput) (*session.EmailDraft, error)
}

// Set bundles one capability per pipeline role.
type Set struct {
	Strategist Strategist
	Extractor  Extractor
	Critic     Critic
	Copywriter Copywriter
	Refiner    Refiner
}

// Validate reports the first missing role, if any.
func (s *Set) Validate() error {
	switch {
	case s == nil:
		return errors.New("capability set is nil")
	case s.Strategist == nil:
		return errors.New("strategist capability is required")
	case s.Extractor == nil:
		return errors.New("extractor capability is required")
	case s.Critic == nil:
		return errors.New("critic capability is required")
	case s.Copywriter == nil:
		return errors.New("copywriter capability is required")
	case s.Refiner == nil:
		return errors.New("refiner capability is required")
	}
	return nil
}
