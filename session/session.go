//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

// Package session defines the durable state of one meeting pipeline run.
package session

import (
	"errors"
	"time"
)

var (
	// ErrSessionIDRequired is the error for session id required.
	ErrSessionIDRequired = errors.New("session_id is required")
)

// Status is the review status of a session.
type Status string

// Status values. A session only moves forward: pending sessions suspend
// into active_review, active_review sessions loop on refinement feedback
// and finally close as approved. Nothing leaves approved.
const (
	StatusPending      Status = "pending"
	StatusActiveReview Status = "active_review"
	StatusApproved     Status = "approved"
)

// CanTransition reports whether moving from s to the target status is legal.
// The active_review self loop carries refinement feedback.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusActiveReview
	case StatusActiveReview:
		return to == StatusActiveReview || to == StatusApproved
	default:
		return false
	}
}

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool { return s == StatusApproved }

// Decision is the reviewer's verdict carried by HumanFeedback.
type Decision string

// Decision values.
const (
	DecisionRevise  Decision = "revise"
	DecisionApprove Decision = "approve"
)

// Metadata describes the source meeting. Immutable once set.
type Metadata struct {
	Title        string    `json:"title"`
	Timestamp    time.Time `json:"timestamp"`
	Participants []string  `json:"participants,omitempty"`
}

// Utterance is a single transcript entry. Immutable once set.
type Utterance struct {
	Speaker  string  `json:"speaker"`
	Text     string  `json:"text"`
	StartSec float64 `json:"start_sec,omitempty"`
	EndSec   float64 `json:"end_sec,omitempty"`
}

// StrategistOutput is the context analysis produced by the strategist step.
type StrategistOutput struct {
	MeetingType string `json:"meeting_type"`
	Tone        string `json:"tone"`
	Sentiment   string `json:"sentiment"`
	// Confidence is the analyst's self-reported confidence in [0, 1].
	Confidence float64 `json:"confidence"`
	// EvidenceTimestamps cites the transcript lines backing the tone and
	// sentiment claims.
	EvidenceTimestamps []string `json:"evidence_timestamps,omitempty"`
}

// Commitment is one extracted action item with its verbatim evidence.
type Commitment struct {
	Task     string `json:"task"`
	Owner    string `json:"owner"`
	Due      string `json:"due"`
	Evidence string `json:"evidence,omitempty"`
}

// ExtractorOutput is the factual extraction produced by the extractor step.
type ExtractorOutput struct {
	Commitments []Commitment      `json:"commitments,omitempty"`
	Metrics     map[string]string `json:"metrics,omitempty"`
	Decisions   []string          `json:"decisions,omitempty"`
}

// CriticOutput is the cross-validation verdict over both analysis branches.
type CriticOutput struct {
	// Approved is true only when both branches passed validation.
	Approved           bool   `json:"approved"`
	StrategistApproved bool   `json:"strategist_approved"`
	ExtractorApproved  bool   `json:"extractor_approved"`
	StrategistFeedback string `json:"strategist_feedback,omitempty"`
	ExtractorFeedback  string `json:"extractor_feedback,omitempty"`
	// Unverified marks output that proceeded past validation on an
	// exhausted retry budget and must be surfaced to the reviewer as such.
	Unverified bool `json:"unverified,omitempty"`
}

// EmailDraft is the follow-up email produced by the copywriter and updated
// by the refiner.
type EmailDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// HumanFeedback records one round of reviewer input and where it came from.
type HumanFeedback struct {
	Decision     Decision  `json:"decision"`
	Instructions string    `json:"instructions,omitempty"`
	Reviewer     string    `json:"reviewer,omitempty"`
	Channel      string    `json:"channel,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// State is the complete durable record of one pipeline run. It is mutated
// only by the graph executor and the resume controller; collaborators see
// read-only copies.
type State struct {
	// SessionID is the stable identifier of the source meeting. Immutable
	// and globally unique.
	SessionID  string            `json:"session_id"`
	Metadata   Metadata          `json:"metadata"`
	Transcript []Utterance       `json:"transcript,omitempty"`
	Strategist *StrategistOutput `json:"strategist,omitempty"`
	Extractor  *ExtractorOutput  `json:"extractor,omitempty"`
	Critic     *CriticOutput     `json:"critic,omitempty"`
	Draft      *EmailDraft       `json:"email,omitempty"`
	Feedback   *HumanFeedback    `json:"human_feedback,omitempty"`
	Status     Status            `json:"status"`
	// RetryCounts tracks validation-loop re-runs per step name.
	RetryCounts map[string]int `json:"retry_counts,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// New creates a pending session for the given source meeting.
func New(sessionID string, md Metadata, transcript []Utterance) (*State, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	now := time.Now().UTC()
	return &State{
		SessionID:   sessionID,
		Metadata:    md,
		Transcript:  append([]Utterance(nil), transcript...),
		Status:      StatusPending,
		RetryCounts: make(map[string]int),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// RetryCount returns the recorded validation-loop re-runs for a step.
func (s *State) RetryCount(step string) int {
	if s.RetryCounts == nil {
		return 0
	}
	return s.RetryCounts[step]
}

// SetRetryCount records the validation-loop re-runs for a step.
func (s *State) SetRetryCount(step string, n int) {
	if s.RetryCounts == nil {
		s.RetryCounts = make(map[string]int)
	}
	s.RetryCounts[step] = n
}

// Clone returns a deep copy. Checkpoint snapshots and parallel branches
// operate on clones so that in-flight mutation is never observable.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Metadata.Participants = append([]string(nil), s.Metadata.Participants...)
	cp.Transcript = append([]Utterance(nil), s.Transcript...)
	if s.Strategist != nil {
		st := *s.Strategist
		st.EvidenceTimestamps = append([]string(nil), s.Strategist.EvidenceTimestamps...)
		cp.Strategist = &st
	}
	if s.Extractor != nil {
		ex := *s.Extractor
		ex.Commitments = append([]Commitment(nil), s.Extractor.Commitments...)
		ex.Decisions = append([]string(nil), s.Extractor.Decisions...)
		if s.Extractor.Metrics != nil {
			ex.Metrics = make(map[string]string, len(s.Extractor.Metrics))
			for k, v := range s.Extractor.Metrics {
				ex.Metrics[k] = v
			}
		}
		cp.Extractor = &ex
	}
	if s.Critic != nil {
		cr := *s.Critic
		cp.Critic = &cr
	}
	if s.Draft != nil {
		d := *s.Draft
		cp.Draft = &d
	}
	if s.Feedback != nil {
		fb := *s.Feedback
		cp.Feedback = &fb
	}
	if s.RetryCounts != nil {
		cp.RetryCounts = make(map[string]int, len(s.RetryCounts))
		for k, v := range s.RetryCounts {
			cp.RetryCounts[k] = v
		}
	}
	return &cp
}

// Delta is a partial state update returned by a graph node. Nil fields are
// left untouched; the executor owns the merge so parallel branches never
// write shared state directly.
type Delta struct {
	Strategist *StrategistOutput
	Extractor  *ExtractorOutput
	Critic     *CriticOutput
	Draft      *EmailDraft
	Feedback   *HumanFeedback
	Status     Status
}

// Apply merges a delta into the state and stamps the update time. A
// status the machine forbids is dropped: sessions only move forward.
func (s *State) Apply(d *Delta) {
	if d == nil {
		return
	}
	if d.Strategist != nil {
		s.Strategist = d.Strategist
	}
	if d.Extractor != nil {
		s.Extractor = d.Extractor
	}
	if d.Critic != nil {
		s.Critic = d.Critic
	}
	if d.Draft != nil {
		s.Draft = d.Draft
	}
	if d.Feedback != nil {
		s.Feedback = d.Feedback
	}
	if d.Status != "" && s.Status.CanTransition(d.Status) {
		s.Status = d.Status
	}
	s.UpdatedAt = time.Now().UTC()
}
