//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

// Package runner composes the pipeline: admission through the dedup
// guard, graph execution to the review interrupt, delivery of the review
// snapshot and the resume path that feeds human feedback back in.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"trpc.group/trpc-go/trpc-council-go/delivery"
	"trpc.group/trpc-go/trpc-council-go/graph"
	"trpc.group/trpc-go/trpc-council-go/graph/checkpoint"
	"trpc.group/trpc-go/trpc-council-go/guard"
	itelemetry "trpc.group/trpc-go/trpc-council-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-council-go/log"
	"trpc.group/trpc-go/trpc-council-go/session"
	ctrace "trpc.group/trpc-go/trpc-council-go/telemetry/trace"
	"trpc.group/trpc-go/trpc-council-go/transcript"
)

// Errors surfaced at the runner boundary.
var (
	// ErrNotFound means no session exists for the id.
	ErrNotFound = errors.New("session not found")
	// ErrNotInReview means the session is not suspended awaiting review.
	ErrNotInReview = errors.New("session is not in active review")
	// ErrFeedbackRequired means a revision was requested without
	// instructions to apply.
	ErrFeedbackRequired = errors.New("revision feedback requires instructions")
)

// Meeting is one ingestion event from the source service. Transcript and
// metadata may be empty, in which case they are backfilled through the
// transcript source before the pipeline starts.
type Meeting struct {
	ID         string              `json:"id"`
	Metadata   session.Metadata    `json:"metadata"`
	Transcript []session.Utterance `json:"transcript,omitempty"`
}

// Runner drives sessions end to end. One runner owns one executor, one
// guard and one checkpoint store; a given session id is only ever
// processed by one in-flight Ingest or Resume call at a time.
type Runner struct {
	executor *graph.Executor
	store    checkpoint.Store
	guard    *guard.Guard
	notifier delivery.Notifier
	source   transcript.Source
}

// Option configures the runner.
type Option func(*Runner)

// WithNotifier sets the delivery collaborator called with review
// snapshots. Defaults to a noop.
func WithNotifier(n delivery.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithTranscriptSource sets the collaborator used to backfill transcripts
// for events that carry none.
func WithTranscriptSource(s transcript.Source) Option {
	return func(r *Runner) { r.source = s }
}

// New creates a runner over its collaborators.
func New(executor *graph.Executor, store checkpoint.Store, g *guard.Guard, opts ...Option) (*Runner, error) {
	if executor == nil {
		return nil, errors.New("executor is required")
	}
	if store == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if g == nil {
		return nil, errors.New("guard is required")
	}
	r := &Runner{
		executor: executor,
		store:    store,
		guard:    g,
		notifier: delivery.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Ingest admits a meeting and, when admitted, runs the pipeline until it
// suspends for review or aborts. The returned decision tells the caller
// whether a run started; an error alongside Admitted means the run
// itself failed after admission.
func (r *Runner) Ingest(ctx context.Context, meeting *Meeting) (guard.Decision, error) {
	if meeting == nil || meeting.ID == "" {
		return "", session.ErrSessionIDRequired
	}
	invocationID := "run-" + uuid.New().String()
	ctx, span := ctrace.Tracer.Start(ctx, itelemetry.SpanNameIngest)
	defer span.End()
	span.SetAttributes(
		attribute.String(itelemetry.KeySessionID, meeting.ID),
		attribute.String(itelemetry.KeyInvocationID, invocationID),
	)

	decision, err := r.guard.Admit(ctx, meeting.ID)
	if err != nil {
		return "", err
	}
	if decision != guard.Admitted {
		log.Infof("meeting %s not admitted: %s", meeting.ID, decision)
		return decision, nil
	}
	log.Infof("meeting %s admitted, invocation %s", meeting.ID, invocationID)

	if err := r.run(ctx, meeting); err != nil {
		r.guard.Release(meeting.ID)
		return decision, err
	}
	return decision, nil
}

// run builds the initial state and executes to the first suspension.
func (r *Runner) run(ctx context.Context, meeting *Meeting) error {
	md, utterances := meeting.Metadata, meeting.Transcript
	if len(utterances) == 0 && r.source != nil {
		fetched, fetchedUtterances, err := r.source.Fetch(ctx, meeting.ID)
		if err != nil {
			return fmt.Errorf("backfill transcript for %s: %w", meeting.ID, err)
		}
		if fetched != nil {
			md = *fetched
		}
		utterances = fetchedUtterances
	}
	st, err := session.New(meeting.ID, md, utterances)
	if err != nil {
		return err
	}
	// The initial checkpoint makes the session durably visible before any
	// capability runs; the dedup existence check relies on it.
	if err := r.store.Save(ctx, checkpoint.New(st, checkpoint.PositionAnalyze)); err != nil {
		return fmt.Errorf("initial checkpoint for %s: %w", meeting.ID, err)
	}

	final, err := r.executor.Execute(ctx, st, checkpoint.PositionAnalyze)
	return r.settle(ctx, final, err)
}

// Resume feeds reviewer input into a suspended session. Approval closes
// it; anything else records the feedback and runs a refinement round,
// leaving the session suspended with an updated draft.
func (r *Runner) Resume(ctx context.Context, sessionID, feedbackText string, approved bool) (*session.State, error) {
	ctx, span := ctrace.Tracer.Start(ctx, itelemetry.SpanNameResume)
	defer span.End()
	span.SetAttributes(attribute.String(itelemetry.KeySessionID, sessionID))

	ckpt, err := r.store.Load(ctx, sessionID)
	if err != nil {
		if checkpoint.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return nil, err
	}
	st := ckpt.State
	if st.Status != session.StatusActiveReview {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotInReview, sessionID, st.Status)
	}

	fb := &session.HumanFeedback{
		Decision:     session.DecisionRevise,
		Instructions: feedbackText,
		ReceivedAt:   time.Now().UTC(),
	}
	if approved {
		fb.Decision = session.DecisionApprove
	} else if feedbackText == "" {
		return nil, ErrFeedbackRequired
	}
	st.Apply(&session.Delta{Feedback: fb})
	span.SetAttributes(attribute.String(itelemetry.KeyDecision, string(fb.Decision)))
	log.Infof("session %s resumed with decision %s", sessionID, fb.Decision)

	final, err := r.executor.Execute(ctx, st, checkpoint.PositionHumanReview)
	if err := r.settle(ctx, final, err); err != nil {
		return final, err
	}
	return final, nil
}

// settle is the common tail of a graph run: an interrupt hands the
// review snapshot to the delivery collaborator, a clean finish releases
// the session, anything else is surfaced after its abort checkpoint.
func (r *Runner) settle(ctx context.Context, st *session.State, execErr error) error {
	switch {
	case execErr == nil:
		r.guard.Release(st.SessionID)
		return nil
	case graph.IsInterruptError(execErr):
		if err := r.notifier.ReviewReady(ctx, delivery.FromState(st)); err != nil {
			// Delivery is best effort: the session stays suspended and
			// resumable even if nobody was told about it.
			log.Errorf("session %s review delivery failed: %v", st.SessionID, err)
		}
		return nil
	default:
		return execErr
	}
}

// Status returns the authoritative checkpoint for a session.
func (r *Runner) Status(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error) {
	ckpt, err := r.store.Load(ctx, sessionID)
	if err != nil {
		if checkpoint.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return nil, err
	}
	return ckpt, nil
}
