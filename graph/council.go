//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-council-go/capability"
	"trpc.group/trpc-go/trpc-council-go/session"
)

// maxReviewRounds bounds the critic's validation loop per branch.
const maxReviewRounds = 3

// Routing keys of the council's conditional edges.
const (
	routeRetryStrategist = "retry_strategist"
	routeRetryExtractor  = "retry_extractor"
	routeProceed         = "proceed"
	routeRefine          = "refine"
	routeFinalize        = "finalize"
)

// NewCouncilGraph builds the fixed meeting-intelligence topology:
// strategist and extractor fan out in parallel, the critic validates both
// with a bounded debate loop, the copywriter drafts the follow-up email,
// and execution suspends at human review until the reviewer approves or
// sends the refiner another round of feedback.
func NewCouncilGraph(caps *capability.Set) (*Graph, error) {
	if err := caps.Validate(); err != nil {
		return nil, err
	}
	return NewStateGraph().
		AddNode(StepStrategist, strategistNode(caps)).
		AddNode(StepExtractor, extractorNode(caps)).
		AddNode(StepCritic, criticNode(caps), WithFallback(criticFallback)).
		AddNode(StepCopywriter, copywriterNode(caps), WithFallback(draftFallback)).
		AddNode(StepHumanReview, humanReviewNode()).
		AddNode(StepRefiner, refinerNode(caps)).
		SetEntryPoints(StepStrategist, StepExtractor).
		AddEdge(StepStrategist, StepCritic).
		AddEdge(StepExtractor, StepCritic).
		AddConditionalEdges(StepCritic, routeAfterCritic, map[string]Step{
			routeRetryStrategist: StepStrategist,
			routeRetryExtractor:  StepExtractor,
			routeProceed:         StepCopywriter,
		}).
		AddEdge(StepCopywriter, StepHumanReview).
		AddConditionalEdges(StepHumanReview, routeAfterHuman, map[string]Step{
			routeRefine:   StepRefiner,
			routeFinalize: End,
		}).
		AddEdge(StepRefiner, StepHumanReview).
		SetInterruptBefore(StepHumanReview).
		Compile()
}

func newInput(st *session.State) *capability.Input {
	return &capability.Input{
		SessionID:  st.SessionID,
		Metadata:   st.Metadata,
		Transcript: st.Transcript,
	}
}

func strategistNode(caps *capability.Set) NodeFunc {
	return func(ctx context.Context, st *session.State) (*session.Delta, error) {
		out, err := caps.Strategist.Analyze(ctx, newInput(st))
		if err != nil {
			return nil, fmt.Errorf("strategist: %w", err)
		}
		return &session.Delta{Strategist: out}, nil
	}
}

func extractorNode(caps *capability.Set) NodeFunc {
	return func(ctx context.Context, st *session.State) (*session.Delta, error) {
		out, err := caps.Extractor.Extract(ctx, newInput(st))
		if err != nil {
			return nil, fmt.Errorf("extractor: %w", err)
		}
		return &session.Delta{Extractor: out}, nil
	}
}

// criticNode validates both branches. A branch that produced nothing
// (its retries were exhausted) is rejected up front and the verdict is
// flagged unverified so the reviewer sees the gap instead of a stall.
func criticNode(caps *capability.Set) NodeFunc {
	return func(ctx context.Context, st *session.State) (*session.Delta, error) {
		if st.Strategist == nil || st.Extractor == nil {
			out := &session.CriticOutput{
				StrategistApproved: st.Strategist != nil,
				ExtractorApproved:  st.Extractor != nil,
				Unverified:         true,
			}
			if st.Strategist == nil {
				out.StrategistFeedback = "strategist produced no output"
			}
			if st.Extractor == nil {
				out.ExtractorFeedback = "extractor produced no output"
			}
			return &session.Delta{Critic: out}, nil
		}
		out, err := caps.Critic.Review(ctx, &capability.ReviewInput{
			Input:      *newInput(st),
			Strategist: st.Strategist,
			Extractor:  st.Extractor,
		})
		if err != nil {
			return nil, fmt.Errorf("critic: %w", err)
		}
		if !out.Approved && reviewBudgetSpent(st, out) {
			// No retries left for any rejected branch: proceed with the
			// best available output, flagged for the reviewer.
			out.Unverified = true
		}
		return &session.Delta{Critic: out}, nil
	}
}

// reviewBudgetSpent reports whether every branch the critic rejected has
// already used its validation re-runs.
func reviewBudgetSpent(st *session.State, out *session.CriticOutput) bool {
	if !out.StrategistApproved && st.RetryCount(string(StepStrategist)) < maxReviewRounds {
		return false
	}
	if !out.ExtractorApproved && st.RetryCount(string(StepExtractor)) < maxReviewRounds {
		return false
	}
	return true
}

func routeAfterCritic(ctx context.Context, st *session.State) string {
	c := st.Critic
	if c == nil || c.Approved || c.Unverified {
		return routeProceed
	}
	// Strategist first: the context must be right before facts are re-cut.
	if !c.StrategistApproved && st.RetryCount(string(StepStrategist)) < maxReviewRounds {
		return routeRetryStrategist
	}
	if !c.ExtractorApproved && st.RetryCount(string(StepExtractor)) < maxReviewRounds {
		return routeRetryExtractor
	}
	return routeProceed
}

func copywriterNode(caps *capability.Set) NodeFunc {
	return func(ctx context.Context, st *session.State) (*session.Delta, error) {
		out, err := caps.Copywriter.Draft(ctx, &capability.DraftInput{
			Input:      *newInput(st),
			Strategist: st.Strategist,
			Extractor:  st.Extractor,
		})
		if err != nil {
			return nil, fmt.Errorf("copywriter: %w", err)
		}
		return &session.Delta{Draft: out}, nil
	}
}

// humanReviewNode runs only on resume; on first arrival execution
// suspends before it. Approval closes the session.
func humanReviewNode() NodeFunc {
	return func(ctx context.Context, st *session.State) (*session.Delta, error) {
		if st.Feedback != nil && st.Feedback.Decision == session.DecisionApprove {
			return &session.Delta{Status: session.StatusApproved}, nil
		}
		return nil, nil
	}
}

func routeAfterHuman(ctx context.Context, st *session.State) string {
	if st.Feedback != nil && st.Feedback.Decision == session.DecisionApprove {
		return routeFinalize
	}
	// Anything short of approval goes another refinement round; the
	// refiner is a no-op when there are no instructions to apply.
	return routeRefine
}

func refinerNode(caps *capability.Set) NodeFunc {
	return func(ctx context.Context, st *session.State) (*session.Delta, error) {
		if st.Feedback == nil || strings.TrimSpace(st.Feedback.Instructions) == "" {
			return nil, nil
		}
		out, err := caps.Refiner.Refine(ctx, &capability.RefineInput{
			Input:        *newInput(st),
			Draft:        st.Draft,
			Extractor:    st.Extractor,
			Instructions: st.Feedback.Instructions,
		})
		if err != nil {
			return nil, fmt.Errorf("refiner: %w", err)
		}
		return &session.Delta{Draft: out}, nil
	}
}

// criticFallback stands in when the critic itself is unreachable: the
// analysis proceeds unvalidated and flagged.
func criticFallback(st *session.State, cause error) *session.Delta {
	return &session.Delta{Critic: &session.CriticOutput{
		StrategistApproved: st.Strategist != nil,
		ExtractorApproved:  st.Extractor != nil,
		StrategistFeedback: "validation unavailable",
		ExtractorFeedback:  "validation unavailable",
		Unverified:         true,
	}}
}

// draftFallback assembles a plain draft from the extracted facts so a
// suspended session never presents a blank result.
func draftFallback(st *session.State, cause error) *session.Delta {
	subject := "Meeting follow-up"
	if st.Metadata.Title != "" {
		subject = "Follow-up: " + st.Metadata.Title
	}
	var b strings.Builder
	b.WriteString("Hi all,\n\nSharing a quick follow-up from the meeting.\n")
	if ex := st.Extractor; ex != nil {
		if len(ex.Decisions) > 0 {
			b.WriteString("\nDecisions:\n")
			for _, d := range ex.Decisions {
				fmt.Fprintf(&b, "- %s\n", d)
			}
		}
		if len(ex.Commitments) > 0 {
			b.WriteString("\nAction items:\n")
			for _, c := range ex.Commitments {
				fmt.Fprintf(&b, "- %s: %s (Due: %s)\n", c.Owner, c.Task, c.Due)
			}
		}
	}
	b.WriteString("\nBest regards\n")
	return &session.Delta{Draft: &session.EmailDraft{Subject: subject, Body: b.String()}}
}
