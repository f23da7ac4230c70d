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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-council-go/graph/checkpoint"
	"trpc.group/trpc-go/trpc-council-go/session"
)

func noopNode(ctx context.Context, st *session.State) (*session.Delta, error) {
	return nil, nil
}

func TestCompileValidGraph(t *testing.T) {
	g, err := NewStateGraph().
		AddNode("a", noopNode).
		AddNode("b", noopNode).
		SetEntryPoints("a").
		AddEdge("a", "b").
		AddEdge("b", End).
		Compile()
	require.NoError(t, err)
	assert.Equal(t, []Step{"a"}, g.EntryPoints())
}

func TestCompileRejectsNoEntryPoint(t *testing.T) {
	_, err := NewStateGraph().
		AddNode("a", noopNode).
		AddEdge("a", End).
		Compile()
	assert.ErrorContains(t, err, "no entry point")
}

func TestCompileRejectsUnknownEdgeTarget(t *testing.T) {
	_, err := NewStateGraph().
		AddNode("a", noopNode).
		SetEntryPoints("a").
		AddEdge("a", "ghost").
		Compile()
	assert.ErrorContains(t, err, "ghost")
}

func TestCompileRejectsDeadEnd(t *testing.T) {
	_, err := NewStateGraph().
		AddNode("a", noopNode).
		AddNode("b", noopNode).
		SetEntryPoints("a").
		AddEdge("a", "b").
		Compile()
	assert.ErrorContains(t, err, "dead end")
}

func TestCompileRejectsUnreachableNode(t *testing.T) {
	_, err := NewStateGraph().
		AddNode("a", noopNode).
		AddNode("island", noopNode).
		SetEntryPoints("a").
		AddEdge("a", End).
		AddEdge("island", End).
		Compile()
	assert.ErrorContains(t, err, "unreachable")
}

func TestCompileRejectsDivergentFanIn(t *testing.T) {
	_, err := NewStateGraph().
		AddNode("a", noopNode).
		AddNode("b", noopNode).
		AddNode("c", noopNode).
		AddNode("d", noopNode).
		SetEntryPoints("a", "b").
		AddEdge("a", "c").
		AddEdge("b", "d").
		AddEdge("c", End).
		AddEdge("d", End).
		Compile()
	assert.ErrorContains(t, err, "fan-in")
}

func TestCompileRejectsConflictingEdges(t *testing.T) {
	_, err := NewStateGraph().
		AddNode("a", noopNode).
		AddNode("b", noopNode).
		SetEntryPoints("a").
		AddEdge("a", "b").
		AddConditionalEdges("a", func(ctx context.Context, st *session.State) string { return "x" },
			map[string]Step{"x": "b"}).
		AddEdge("b", End).
		Compile()
	assert.ErrorContains(t, err, "both a static and a conditional edge")
}

func TestRouteUnmappedConditionalResult(t *testing.T) {
	g, err := NewStateGraph().
		AddNode("a", noopNode).
		AddNode("b", noopNode).
		SetEntryPoints("a").
		AddConditionalEdges("a", func(ctx context.Context, st *session.State) string { return "nope" },
			map[string]Step{"x": "b"}).
		AddEdge("b", End).
		Compile()
	require.NoError(t, err)

	_, routeErr := g.Route(context.Background(), "a", &session.State{})
	assert.ErrorIs(t, routeErr, ErrNoRoute)
}

func TestCouncilGraphTopology(t *testing.T) {
	g, err := NewCouncilGraph(happyCaps())
	require.NoError(t, err)

	assert.Equal(t, []Step{StepStrategist, StepExtractor}, g.EntryPoints())
	assert.Equal(t, StepCritic, g.JoinStep())
	assert.True(t, g.InterruptBefore(StepHumanReview))
	assert.False(t, g.InterruptBefore(StepCritic))

	steps, ok := g.StepsAt(checkpoint.PositionAnalyze)
	require.True(t, ok)
	assert.Equal(t, []Step{StepStrategist, StepExtractor}, steps)

	steps, ok = g.StepsAt(checkpoint.PositionRefiner)
	require.True(t, ok)
	assert.Equal(t, []Step{StepRefiner}, steps)

	_, ok = g.StepsAt(checkpoint.Position("bogus"))
	assert.False(t, ok)
}

func TestCouncilGraphRequiresFullSet(t *testing.T) {
	caps := happyCaps()
	caps.Critic = nil
	_, err := NewCouncilGraph(caps)
	assert.ErrorContains(t, err, "critic")
}

func TestRouteAfterCritic(t *testing.T) {
	st := &session.State{RetryCounts: map[string]int{}}

	// No verdict yet or approved: proceed.
	assert.Equal(t, routeProceed, routeAfterCritic(context.Background(), st))
	st.Critic = &session.CriticOutput{Approved: true, StrategistApproved: true, ExtractorApproved: true}
	assert.Equal(t, routeProceed, routeAfterCritic(context.Background(), st))

	// Strategist rejection goes first even when both failed.
	st.Critic = &session.CriticOutput{StrategistApproved: false, ExtractorApproved: false}
	assert.Equal(t, routeRetryStrategist, routeAfterCritic(context.Background(), st))

	// Strategist budget spent: the extractor branch gets its turn.
	st.RetryCounts[string(StepStrategist)] = maxReviewRounds
	assert.Equal(t, routeRetryExtractor, routeAfterCritic(context.Background(), st))

	// All budget spent: proceed with what exists.
	st.RetryCounts[string(StepExtractor)] = maxReviewRounds
	assert.Equal(t, routeProceed, routeAfterCritic(context.Background(), st))

	// Unverified verdicts never loop.
	st.RetryCounts = map[string]int{}
	st.Critic = &session.CriticOutput{Unverified: true}
	assert.Equal(t, routeProceed, routeAfterCritic(context.Background(), st))
}

func TestRouteAfterHuman(t *testing.T) {
	st := &session.State{}
	assert.Equal(t, routeRefine, routeAfterHuman(context.Background(), st))

	st.Feedback = &session.HumanFeedback{Decision: session.DecisionRevise, Instructions: "shorter"}
	assert.Equal(t, routeRefine, routeAfterHuman(context.Background(), st))

	st.Feedback = &session.HumanFeedback{Decision: session.DecisionApprove}
	assert.Equal(t, routeFinalize, routeAfterHuman(context.Background(), st))
}

func TestDraftFallbackNeverBlank(t *testing.T) {
	st := newTestState(t)
	st.Extractor = &session.ExtractorOutput{
		Commitments: []session.Commitment{{Task: "Send the report", Owner: "Alice", Due: "Friday"}},
		Decisions:   []string{"Ship in Q4"},
	}
	delta := draftFallback(st, assert.AnError)
	require.NotNil(t, delta.Draft)
	assert.Equal(t, "Follow-up: Q4 Planning", delta.Draft.Subject)
	assert.Contains(t, delta.Draft.Body, "Ship in Q4")
	assert.Contains(t, delta.Draft.Body, "Alice: Send the report (Due: Friday)")
}
