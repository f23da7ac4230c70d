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
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"trpc.group/trpc-go/trpc-council-go/capability"
	"trpc.group/trpc-go/trpc-council-go/graph/checkpoint"
	itelemetry "trpc.group/trpc-go/trpc-council-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-council-go/log"
	"trpc.group/trpc-go/trpc-council-go/session"
	cmetric "trpc.group/trpc-go/trpc-council-go/telemetry/metric"
	ctrace "trpc.group/trpc-go/trpc-council-go/telemetry/trace"
)

// Default executor settings.
const (
	defaultStepTimeout = 60 * time.Second
	defaultPoolSize    = 8
)

// Executor advances session state through a compiled graph: parallel
// fan-out with a fan-in barrier, conditional routing, bounded retries
// with backoff, a checkpoint after every step and suspension at the
// interrupt step. One executor is safe for concurrent use across
// sessions; state for a single session must not be executed twice at
// the same time.
type Executor struct {
	graph       *Graph
	store       checkpoint.Store
	retryPolicy RetryPolicy
	stepTimeout time.Duration
	pool        *ants.Pool

	stepCount    metric.Int64Counter
	stepDuration metric.Float64Histogram
}

// ExecutorOption configures the executor.
type ExecutorOption func(*Executor)

// WithCheckpointStore sets the durable checkpoint store. Required.
func WithCheckpointStore(store checkpoint.Store) ExecutorOption {
	return func(e *Executor) { e.store = store }
}

// WithRetryPolicy overrides the per-step retry policy.
func WithRetryPolicy(p RetryPolicy) ExecutorOption {
	return func(e *Executor) { e.retryPolicy = p }
}

// WithStepTimeout bounds every capability invocation. A timed-out
// invocation fails as retryable.
func WithStepTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.stepTimeout = d }
}

// WithPool sets the goroutine pool used for parallel fan-out. The caller
// keeps ownership and releases it.
func WithPool(pool *ants.Pool) ExecutorOption {
	return func(e *Executor) { e.pool = pool }
}

// NewExecutor creates an executor over a compiled graph.
func NewExecutor(g *Graph, opts ...ExecutorOption) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is required")
	}
	e := &Executor{
		graph:       g,
		retryPolicy: DefaultRetryPolicy(),
		stepTimeout: defaultStepTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	e.stepCount, _ = cmetric.Meter.Int64Counter("council_step_count",
		metric.WithDescription("Number of pipeline step executions."))
	e.stepDuration, _ = cmetric.Meter.Float64Histogram("council_step_duration",
		metric.WithDescription("Pipeline step latency in seconds."),
		metric.WithUnit("s"))
	return e, nil
}

// branchResult is one parallel branch's outcome at the fan-in barrier.
type branchResult struct {
	step  Step
	delta *session.Delta
	err   error
}

// Execute runs the graph over st from the given position. It checkpoints
// after every step; on reaching an interrupt step it persists the
// suspended session and returns an InterruptError; on reaching the end
// it persists the terminal checkpoint and returns the final state.
// Fatal capability failures abort with the state as of the last
// checkpoint. st is mutated in place and returned.
func (e *Executor) Execute(ctx context.Context, st *session.State, from checkpoint.Position) (*session.State, error) {
	if st == nil {
		return nil, ErrStateRequired
	}
	// Positions come back from durable checkpoints; reject anything a
	// corrupted or hand-edited record could carry before running a step.
	if !from.Valid() {
		return st, fmt.Errorf("%w: %s", ErrUnknownPosition, from)
	}
	pos := from
	for {
		if err := ctx.Err(); err != nil {
			return st, e.abort(ctx, st, pos, fmt.Errorf("execution canceled at %s: %w", pos, err))
		}
		steps, ok := e.graph.StepsAt(pos)
		if !ok {
			return st, fmt.Errorf("%w: %s", ErrUnknownPosition, pos)
		}
		var next Step
		if len(steps) > 1 {
			// Fan-out layer: every branch shares one static fan-in target.
			if err := e.runParallelLayer(ctx, st, steps); err != nil {
				return st, e.abort(ctx, st, pos, err)
			}
			next = e.graph.JoinStep()
		} else {
			if err := e.runSingleStep(ctx, st, steps[0]); err != nil {
				return st, e.abort(ctx, st, pos, err)
			}
			to, err := e.graph.Route(ctx, steps[0], st)
			if err != nil {
				return st, e.abort(ctx, st, pos, err)
			}
			next = to
		}
		if next == End {
			if err := e.saveCheckpoint(ctx, st, checkpoint.PositionDone); err != nil {
				return st, err
			}
			log.Infof("session %s reached terminal step, status %s", st.SessionID, st.Status)
			return st, nil
		}
		if e.graph.InterruptBefore(next) {
			st.Apply(&session.Delta{Status: session.StatusActiveReview})
			if err := e.saveCheckpoint(ctx, st, checkpoint.Position(next)); err != nil {
				return st, err
			}
			log.Infof("session %s suspended at %s", st.SessionID, next)
			return st, NewInterruptError(st.SessionID, next)
		}
		// A branch re-run ordered by a conditional edge consumes one unit
		// of that branch's validation budget.
		if len(steps) == 1 && e.isBranchRerun(steps[0], next) {
			st.SetRetryCount(string(next), st.RetryCount(string(next))+1)
		}
		pos = checkpoint.Position(next)
		if err := e.saveCheckpoint(ctx, st, pos); err != nil {
			return st, err
		}
	}
}

// isBranchRerun reports whether the edge last→next routes back into the
// parallel entry layer, i.e. a validation-loop re-run.
func (e *Executor) isBranchRerun(last, next Step) bool {
	if _, ok := e.graph.conditionalEdges[last]; !ok {
		return false
	}
	for _, entry := range e.graph.entryPoints {
		if entry == next {
			return true
		}
	}
	return false
}

// runParallelLayer fans the layer's steps out to the worker pool and
// waits for every branch before merging any delta. Branches run on deep
// copies of the state, so an in-flight branch never observes another's
// partial write. Deltas merge in declaration order; a retry-exhausted
// branch contributes nothing and the critic flags the gap downstream.
func (e *Executor) runParallelLayer(ctx context.Context, st *session.State, steps []Step) error {
	results := make([]branchResult, len(steps))
	var wg sync.WaitGroup
	for i, id := range steps {
		node, ok := e.graph.Node(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoRoute, id)
		}
		wg.Add(1)
		branch := st.Clone()
		idx, n := i, node
		task := func() {
			defer wg.Done()
			delta, err := e.runStep(ctx, n, branch)
			results[idx] = branchResult{step: n.ID, delta: delta, err: err}
		}
		if e.pool != nil {
			if err := e.pool.Submit(task); err != nil {
				// Pool saturated or released: degrade to inline execution
				// rather than losing the branch.
				go task()
			}
		} else {
			go task()
		}
	}
	wg.Wait()
	for _, res := range results {
		if res.err == nil {
			continue
		}
		if IsRetryExhausted(res.err) {
			log.Warnf("session %s branch %s exhausted retries: %v", st.SessionID, res.step, res.err)
			continue
		}
		return res.err
	}
	for _, res := range results {
		st.Apply(res.delta)
	}
	return nil
}

// runSingleStep executes one step and merges its delta, falling back to
// the node's best-effort update when the retry budget is exhausted.
func (e *Executor) runSingleStep(ctx context.Context, st *session.State, id Step) error {
	node, ok := e.graph.Node(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRoute, id)
	}
	delta, err := e.runStep(ctx, node, st)
	if err != nil {
		if !IsRetryExhausted(err) {
			return err
		}
		if node.Fallback == nil {
			log.Warnf("session %s step %s exhausted retries, proceeding without output: %v",
				st.SessionID, id, err)
			return nil
		}
		log.Warnf("session %s step %s exhausted retries, applying fallback: %v", st.SessionID, id, err)
		delta = node.Fallback(st, err)
	}
	st.Apply(delta)
	return nil
}

// runStep invokes a node under the retry policy. Transient failures back
// off and re-attempt up to the budget; fatal classifications and context
// cancellation return immediately.
func (e *Executor) runStep(ctx context.Context, node *Node, st *session.State) (*session.Delta, error) {
	maxAttempts := e.retryPolicy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		delta, err := e.invoke(ctx, node, st, attempt)
		if err == nil {
			return delta, nil
		}
		if capability.IsFatal(err) {
			return nil, fmt.Errorf("step %s failed fatally: %w", node.ID, err)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("step %s canceled: %w", node.ID, err)
		}
		if !e.retryPolicy.ShouldRetry(err) {
			return nil, fmt.Errorf("step %s failed: %w", node.ID, err)
		}
		lastErr = err
		if attempt < maxAttempts {
			delay := e.retryPolicy.NextDelay(attempt)
			log.Debugf("session %s step %s attempt %d failed, retrying in %s: %v",
				st.SessionID, node.ID, attempt, delay, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("step %s canceled during backoff: %w", node.ID, ctx.Err())
			}
		}
	}
	return nil, &RetryExhaustedError{Step: node.ID, Attempts: maxAttempts, Err: lastErr}
}

// invoke runs one attempt of a node under the step timeout, with a span
// and step metrics around the call.
func (e *Executor) invoke(ctx context.Context, node *Node, st *session.State, attempt int) (*session.Delta, error) {
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}
	ctx, span := ctrace.Tracer.Start(ctx,
		fmt.Sprintf("%s %s", itelemetry.SpanNamePrefixStep, node.ID))
	defer span.End()
	itelemetry.TraceStep(span, st.SessionID, string(node.ID), attempt)

	start := time.Now()
	delta, err := node.Run(ctx, st)
	elapsed := time.Since(start).Seconds()

	outcome := "ok"
	if err != nil {
		outcome = capability.ClassOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	attrs := metric.WithAttributes(
		attribute.String(itelemetry.KeyStep, string(node.ID)),
		attribute.String("outcome", outcome),
	)
	e.stepCount.Add(ctx, 1, attrs)
	e.stepDuration.Record(ctx, elapsed, attrs)
	return delta, err
}

// abort checkpoints the session before surfacing a terminal failure so
// an operator can inspect and resume it after fixing the capability.
func (e *Executor) abort(ctx context.Context, st *session.State, pos checkpoint.Position, cause error) error {
	if err := e.saveCheckpoint(context.WithoutCancel(ctx), st, pos); err != nil {
		log.Errorf("session %s abort checkpoint failed: %v", st.SessionID, err)
	}
	log.Errorf("session %s aborted at %s: %v", st.SessionID, pos, cause)
	return cause
}

func (e *Executor) saveCheckpoint(ctx context.Context, st *session.State, pos checkpoint.Position) error {
	if err := e.store.Save(ctx, checkpoint.New(st, pos)); err != nil {
		return fmt.Errorf("checkpoint session %s at %s: %w", st.SessionID, pos, err)
	}
	return nil
}
