//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

// Package graph implements the pipeline workflow engine: a fixed directed
// graph of named steps executed over session state with parallel fan-out,
// conditional routing, bounded retries, durable checkpointing and an
// explicit human-in-the-loop interrupt step.
package graph

import (
	"context"
	"fmt"

	"trpc.group/trpc-go/trpc-council-go/graph/checkpoint"
	"trpc.group/trpc-go/trpc-council-go/session"
)

// Step names one unit of work in the pipeline graph. Step values double
// as checkpoint positions, so renaming one is a storage format change.
type Step string

// Sentinel steps.
const (
	// Start is the virtual entry of the graph.
	Start Step = "__start__"
	// End is the virtual terminal of the graph.
	End Step = "__end__"
)

// Pipeline steps.
const (
	StepStrategist  Step = "strategist"
	StepExtractor   Step = "extractor"
	StepCritic      Step = "critic"
	StepCopywriter  Step = "copywriter"
	StepHumanReview Step = "human_review"
	StepRefiner     Step = "refiner"
)

// NodeFunc is the unit of execution for a step. It receives the current
// state and returns a partial update; it must be safe to re-execute, so
// implementations overwrite rather than append.
type NodeFunc func(ctx context.Context, st *session.State) (*session.Delta, error)

// FallbackFunc produces the best-effort update for a step whose retries
// are exhausted. Returning nil proceeds without an update.
type FallbackFunc func(st *session.State, cause error) *session.Delta

// ConditionalFunc evaluates a routing decision against the current state.
// The returned key is resolved through the edge's path map.
type ConditionalFunc func(ctx context.Context, st *session.State) string

// Node is a registered step.
type Node struct {
	ID       Step
	Run      NodeFunc
	Fallback FallbackFunc
}

// NodeOption configures a node at registration time.
type NodeOption func(*Node)

// WithFallback sets the best-effort update used when the step's retry
// budget is exhausted.
func WithFallback(fb FallbackFunc) NodeOption {
	return func(n *Node) { n.Fallback = fb }
}

// ConditionalEdge routes from a step to one of several targets based on
// the current state.
type ConditionalEdge struct {
	From      Step
	Condition ConditionalFunc
	// PathMap maps condition results to target steps.
	PathMap map[string]Step
}

// Graph is an immutable, validated pipeline topology. Build one with
// StateGraph and Compile.
type Graph struct {
	nodes            map[Step]*Node
	edges            map[Step]Step
	conditionalEdges map[Step]*ConditionalEdge
	entryPoints      []Step
	interruptBefore  map[Step]bool
}

// Node returns the registered node for a step.
func (g *Graph) Node(id Step) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// EntryPoints returns the parallel entry layer.
func (g *Graph) EntryPoints() []Step {
	return append([]Step(nil), g.entryPoints...)
}

// InterruptBefore reports whether execution must suspend when arriving
// at the step.
func (g *Graph) InterruptBefore(id Step) bool {
	return g.interruptBefore[id]
}

// JoinStep returns the fan-in barrier target shared by the entry layer.
func (g *Graph) JoinStep() Step {
	return g.edges[g.entryPoints[0]]
}

// Route resolves the successor of a step against the current state.
func (g *Graph) Route(ctx context.Context, from Step, st *session.State) (Step, error) {
	if cond, ok := g.conditionalEdges[from]; ok {
		key := cond.Condition(ctx, st)
		to, ok := cond.PathMap[key]
		if !ok {
			return End, fmt.Errorf("%w: step %s produced unmapped route %q", ErrNoRoute, from, key)
		}
		return to, nil
	}
	if to, ok := g.edges[from]; ok {
		return to, nil
	}
	return End, fmt.Errorf("%w: step %s has no outgoing edge", ErrNoRoute, from)
}

// StepsAt maps a checkpoint position to the step layer it names. The
// analyze position expands to the parallel entry layer; every other
// position names the step with the same identifier.
func (g *Graph) StepsAt(pos checkpoint.Position) ([]Step, bool) {
	if pos == checkpoint.PositionAnalyze {
		return g.EntryPoints(), true
	}
	if _, ok := g.nodes[Step(pos)]; ok {
		return []Step{Step(pos)}, true
	}
	return nil, false
}

// validate checks structural integrity before the graph is used.
func (g *Graph) validate() error {
	if len(g.entryPoints) == 0 {
		return fmt.Errorf("graph has no entry point")
	}
	for _, entry := range g.entryPoints {
		if _, ok := g.nodes[entry]; !ok {
			return fmt.Errorf("entry point %s is not a registered node", entry)
		}
	}
	if len(g.entryPoints) > 1 {
		join, ok := g.edges[g.entryPoints[0]]
		if !ok {
			return fmt.Errorf("entry point %s has no fan-in edge", g.entryPoints[0])
		}
		for _, entry := range g.entryPoints[1:] {
			if g.edges[entry] != join {
				return fmt.Errorf("entry points must share one fan-in target, %s does not reach %s", entry, join)
			}
		}
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("edge source %s is not a registered node", from)
		}
		if _, ok := g.conditionalEdges[from]; ok {
			return fmt.Errorf("step %s has both a static and a conditional edge", from)
		}
		if to != End {
			if _, ok := g.nodes[to]; !ok {
				return fmt.Errorf("edge target %s is not a registered node", to)
			}
		}
	}
	for from, cond := range g.conditionalEdges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("conditional edge source %s is not a registered node", from)
		}
		if cond.Condition == nil {
			return fmt.Errorf("conditional edge from %s has no condition", from)
		}
		if len(cond.PathMap) == 0 {
			return fmt.Errorf("conditional edge from %s has an empty path map", from)
		}
		for key, to := range cond.PathMap {
			if to == End {
				continue
			}
			if _, ok := g.nodes[to]; !ok {
				return fmt.Errorf("conditional route %q from %s targets unknown step %s", key, from, to)
			}
		}
	}
	for id := range g.interruptBefore {
		if _, ok := g.nodes[id]; !ok {
			return fmt.Errorf("interrupt step %s is not a registered node", id)
		}
	}
	return g.checkReachability()
}

func (g *Graph) checkReachability() error {
	seen := make(map[Step]bool, len(g.nodes))
	var walk func(Step)
	walk = func(id Step) {
		if id == End || seen[id] {
			return
		}
		seen[id] = true
		if to, ok := g.edges[id]; ok {
			walk(to)
		}
		if cond, ok := g.conditionalEdges[id]; ok {
			for _, to := range cond.PathMap {
				walk(to)
			}
		}
	}
	for _, entry := range g.entryPoints {
		walk(entry)
	}
	for id := range g.nodes {
		if !seen[id] {
			return fmt.Errorf("step %s is unreachable from the entry points", id)
		}
		if _, hasEdge := g.edges[id]; !hasEdge {
			if _, hasCond := g.conditionalEdges[id]; !hasCond {
				return fmt.Errorf("step %s is a dead end", id)
			}
		}
	}
	return nil
}

// StateGraph is the fluent builder for a Graph.
type StateGraph struct {
	graph *Graph
}

// NewStateGraph creates an empty builder.
func NewStateGraph() *StateGraph {
	return &StateGraph{graph: &Graph{
		nodes:            make(map[Step]*Node),
		edges:            make(map[Step]Step),
		conditionalEdges: make(map[Step]*ConditionalEdge),
		interruptBefore:  make(map[Step]bool),
	}}
}

// AddNode registers a step.
func (sg *StateGraph) AddNode(id Step, fn NodeFunc, opts ...NodeOption) *StateGraph {
	node := &Node{ID: id, Run: fn}
	for _, opt := range opts {
		opt(node)
	}
	sg.graph.nodes[id] = node
	return sg
}

// AddEdge adds a static edge between two steps.
func (sg *StateGraph) AddEdge(from, to Step) *StateGraph {
	sg.graph.edges[from] = to
	return sg
}

// AddConditionalEdges adds a state-dependent route from a step.
func (sg *StateGraph) AddConditionalEdges(from Step, cond ConditionalFunc, pathMap map[string]Step) *StateGraph {
	targets := make(map[string]Step, len(pathMap))
	for k, v := range pathMap {
		targets[k] = v
	}
	sg.graph.conditionalEdges[from] = &ConditionalEdge{From: from, Condition: cond, PathMap: targets}
	return sg
}

// SetEntryPoints declares the entry layer. More than one step means the
// layer fans out in parallel and joins at a shared successor.
func (sg *StateGraph) SetEntryPoints(ids ...Step) *StateGraph {
	sg.graph.entryPoints = append([]Step(nil), ids...)
	return sg
}

// SetInterruptBefore marks steps at which execution suspends pending
// external input.
func (sg *StateGraph) SetInterruptBefore(ids ...Step) *StateGraph {
	for _, id := range ids {
		sg.graph.interruptBefore[id] = true
	}
	return sg
}

// Compile validates the topology and returns the immutable graph.
func (sg *StateGraph) Compile() (*Graph, error) {
	if err := sg.graph.validate(); err != nil {
		return nil, err
	}
	return sg.graph, nil
}

// MustCompile is Compile for statically known-good graphs.
func (sg *StateGraph) MustCompile() *Graph {
	g, err := sg.Compile()
	if err != nil {
		panic(err)
	}
	return g
}
