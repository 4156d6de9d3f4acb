// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dag is a minimal dataflow host for datagate components.
//
// Nodes are wired by name into a directed acyclic graph. The Executor keeps
// every node's last output and an "expired" mark per node. Changing a value
// expires that node and everything downstream of it; Solve then evaluates
// expired nodes in dependency order.
//
// Two hooks let components shape propagation:
//
//   - A node implementing Barrier stops upstream expiry at itself, so its
//     consumers are not re-evaluated just because its inputs changed.
//   - A node returning Output.Invalidate expires its consumers explicitly.
//
// Together these let a gate decide when downstream work happens.
package dag

import (
	"context"
	"fmt"
	"sort"

	"github.com/AleutianAI/datagate/services/datagate/diag"
	"github.com/AleutianAI/datagate/services/datagate/tree"
)

// Node is one component in the graph.
type Node interface {
	// Name returns the node's unique identifier.
	Name() string

	// Dependencies returns the names of nodes whose outputs this node reads.
	Dependencies() []string

	// Execute evaluates the node once.
	Execute(ctx context.Context, in *Inputs) (Output, error)
}

// Barrier is implemented by nodes that absorb upstream expiry.
type Barrier interface {
	HoldsDownstream() bool
}

// Preparer is implemented by nodes with slow work, such as network probes,
// that must not run under the executor lock. Solve calls Prepare on every
// such node before it takes the lock.
type Preparer interface {
	Prepare(ctx context.Context)
}

// Output is the result of one node evaluation.
type Output struct {
	// Value is the node's new output.
	Value any

	// Invalidate expires every consumer of this node.
	Invalidate bool

	// Aborted keeps the previous output. Value is ignored.
	Aborted bool
}

// Inputs gives a node access to its dependencies' current outputs.
type Inputs struct {
	values   map[string]any
	reporter diag.Reporter
}

// NewInputs creates an Inputs value. Intended for tests and custom hosts.
func NewInputs(values map[string]any, reporter diag.Reporter) *Inputs {
	if values == nil {
		values = map[string]any{}
	}
	if reporter == nil {
		reporter = diag.Discard
	}
	return &Inputs{values: values, reporter: reporter}
}

// Value returns the raw output of a dependency.
func (in *Inputs) Value(name string) (any, bool) {
	v, ok := in.values[name]
	return v, ok && v != nil
}

// Structure returns a dependency output as a structure.
//
// A missing dependency becomes an empty structure. Scalar outputs are
// wrapped as a single item at {0}.
func (in *Inputs) Structure(name string) *tree.Structure {
	v, ok := in.Value(name)
	if !ok {
		return tree.New()
	}
	switch s := v.(type) {
	case *tree.Structure:
		return tree.OrEmpty(s)
	default:
		return tree.FromItems(s)
	}
}

// Bool returns a dependency output as a boolean, or def when missing.
//
// A structure input uses its first item, the way a host casts a single
// wired value to a flag.
func (in *Inputs) Bool(name string, def bool) bool {
	v, ok := in.first(name)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		in.warnCast(name, v, "bool")
		return def
	}
	return b
}

// Int returns a dependency output as an integer, or def when missing.
func (in *Inputs) Int(name string, def int) int {
	v, ok := in.first(name)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n == float64(int(n)) {
			return int(n)
		}
	}
	in.warnCast(name, v, "integer")
	return def
}

// Reporter returns the message channel for this evaluation.
func (in *Inputs) Reporter() diag.Reporter {
	return in.reporter
}

func (in *Inputs) first(name string) (any, bool) {
	v, ok := in.Value(name)
	if !ok {
		return nil, false
	}
	s, isStructure := v.(*tree.Structure)
	if !isStructure {
		return v, true
	}
	data := s.AllData()
	if len(data) == 0 {
		return nil, false
	}
	return data[0], true
}

func (in *Inputs) warnCast(name string, v any, want string) {
	diag.Warnf(in.reporter, "input %s: cannot use %T as %s, using default", name, v, want)
}

// BaseNode provides the name and dependency parts of Node.
//
// Embed it in concrete nodes and implement Execute.
type BaseNode struct {
	NodeName         string
	NodeDependencies []string
}

// Name returns the node's unique identifier.
func (n *BaseNode) Name() string {
	return n.NodeName
}

// Dependencies returns the names of nodes that feed this node.
func (n *BaseNode) Dependencies() []string {
	if n.NodeDependencies == nil {
		return []string{}
	}
	return n.NodeDependencies
}

// dependsOn builds a dependency list, skipping empty and repeated names.
func dependsOn(names ...string) []string {
	seen := make(map[string]bool, len(names))
	deps := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		deps = append(deps, n)
	}
	return deps
}

// FuncNode wraps a function as a Node.
//
// Example:
//
//	node := dag.NewFuncNode("COUNT", []string{"data"}, func(ctx context.Context, in *dag.Inputs) (dag.Output, error) {
//	    return dag.Output{Value: in.Structure("data").DataCount()}, nil
//	})
type FuncNode struct {
	BaseNode
	fn func(context.Context, *Inputs) (Output, error)
}

// NewFuncNode creates a node from a function.
func NewFuncNode(name string, deps []string, fn func(context.Context, *Inputs) (Output, error)) *FuncNode {
	return &FuncNode{
		BaseNode: BaseNode{NodeName: name, NodeDependencies: deps},
		fn:       fn,
	}
}

// Execute runs the wrapped function.
func (n *FuncNode) Execute(ctx context.Context, in *Inputs) (Output, error) {
	if n.fn == nil {
		return Output{}, ErrInvalidInput
	}
	return n.fn(ctx, in)
}

// DAG is a validated, immutable component graph.
type DAG struct {
	name       string
	nodes      map[string]Node
	order      []string
	recipients map[string][]string
}

// Name returns the graph name.
func (d *DAG) Name() string {
	return d.name
}

// NodeCount returns the number of nodes.
func (d *DAG) NodeCount() int {
	return len(d.nodes)
}

// Order returns node names in evaluation order.
func (d *DAG) Order() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// GetNode returns a node by name.
func (d *DAG) GetNode(name string) (Node, bool) {
	n, ok := d.nodes[name]
	return n, ok
}

// Recipients returns the names of nodes that read name's output.
func (d *DAG) Recipients(name string) []string {
	out := make([]string, len(d.recipients[name]))
	copy(out, d.recipients[name])
	return out
}

// Builder constructs a DAG with validation.
//
// # Description
//
// Builder provides a fluent API for constructing DAGs. It validates that
// names are unique, every dependency exists and no cycles are present.
//
// # Thread Safety
//
// Builder is NOT safe for concurrent use. Build the DAG in a single goroutine.
//
// # Example
//
//	g, err := dag.NewBuilder("demo").
//	    AddNode(dag.NewParamNode("data", nil)).
//	    AddNode(dag.NewParamNode("pass", true)).
//	    AddNode(dag.NewGateNode("hold", gate.PolicyGatekeeper, "data", "pass")).
//	    Build()
type Builder struct {
	name   string
	nodes  map[string]Node
	names  []string
	errors []error
}

// NewBuilder creates a new DAG builder.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:  name,
		nodes: make(map[string]Node),
	}
}

// AddNode adds a node to the graph.
//
// Errors are recorded and returned by Build.
func (b *Builder) AddNode(node Node) *Builder {
	if node == nil {
		b.errors = append(b.errors, ErrNilNode)
		return b
	}

	name := node.Name()
	if name == "" {
		b.errors = append(b.errors, fmt.Errorf("%w: empty node name", ErrInvalidInput))
		return b
	}
	if _, exists := b.nodes[name]; exists {
		b.errors = append(b.errors, NewNodeError(name, ErrDuplicateNode))
		return b
	}

	b.nodes[name] = node
	b.names = append(b.names, name)
	return b
}

// Build validates and constructs the DAG.
//
// # Outputs
//
//   - *DAG: The constructed graph.
//   - error: The first recorded AddNode error, ErrInvalidInput for an empty
//     graph, a NodeError wrapping ErrNodeNotFound for an unknown dependency,
//     or a *CycleError.
func (b *Builder) Build() (*DAG, error) {
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}
	if len(b.nodes) == 0 {
		return nil, fmt.Errorf("%w: graph has no nodes", ErrInvalidInput)
	}

	recipients := make(map[string][]string, len(b.nodes))
	for _, name := range b.names {
		for _, dep := range b.nodes[name].Dependencies() {
			if _, exists := b.nodes[dep]; !exists {
				return nil, NewNodeError(name, fmt.Errorf("%w: dependency %q", ErrNodeNotFound, dep))
			}
			recipients[dep] = append(recipients[dep], name)
		}
	}

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	return &DAG{
		name:       b.name,
		nodes:      b.nodes,
		order:      b.topologicalOrder(recipients),
		recipients: recipients,
	}, nil
}

// detectCycles uses DFS to detect cycles in the graph.
func (b *Builder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make([]string, 0)

	var dfs func(node string) error
	dfs = func(node string) error {
		visited[node] = true
		recStack[node] = true
		path = append(path, node)

		for _, dep := range b.nodes[node].Dependencies() {
			if !visited[dep] {
				if err := dfs(dep); err != nil {
					return err
				}
			} else if recStack[dep] {
				cycleStart := 0
				for i, n := range path {
					if n == dep {
						cycleStart = i
						break
					}
				}
				cycle := append(append([]string{}, path[cycleStart:]...), dep)
				return NewCycleError(cycle)
			}
		}

		path = path[:len(path)-1]
		recStack[node] = false
		return nil
	}

	for _, name := range b.names {
		if !visited[name] {
			if err := dfs(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// topologicalOrder runs Kahn's algorithm, breaking ties by name so the
// order is deterministic.
func (b *Builder) topologicalOrder(recipients map[string][]string) []string {
	indegree := make(map[string]int, len(b.nodes))
	for _, name := range b.names {
		indegree[name] = len(dependsOn(b.nodes[name].Dependencies()...))
	}

	var ready []string
	for _, name := range b.names {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(b.nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		var next []string
		for _, r := range dependsOn(recipients[name]...) {
			indegree[r]--
			if indegree[r] == 0 {
				next = append(next, r)
			}
		}
		ready = append(ready, next...)
		sort.Strings(ready)
	}
	return order
}
