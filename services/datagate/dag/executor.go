// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/datagate/services/datagate/diag"
)

var (
	tracer = otel.Tracer("datagate.dag")
	meter  = otel.Meter("datagate.dag")
)

// Result summarizes one Solve call.
type Result struct {
	// SessionID identifies the solve in logs and traces.
	SessionID string

	// Evaluated lists the nodes that ran, in order.
	Evaluated []string

	// Aborted lists nodes that kept their previous output.
	Aborted []string

	// Invalidated lists nodes that expired their consumers.
	Invalidated []string

	// Errors maps node names to the error their Execute returned.
	Errors map[string]error

	// Duration is the wall time of the solve.
	Duration time.Duration
}

// Success returns true if no node failed.
func (r *Result) Success() bool {
	return len(r.Errors) == 0
}

// Executor keeps node outputs and schedules re-evaluation.
//
// # Description
//
// Every node starts expired. Expire, Set and Update mark nodes expired;
// Solve evaluates expired nodes in topological order and clears their mark.
// A failing node loses its output and gets an error message, but the solve
// continues with the other nodes.
//
// # Thread Safety
//
// Safe for concurrent use. Solve, Expire, Set and Update are serialized.
type Executor struct {
	dag    *DAG
	logger *slog.Logger

	mu       sync.Mutex
	expired  map[string]bool
	outputs  map[string]any
	messages map[string][]diag.Message

	// Metrics (initialized lazily)
	metricsOnce  sync.Once
	nodeLatency  metric.Float64Histogram
	nodeRuns     metric.Int64Counter
	nodeFailures metric.Int64Counter
	nodeAborts   metric.Int64Counter
	solveLatency metric.Float64Histogram
}

// NewExecutor creates an executor with every node expired.
//
// # Inputs
//
//   - d: The graph. Must not be nil.
//   - logger: Logger for solve logs. If nil, uses slog.Default().
func NewExecutor(d *DAG, logger *slog.Logger) (*Executor, error) {
	if d == nil {
		return nil, ErrInvalidInput
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		dag:      d,
		logger:   logger,
		expired:  make(map[string]bool, d.NodeCount()),
		outputs:  make(map[string]any, d.NodeCount()),
		messages: make(map[string][]diag.Message),
	}
	for _, name := range d.order {
		e.expired[name] = true
	}
	return e, nil
}

// DAG returns the executed graph.
func (e *Executor) DAG() *DAG {
	return e.dag
}

// initMetrics lazily initializes metrics.
// Logs errors if metric creation fails but continues solving.
func (e *Executor) initMetrics() {
	e.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		e.nodeLatency, err = meter.Float64Histogram("datagate_node_duration_seconds",
			metric.WithDescription("Time spent evaluating each component"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_latency: "+err.Error())
		}

		e.nodeRuns, err = meter.Int64Counter("datagate_node_evaluations_total",
			metric.WithDescription("Number of component evaluations"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_runs: "+err.Error())
		}

		e.nodeFailures, err = meter.Int64Counter("datagate_node_failure_total",
			metric.WithDescription("Number of failed component evaluations"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_failures: "+err.Error())
		}

		e.nodeAborts, err = meter.Int64Counter("datagate_node_aborted_total",
			metric.WithDescription("Number of evaluations that kept the previous output"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_aborts: "+err.Error())
		}

		e.solveLatency, err = meter.Float64Histogram("datagate_solve_duration_seconds",
			metric.WithDescription("Total solve time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "solve_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			e.logger.Error("failed to initialize some solve metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Expire marks a node and everything downstream of it for re-evaluation.
//
// Propagation stops after nodes implementing Barrier.
func (e *Executor) Expire(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.dag.nodes[name]; !ok {
		return NewNodeError(name, ErrNodeNotFound)
	}
	e.expireLocked(name)
	return nil
}

// Set stores a value on a Settable node and expires it if the value changed.
func (e *Executor) Set(name string, value any) error {
	return e.Update(name, func(n Node) (bool, error) {
		s, ok := n.(Settable)
		if !ok {
			return false, ErrNotSettable
		}
		return s.SetValue(value), nil
	})
}

// Update runs fn on a node under the executor lock and expires the node if
// fn reports a change.
func (e *Executor) Update(name string, fn func(Node) (bool, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	node, ok := e.dag.nodes[name]
	if !ok {
		return NewNodeError(name, ErrNodeNotFound)
	}
	changed, err := fn(node)
	if err != nil {
		return NewNodeError(name, err)
	}
	if changed {
		e.expireLocked(name)
	}
	return nil
}

// Inspect runs fn while no solve or update is in progress. Use it to read
// component state, such as recorder depth, from other goroutines.
func (e *Executor) Inspect(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

func (e *Executor) expireLocked(name string) {
	if e.expired[name] {
		return
	}
	e.expired[name] = true
	if b, ok := e.dag.nodes[name].(Barrier); ok && b.HoldsDownstream() {
		return
	}
	for _, r := range e.dag.recipients[name] {
		e.expireLocked(r)
	}
}

// Expired reports whether a node is waiting for re-evaluation.
func (e *Executor) Expired(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expired[name]
}

// Output returns the last value a node emitted.
func (e *Executor) Output(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.outputs[name]
	return v, ok
}

// Messages returns the runtime messages of a node's last evaluation.
func (e *Executor) Messages(name string) []diag.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]diag.Message, len(e.messages[name]))
	copy(out, e.messages[name])
	return out
}

// Solve evaluates every expired node.
//
// # Description
//
// Nodes run in topological order. A node returning Invalidate expires its
// consumers, which then run later in the same solve. A node returning
// Aborted keeps its previous output. A node returning an error loses its
// output, records an error message and expires its consumers; the solve
// continues with the remaining nodes.
//
// # Inputs
//
//   - ctx: Checked between nodes. Must not be nil.
//
// # Outputs
//
//   - *Result: What ran. Non-nil even on error.
//   - error: ErrNilContext, or the context error if cancelled mid-solve.
//     Nodes not reached stay expired.
func (e *Executor) Solve(ctx context.Context) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	e.initMetrics()
	e.prepare(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	result := &Result{
		SessionID: uuid.NewString(),
		Errors:    make(map[string]error),
	}
	start := time.Now()

	ctx, span := tracer.Start(ctx, "dag.Executor.Solve",
		trace.WithAttributes(
			attribute.String("dag.name", e.dag.Name()),
			attribute.String("session_id", result.SessionID),
		),
	)
	defer span.End()

	for _, name := range e.dag.order {
		if !e.expired[name] {
			continue
		}
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			span.RecordError(err)
			span.SetStatus(codes.Error, "context canceled")
			return result, err
		}
		e.evaluate(ctx, name, result)
	}

	result.Duration = time.Since(start)
	if e.solveLatency != nil {
		e.solveLatency.Record(ctx, result.Duration.Seconds(),
			metric.WithAttributes(attribute.String("dag", e.dag.Name())),
		)
	}
	span.SetAttributes(
		attribute.Int("nodes_evaluated", len(result.Evaluated)),
		attribute.Int("nodes_failed", len(result.Errors)),
	)

	if result.Success() {
		span.SetStatus(codes.Ok, "")
		e.logger.Debug("solve completed",
			slog.String("session_id", result.SessionID),
			slog.Duration("duration", result.Duration),
			slog.Int("nodes_evaluated", len(result.Evaluated)),
		)
	} else {
		span.SetStatus(codes.Error, fmt.Sprintf("%d node(s) failed", len(result.Errors)))
		e.logger.Warn("solve completed with failures",
			slog.String("session_id", result.SessionID),
			slog.Int("nodes_failed", len(result.Errors)),
		)
	}
	return result, nil
}

// evaluate runs one node. Caller holds e.mu.
func (e *Executor) evaluate(ctx context.Context, name string, result *Result) {
	node := e.dag.nodes[name]

	ctx, span := tracer.Start(ctx, "dag.Executor.evaluate",
		trace.WithAttributes(
			attribute.String("node", name),
			attribute.String("session_id", result.SessionID),
		),
	)
	defer span.End()

	values := make(map[string]any, len(node.Dependencies()))
	for _, dep := range node.Dependencies() {
		values[dep] = e.outputs[dep]
	}
	var collector diag.Collector
	in := NewInputs(values, &collector)

	start := time.Now()
	out, err := node.Execute(ctx, in)
	duration := time.Since(start)

	e.expired[name] = false
	result.Evaluated = append(result.Evaluated, name)

	attrs := metric.WithAttributes(attribute.String("node", name))
	if e.nodeLatency != nil {
		e.nodeLatency.Record(ctx, duration.Seconds(), attrs)
	}
	if e.nodeRuns != nil {
		e.nodeRuns.Add(ctx, 1, attrs)
	}

	switch {
	case err != nil:
		collector.Report(diag.Message{Level: diag.LevelError, Text: err.Error()})
		delete(e.outputs, name)
		e.expireRecipients(name)
		result.Errors[name] = NewNodeError(name, err)

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if e.nodeFailures != nil {
			e.nodeFailures.Add(ctx, 1, attrs)
		}
		e.logger.Error("node failed",
			slog.String("node", name),
			slog.String("session_id", result.SessionID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)

	case out.Aborted:
		result.Aborted = append(result.Aborted, name)
		span.SetAttributes(attribute.Bool("aborted", true))
		if e.nodeAborts != nil {
			e.nodeAborts.Add(ctx, 1, attrs)
		}
		e.logger.Debug("node aborted, keeping previous output",
			slog.String("node", name),
			slog.String("session_id", result.SessionID),
		)

	default:
		e.outputs[name] = out.Value
		if out.Invalidate {
			result.Invalidated = append(result.Invalidated, name)
			e.expireRecipients(name)
		}
		span.SetAttributes(attribute.Bool("invalidate", out.Invalidate))
		span.SetStatus(codes.Ok, "")
	}

	e.messages[name] = collector.Messages()
}

// expireRecipients marks name's consumers expired without touching name.
// prepare runs Preparer nodes outside the lock. The node set is fixed at
// build time, so reading it unlocked is safe.
func (e *Executor) prepare(ctx context.Context) {
	for _, name := range e.dag.order {
		if p, ok := e.dag.nodes[name].(Preparer); ok {
			p.Prepare(ctx)
		}
	}
}

func (e *Executor) expireRecipients(name string) {
	for _, r := range e.dag.recipients[name] {
		e.expireLocked(r)
	}
}
