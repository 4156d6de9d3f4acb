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
	"sync/atomic"

	"github.com/AleutianAI/datagate/services/datagate/connectivity"
	"github.com/AleutianAI/datagate/services/datagate/diag"
	"github.com/AleutianAI/datagate/services/datagate/gate"
	"github.com/AleutianAI/datagate/services/datagate/recorder"
	"github.com/AleutianAI/datagate/services/datagate/tree"
)

// Settable is implemented by nodes whose value can be set from outside.
type Settable interface {
	// SetValue stores v and reports whether it differs from the old value.
	SetValue(v any) bool
}

// =============================================================================
// ParamNode
// =============================================================================

// ParamNode is a source node holding an externally set value.
type ParamNode struct {
	BaseNode
	value any
}

// NewParamNode creates a parameter with an initial value.
func NewParamNode(name string, value any) *ParamNode {
	return &ParamNode{BaseNode: BaseNode{NodeName: name}, value: value}
}

// Value returns the stored value.
func (n *ParamNode) Value() any {
	return n.value
}

// SetValue stores v.
//
// Structures compare by content. Other values compare with ==; values that
// cannot be compared always count as changed.
func (n *ParamNode) SetValue(v any) bool {
	changed := !sameValue(n.value, v)
	n.value = v
	return changed
}

// Execute emits the stored value.
func (n *ParamNode) Execute(context.Context, *Inputs) (Output, error) {
	return Output{Value: n.value}, nil
}

func sameValue(a, b any) (same bool) {
	sa, aok := a.(*tree.Structure)
	sb, bok := b.(*tree.Structure)
	if aok && bok {
		return sa.Equal(sb)
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// =============================================================================
// GateNode
// =============================================================================

// GateNode hosts a latching gate.
//
// It is a Barrier: changes upstream re-evaluate the gate but reach its
// consumers only when the gate asks for invalidation.
type GateNode struct {
	BaseNode
	gate *gate.Gate
	data string
	flag string
}

// NewGateNode creates a gate reading structure input from data and the
// compute flag from flag. An unset flag port reads as false.
func NewGateNode(name string, policy gate.Policy, data, flag string) *GateNode {
	return &GateNode{
		BaseNode: BaseNode{NodeName: name, NodeDependencies: dependsOn(data, flag)},
		gate:     gate.New(policy),
		data:     data,
		flag:     flag,
	}
}

// HoldsDownstream implements Barrier.
func (n *GateNode) HoldsDownstream() bool {
	return true
}

// Gate returns the hosted gate.
func (n *GateNode) Gate() *gate.Gate {
	return n.gate
}

// Execute runs one gate step.
func (n *GateNode) Execute(_ context.Context, in *Inputs) (Output, error) {
	out := n.gate.Evaluate(in.Structure(n.data), in.Bool(n.flag, false))
	return Output{Value: out.Data, Invalidate: out.Invalidate}, nil
}

// =============================================================================
// PasserNode
// =============================================================================

// PasserNode forwards its data input while the flag is true and otherwise
// aborts, leaving the previous output in place.
type PasserNode struct {
	BaseNode
	data string
	flag string
}

// NewPasserNode creates a passer. An unset flag port reads as false.
func NewPasserNode(name, data, flag string) *PasserNode {
	return &PasserNode{
		BaseNode: BaseNode{NodeName: name, NodeDependencies: dependsOn(data, flag)},
		data:     data,
		flag:     flag,
	}
}

// Execute forwards or aborts.
func (n *PasserNode) Execute(_ context.Context, in *Inputs) (Output, error) {
	s, ok := gate.Pass(in.Structure(n.data), in.Bool(n.flag, false))
	if !ok {
		return Output{Aborted: true}, nil
	}
	return Output{Value: s}, nil
}

// =============================================================================
// RecorderNode
// =============================================================================

// RecorderPorts names the upstream nodes feeding a recorder.
//
// Empty names use the defaults: record true, clear false, limit
// recorder.DefaultLimit.
type RecorderPorts struct {
	Data   string
	Record string
	Clear  string
	Limit  string
}

// RecorderNode hosts a bounded history recorder.
type RecorderNode struct {
	BaseNode
	ports     RecorderPorts
	checker   connectivity.Checker
	connected atomic.Bool
	relay     *relayReporter
	recorder  *recorder.Recorder
}

// NewRecorderNode creates a recorder node.
//
// # Inputs
//
//   - name: Node name.
//   - ports: Upstream wiring.
//   - checker: Connectivity precondition, probed by Prepare before every
//     solve. Nil is always connected.
func NewRecorderNode(name string, ports RecorderPorts, checker connectivity.Checker) *RecorderNode {
	relay := &relayReporter{target: diag.Discard}
	n := &RecorderNode{
		BaseNode: BaseNode{
			NodeName:         name,
			NodeDependencies: dependsOn(ports.Data, ports.Record, ports.Clear, ports.Limit),
		},
		ports:    ports,
		checker:  checker,
		relay:    relay,
		recorder: recorder.New(relay),
	}
	n.connected.Store(checker == nil)
	return n
}

// Prepare probes connectivity. It runs outside the executor lock because a
// dial can take up to the checker's timeout.
func (n *RecorderNode) Prepare(ctx context.Context) {
	n.connected.Store(connectivity.Valid(ctx, n.checker))
}

// Recorder returns the hosted recorder.
func (n *RecorderNode) Recorder() *recorder.Recorder {
	return n.recorder
}

// SetRecordEmpty changes the record-empty setting and reports a change.
func (n *RecorderNode) SetRecordEmpty(v bool) bool {
	return n.recorder.SetRecordEmpty(v)
}

// Execute runs one recorder evaluation.
func (n *RecorderNode) Execute(_ context.Context, in *Inputs) (Output, error) {
	n.relay.target = in.Reporter()
	defer func() { n.relay.target = diag.Discard }()

	res := n.recorder.Record(recorder.Request{
		Record:    in.Bool(n.ports.Record, true),
		Clear:     in.Bool(n.ports.Clear, false),
		Limit:     in.Int(n.ports.Limit, recorder.DefaultLimit),
		Input:     in.Structure(n.ports.Data),
		Connected: n.connected.Load(),
	})
	if res.Aborted {
		return Output{Aborted: true}, nil
	}
	return Output{Value: res.Output}, nil
}

// relayReporter forwards to whichever reporter the current evaluation uses.
type relayReporter struct {
	target diag.Reporter
}

func (r *relayReporter) Report(m diag.Message) {
	r.target.Report(m)
}
