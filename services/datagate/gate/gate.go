// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gate implements the latching gate protocol.
//
// A gate holds one cached structure. Each evaluation decides whether to
// forward live input, emit the cached snapshot, or stay silent, and whether
// downstream consumers must be re-evaluated.
//
// The decision is a pure function over an explicit Latch value (Evaluate).
// Gate wraps one Latch for hosts that prefer a stateful object.
package gate

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/datagate/services/datagate/tree"
)

// Policy selects when an active evaluation signals downstream invalidation.
type Policy int

const (
	// PolicyValueHolder signals on every active evaluation, including the
	// one where the flag turns false.
	PolicyValueHolder Policy = iota

	// PolicyGatekeeper signals only on the first evaluation or while the
	// flag is true. Turning the flag off freezes the output silently.
	PolicyGatekeeper
)

// String returns "value_holder" or "gatekeeper".
func (p Policy) String() string {
	switch p {
	case PolicyValueHolder:
		return "value_holder"
	case PolicyGatekeeper:
		return "gatekeeper"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses the String form. Matching is case-insensitive and
// accepts "-" in place of "_".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "value_holder", "holder", "":
		return PolicyValueHolder, nil
	case "gatekeeper", "keeper":
		return PolicyGatekeeper, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Latch is the persistent state of one gate instance.
//
// The zero value is a fresh gate: no cached data, previous flag false.
type Latch struct {
	// Cached is the retained snapshot, nil until the first evaluation.
	Cached *tree.Structure

	// PreviousFlag is the compute flag seen on the last evaluation.
	PreviousFlag bool
}

// HasData reports whether a snapshot is cached.
func (l Latch) HasData() bool {
	return l.Cached != nil
}

// Output is the result of one gate evaluation.
type Output struct {
	// Data is the structure to emit. Never nil.
	Data *tree.Structure

	// Invalidate asks the host to force re-evaluation of every consumer.
	Invalidate bool

	// Refreshed reports that the input was read on this evaluation.
	Refreshed bool
}

// Evaluate runs one step of the latching protocol.
//
// # Description
//
// The step is "active" when the cache is empty, when the flag is true, or
// when the flag just turned from true to false. An active step reads the
// input; on first use or on the true-to-false edge it snapshots the input
// into the cache. While the flag stays true the cache is not refreshed and
// live input is forwarded. While the flag stays false the cached snapshot is
// emitted without reading input and without invalidating consumers.
//
// # Inputs
//
//   - latch: Current state. Not modified; the new state is returned.
//   - policy: Invalidation policy.
//   - input: Live input. Nil is treated as an empty structure.
//   - compute: The pass/compute flag.
//
// # Outputs
//
//   - Latch: The state to use for the next evaluation.
//   - Output: Emitted data and the invalidation signal.
func Evaluate(latch Latch, policy Policy, input *tree.Structure, compute bool) (Latch, Output) {
	dataIsAbsent := latch.Cached == nil
	passIsTurningFalse := !compute && latch.PreviousFlag

	var out Output
	if passIsTurningFalse || dataIsAbsent || compute {
		live := tree.OrEmpty(input)
		if passIsTurningFalse || dataIsAbsent {
			latch.Cached = live.ShallowDuplicate()
		}

		if compute {
			out.Data = live
		} else {
			out.Data = latch.Cached
		}
		out.Refreshed = true

		switch policy {
		case PolicyGatekeeper:
			out.Invalidate = dataIsAbsent || compute
		default:
			out.Invalidate = true
		}
	} else {
		out.Data = latch.Cached
	}

	latch.PreviousFlag = compute
	return latch, out
}

// Gate is a stateful latching gate.
//
// # Thread Safety
//
// NOT safe for concurrent use. Hosts evaluate one instance at a time.
type Gate struct {
	policy Policy
	latch  Latch
}

// New creates a gate with an empty latch.
func New(policy Policy) *Gate {
	return &Gate{policy: policy}
}

// Policy returns the invalidation policy.
func (g *Gate) Policy() Policy {
	return g.policy
}

// Latch returns a copy of the current state.
func (g *Gate) Latch() Latch {
	return g.latch
}

// Evaluate runs one protocol step and stores the new latch.
func (g *Gate) Evaluate(input *tree.Structure, compute bool) Output {
	var out Output
	g.latch, out = Evaluate(g.latch, g.policy, input, compute)
	return out
}

// Pass forwards input only while the flag is true.
//
// # Description
//
// When pass is false nothing is emitted and the host keeps whatever the
// component emitted last. There is no cached state of its own.
//
// # Outputs
//
//   - *tree.Structure: The input (never nil) when emitted, nil otherwise.
//   - bool: True if the input was emitted.
func Pass(input *tree.Structure, pass bool) (*tree.Structure, bool) {
	if !pass {
		return nil, false
	}
	return tree.OrEmpty(input), true
}
