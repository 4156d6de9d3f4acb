// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package recorder implements the bounded history recorder.
//
// A Recorder keeps a FIFO queue of structure snapshots and, on every call,
// flattens the queue into one structure whose leading path index is the
// snapshot's position in the queue.
//
// # Resets
//
// Two inputs reset history instead of recording:
//
//   - Any change of the clear flag (either direction) empties the queue and
//     skips recording for that call, so a momentary button press clears once.
//   - A new limit while recording empties the queue before the limit is
//     applied, because old slot indices would no longer line up.
//
// A limit of zero keeps every snapshot.
package recorder

import (
	"errors"

	"github.com/AleutianAI/datagate/services/datagate/diag"
	"github.com/AleutianAI/datagate/services/datagate/history"
	"github.com/AleutianAI/datagate/services/datagate/tree"
)

// DefaultLimit is the initial capacity, matching the default limit input.
const DefaultLimit = 10

// SettingRecordEmpty is the persistence key for the record-empty setting.
const SettingRecordEmpty = "recordEmptyData"

var (
	// ErrNotConnected is reported when the connectivity precondition fails.
	ErrNotConnected = errors.New("connectivity check failed, recorder output not updated")

	// ErrNegativeLimit is reported when the limit input is below zero.
	ErrNegativeLimit = errors.New("limit must be zero (unbounded) or positive")
)

// Request is the input of one recorder evaluation.
type Request struct {
	// Record enables recording of Input on this call.
	Record bool

	// Clear is edge-triggered: any change from the previous call clears.
	Clear bool

	// Limit is the maximum number of snapshots, 0 for unbounded.
	Limit int

	// Input is the structure to record. Nil is treated as empty.
	Input *tree.Structure

	// Connected is the pre-validated connectivity precondition.
	Connected bool
}

// Result is the output of one recorder evaluation.
type Result struct {
	// Output is the combined history. Nil when Aborted.
	Output *tree.Structure

	// Aborted reports a failed precondition. State was not changed and the
	// host should keep the previous output.
	Aborted bool

	// Cleared reports that history was discarded on this call.
	Cleared bool

	// Recorded reports that a snapshot was enqueued.
	Recorded bool

	// Evicted reports that the oldest snapshot was dropped.
	Evicted bool
}

// State is the persistent state of one recorder instance.
type State struct {
	queue       *history.RingBuffer[*tree.Structure]
	capacity    int
	recordEmpty bool
	lastClear   bool
}

// NewState returns a fresh state with DefaultLimit capacity.
func NewState() *State {
	return &State{
		queue:    history.NewRingBuffer[*tree.Structure](DefaultLimit),
		capacity: DefaultLimit,
	}
}

// Recorder is a bounded history recorder.
//
// # Thread Safety
//
// NOT safe for concurrent use. Hosts evaluate one instance at a time.
type Recorder struct {
	state    *State
	reporter diag.Reporter
}

// New creates a recorder with fresh state.
//
// # Inputs
//
//   - reporter: Receives runtime messages. Nil discards them.
func New(reporter diag.Reporter) *Recorder {
	if reporter == nil {
		reporter = diag.Discard
	}
	return &Recorder{state: NewState(), reporter: reporter}
}

// RecordEmpty returns the record-empty setting.
func (r *Recorder) RecordEmpty() bool {
	return r.state.recordEmpty
}

// SetRecordEmpty changes the record-empty setting.
//
// # Outputs
//
//   - bool: True if the value changed and the host should re-evaluate.
func (r *Recorder) SetRecordEmpty(v bool) bool {
	changed := r.state.recordEmpty != v
	r.state.recordEmpty = v
	return changed
}

// Capacity returns the current limit, 0 for unbounded.
func (r *Recorder) Capacity() int {
	return r.state.capacity
}

// Len returns the number of recorded snapshots.
func (r *Recorder) Len() int {
	return r.state.queue.Len()
}

// Snapshots returns deep copies of the recorded snapshots, oldest first.
func (r *Recorder) Snapshots() []*tree.Structure {
	items := r.state.queue.Slice()
	out := make([]*tree.Structure, len(items))
	for i, s := range items {
		out[i] = s.Duplicate()
	}
	return out
}

// Record runs one recorder evaluation.
//
// # Description
//
// Preconditions are checked first; on failure an error message is reported,
// nothing changes and Result.Aborted is set. Otherwise the clear edge,
// limit change and recording rules are applied in that order and the
// combined history is returned.
//
// # Inputs
//
//   - req: Flags, limit, input and connectivity for this call.
//
// # Outputs
//
//   - Result: Combined output and what happened to the queue.
func (r *Recorder) Record(req Request) Result {
	if !req.Connected {
		diag.Errorf(r.reporter, "%v", ErrNotConnected)
		return Result{Aborted: true}
	}
	// Rejected rather than recorded and evicted at once, which would
	// silently empty the history.
	if req.Limit < 0 {
		diag.Errorf(r.reporter, "%v, got %d", ErrNegativeLimit, req.Limit)
		return Result{Aborted: true}
	}

	var res Result
	st := r.state

	if req.Clear != st.lastClear {
		st.lastClear = req.Clear
		st.queue.Clear()
		res.Cleared = true
	} else if req.Record {
		if req.Limit != st.capacity {
			st.capacity = req.Limit
			res.Cleared = st.queue.Len() > 0
			st.queue.Reset(req.Limit)
		}

		input := tree.OrEmpty(req.Input)
		if st.recordEmpty || !input.IsEmpty() {
			_, res.Evicted = st.queue.Push(input.Duplicate())
			res.Recorded = true
		}
	}

	res.Output = r.combine()
	return res
}

// combine flattens the queue, tagging each snapshot's paths with its
// position. Empty snapshots still occupy their slot as an empty branch.
func (r *Recorder) combine() *tree.Structure {
	out := tree.New()
	r.state.queue.ForEach(func(count int, snapshot *tree.Structure) bool {
		if snapshot.IsEmpty() {
			out.EnsurePath(tree.NewPath(count))
			return true
		}
		snapshot.Range(func(p tree.Path, branch []tree.Item) bool {
			out.AppendRange(p.Prepend(count), branch)
			return true
		})
		return true
	})
	return out
}
