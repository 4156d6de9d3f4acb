// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history provides the FIFO snapshot queue used by the recorder.
package history

// minGrowth is the smallest backing array allocated on first push.
const minGrowth = 4

// RingBuffer is a FIFO circular buffer with an optional size limit.
//
// # Description
//
// With a positive limit, pushing onto a full buffer evicts the oldest item,
// so the buffer never holds more than limit items. A limit of zero means
// unbounded: the backing array grows as needed and nothing is evicted.
//
// Storage is allocated lazily and grows geometrically up to the limit, so a
// large limit costs nothing until items arrive.
//
// # Thread Safety
//
// NOT safe for concurrent use; caller must synchronize.
type RingBuffer[T any] struct {
	data  []T
	tail  int // Oldest element position
	count int // Current number of elements
	limit int // Maximum elements, 0 = unbounded
}

// NewRingBuffer creates a ring buffer.
//
// # Inputs
//
//   - limit: Maximum number of elements. Zero or negative means unbounded.
//
// # Outputs
//
//   - *RingBuffer[T]: Ready-to-use, empty buffer.
func NewRingBuffer[T any](limit int) *RingBuffer[T] {
	if limit < 0 {
		limit = 0
	}
	return &RingBuffer[T]{limit: limit}
}

// Push appends an item as the newest element.
//
// # Description
//
// If the buffer is bounded and full, the oldest item is evicted and
// returned. Exactly one item is evicted per push at most.
//
// # Inputs
//
//   - item: The item to add.
//
// # Outputs
//
//   - T: The evicted item, zero value if none.
//   - bool: True if an item was evicted.
func (r *RingBuffer[T]) Push(item T) (T, bool) {
	var zero T

	if r.limit > 0 && r.count == r.limit {
		evicted := r.data[r.tail]
		r.data[r.tail] = item
		r.tail = (r.tail + 1) % len(r.data)
		return evicted, true
	}

	if r.count == len(r.data) {
		r.grow()
	}
	r.data[(r.tail+r.count)%len(r.data)] = item
	r.count++
	return zero, false
}

// Slice returns all items from oldest to newest.
//
// The returned slice is a copy; modifications don't affect the buffer.
func (r *RingBuffer[T]) Slice() []T {
	if r.count == 0 {
		return nil
	}

	result := make([]T, r.count)
	end := r.tail + r.count
	if end <= len(r.data) {
		copy(result, r.data[r.tail:end])
	} else {
		// Buffer has wrapped
		n := copy(result, r.data[r.tail:])
		copy(result[n:], r.data[:end-len(r.data)])
	}
	return result
}

// ForEach calls fn for each item from oldest to newest, with its position.
//
// # Inputs
//
//   - fn: Function to call for each item. Return false to stop iteration.
func (r *RingBuffer[T]) ForEach(fn func(i int, item T) bool) {
	for i := 0; i < r.count; i++ {
		if !fn(i, r.data[(r.tail+i)%len(r.data)]) {
			return
		}
	}
}

// Len returns the current number of elements.
func (r *RingBuffer[T]) Len() int {
	return r.count
}

// Clear removes all elements and releases the backing array.
func (r *RingBuffer[T]) Clear() {
	r.data = nil
	r.tail = 0
	r.count = 0
}

// Reset clears the buffer and applies a new limit.
//
// Zero or negative means unbounded.
func (r *RingBuffer[T]) Reset(limit int) {
	if limit < 0 {
		limit = 0
	}
	r.Clear()
	r.limit = limit
}

// grow reallocates the backing array in FIFO order.
func (r *RingBuffer[T]) grow() {
	size := len(r.data) * 2
	if size < minGrowth {
		size = minGrowth
	}
	if r.limit > 0 && size > r.limit {
		size = r.limit
	}

	data := make([]T, size)
	copy(data, r.Slice())
	r.data = data
	r.tail = 0
}
