// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffer_BoundedEvictsOldest(t *testing.T) {
	r := NewRingBuffer[int](3)

	for i := 1; i <= 3; i++ {
		_, evicted := r.Push(i)
		assert.False(t, evicted)
	}
	old, evicted := r.Push(4)
	require.True(t, evicted)
	assert.Equal(t, 1, old)
	assert.Equal(t, []int{2, 3, 4}, r.Slice())

	old, _ = r.Push(5)
	assert.Equal(t, 2, old)
	assert.Equal(t, []int{3, 4, 5}, r.Slice())
	assert.Equal(t, 3, r.Len())
}

func TestRingBuffer_UnboundedGrows(t *testing.T) {
	r := NewRingBuffer[int](0)
	for i := 0; i < 100; i++ {
		_, evicted := r.Push(i)
		require.False(t, evicted)
	}
	assert.Equal(t, 100, r.Len())

	s := r.Slice()
	assert.Equal(t, 0, s[0])
	assert.Equal(t, 99, s[99])
}

func TestRingBuffer_GrowsUpToLimitThenWraps(t *testing.T) {
	r := NewRingBuffer[int](6)
	for i := 0; i < 10; i++ {
		r.Push(i)
	}
	assert.Equal(t, []int{4, 5, 6, 7, 8, 9}, r.Slice())
	assert.Len(t, r.data, 6, "backing array never exceeds the limit")
}

func TestRingBuffer_ForEachOrderAndStop(t *testing.T) {
	r := NewRingBuffer[int](2)
	r.Push(1)
	r.Push(2)
	r.Push(3)

	var seen []int
	var idx []int
	r.ForEach(func(i, item int) bool {
		idx = append(idx, i)
		seen = append(seen, item)
		return true
	})
	assert.Equal(t, []int{2, 3}, seen)
	assert.Equal(t, []int{0, 1}, idx)

	calls := 0
	r.ForEach(func(int, int) bool {
		calls++
		return false
	})
	assert.Equal(t, 1, calls)
}

func TestRingBuffer_ClearAndReset(t *testing.T) {
	r := NewRingBuffer[int](2)
	r.Push(1)
	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Slice())

	r.Push(1)
	r.Push(2)
	_, evicted := r.Push(3)
	assert.True(t, evicted, "Clear keeps the limit")

	r.Reset(5)
	assert.Equal(t, 0, r.Len())
	for i := 0; i < 5; i++ {
		_, evicted := r.Push(i)
		assert.False(t, evicted)
	}
	_, evicted = r.Push(5)
	assert.True(t, evicted)

	r.Reset(-3)
	for i := 0; i < 20; i++ {
		_, evicted := r.Push(i)
		require.False(t, evicted, "negative limit is unbounded")
	}
}

// TestRingBuffer_HoldsNewestMinNC checks that after N pushes with limit C the
// buffer holds the newest min(N, C) items in order.
func TestRingBuffer_HoldsNewestMinNC(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("bounded buffer keeps the newest items", prop.ForAll(
		func(n, c int) bool {
			r := NewRingBuffer[int](c)
			for i := 0; i < n; i++ {
				r.Push(i)
			}

			want := n
			if c > 0 && c < n {
				want = c
			}
			got := r.Slice()
			if len(got) != want {
				return false
			}
			for i, v := range got {
				if v != n-want+i {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 64),
		gen.IntRange(0, 16),
	))

	properties.TestingRun(t)
}
