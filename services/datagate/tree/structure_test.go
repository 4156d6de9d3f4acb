// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Path Tests
// =============================================================================

func TestPath_Prepend(t *testing.T) {
	p := NewPath(1, 2)
	q := p.Prepend(7)

	assert.Equal(t, Path{7, 1, 2}, q)
	assert.Equal(t, Path{1, 2}, p, "receiver must not change")
	assert.False(t, p.Equal(q))
}

func TestPath_Compare(t *testing.T) {
	tests := []struct {
		a, b Path
		want int
	}{
		{NewPath(), NewPath(), 0},
		{NewPath(0), NewPath(0), 0},
		{NewPath(0), NewPath(1), -1},
		{NewPath(2), NewPath(1), 1},
		{NewPath(0), NewPath(0, 0), -1},
		{NewPath(0, 5), NewPath(1), -1},
		{NewPath(1, 0), NewPath(0, 9, 9), 1},
	}

	for _, tt := range tests {
		t.Run(tt.a.String()+"_"+tt.b.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
			assert.Equal(t, -tt.want, tt.b.Compare(tt.a))
		})
	}
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		in      string
		want    Path
		wantErr bool
	}{
		{"{0;1;2}", Path{0, 1, 2}, false},
		{"0;1", Path{0, 1}, false},
		{" { 3 ; 4 } ", Path{3, 4}, false},
		{"{}", Path{}, false},
		{"{a}", nil, true},
		{"{-1}", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePath(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPath_String(t *testing.T) {
	assert.Equal(t, "{}", NewPath().String())
	assert.Equal(t, "{0;12;3}", NewPath(0, 12, 3).String())
}

// =============================================================================
// Structure Tests
// =============================================================================

func TestStructure_ZeroValue(t *testing.T) {
	var s Structure
	assert.True(t, s.IsEmpty())
	assert.Equal(t, 0, s.DataCount())

	s.Append(NewPath(0), "a")
	assert.False(t, s.IsEmpty())
	assert.Equal(t, 1, s.PathCount())
}

func TestStructure_NilIsEmpty(t *testing.T) {
	var s *Structure
	assert.True(t, s.IsEmpty())
	assert.Equal(t, 0, s.PathCount())
	assert.Nil(t, s.Paths())
	assert.True(t, OrEmpty(s).IsEmpty())
}

func TestStructure_InsertionOrder(t *testing.T) {
	s := New()
	s.Append(NewPath(2), "c")
	s.Append(NewPath(0), "a")
	s.Append(NewPath(2), "d")
	s.EnsurePath(NewPath(1))

	assert.Equal(t, []Path{{2}, {0}, {1}}, s.Paths())
	assert.Equal(t, []Item{"c", "d", "a"}, s.AllData())

	b, ok := s.Branch(NewPath(1))
	require.True(t, ok)
	assert.Empty(t, b)
}

func TestStructure_EnsurePathKeepsExistingBranch(t *testing.T) {
	s := FromItems(1, 2)
	s.EnsurePath(NewPath(0))

	b, _ := s.Branch(NewPath(0))
	assert.Equal(t, []Item{1, 2}, b)
	assert.Equal(t, 1, s.PathCount())
}

func TestStructure_EmptyBranchIsNotEmptyStructure(t *testing.T) {
	s := New()
	s.EnsurePath(NewPath(0))
	assert.False(t, s.IsEmpty())
	assert.Equal(t, 0, s.DataCount())
	assert.True(t, s.Has(MustParsePath("{0}")))
}

func TestStructure_Has(t *testing.T) {
	s := New()
	s.Append(MustParsePath("{1;0}"), "x")

	assert.True(t, s.Has(NewPath(1, 0)))
	assert.False(t, s.Has(NewPath(1)), "parent paths are not implied")
	assert.False(t, s.Has(NewPath(0, 1)))

	var nilStructure *Structure
	assert.False(t, nilStructure.Has(NewPath(0)))
}

func TestMustParsePath(t *testing.T) {
	assert.Equal(t, NewPath(0, 2), MustParsePath(" {0; 2} "))
	assert.Panics(t, func() { MustParsePath("{a}") })
	assert.Panics(t, func() { MustParsePath("{-1}") })
}

type counter struct{ n int }

func (c *counter) Duplicate() any { return &counter{n: c.n} }

func TestStructure_DuplicateIsIndependent(t *testing.T) {
	c := &counter{n: 1}
	s := New()
	s.AppendRange(NewPath(0, 1), []Item{c, "x"})

	deep := s.Duplicate()
	shallow := s.ShallowDuplicate()

	s.Append(NewPath(0, 1), "later")
	s.Append(NewPath(9), "new")

	assert.Equal(t, 1, deep.PathCount())
	assert.Equal(t, 1, shallow.PathCount())
	assert.Equal(t, 2, deep.DataCount())

	deepItems, _ := deep.Branch(NewPath(0, 1))
	shallowItems, _ := shallow.Branch(NewPath(0, 1))
	assert.NotSame(t, c, deepItems[0], "deep copy must duplicate Duplicator items")
	assert.Same(t, c, shallowItems[0], "shallow copy must reference the same items")
}

func TestStructure_Equal(t *testing.T) {
	a := FromItems(1, "two")
	b := FromItems(1, "two")
	c := FromItems(1)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, New().Equal(nil))

	withSlice := FromItems([]int{1})
	assert.False(t, withSlice.Equal(FromItems([]int{1})), "non-comparable items never compare equal")
}

// =============================================================================
// Codec Tests
// =============================================================================

func TestStructure_MarshalJSONKeepsOrder(t *testing.T) {
	s := New()
	s.Append(NewPath(1), "b")
	s.EnsurePath(NewPath(0, 3))
	s.Append(NewPath(0), 1)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"{1}":["b"],"{0;3}":[],"{0}":[1]}`, string(data))
	assert.Equal(t, `{"{1}":["b"],"{0;3}":[],"{0}":[1]}`, string(data))
}

func TestStructure_UnmarshalJSON(t *testing.T) {
	var s Structure
	require.NoError(t, json.Unmarshal([]byte(`{"{2}":["x"],"{0;1}":[1,2]}`), &s))

	assert.Equal(t, []Path{{2}, {0, 1}}, s.Paths())
	b, _ := s.Branch(NewPath(0, 1))
	assert.Equal(t, []Item{float64(1), float64(2)}, b)

	var arr Structure
	require.NoError(t, json.Unmarshal([]byte(`["a","b"]`), &arr))
	b, _ = arr.Branch(NewPath(0))
	assert.Equal(t, []Item{"a", "b"}, b)

	var bad Structure
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"{x}":[]}`), &bad), ErrInvalidPath)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"{0}":5}`), &bad), ErrInvalidEncoding)
}

func TestStructure_UnmarshalYAML(t *testing.T) {
	doc := `
"{1}": [a, b]
"{0}": [3]
"{2}": []
`
	var s Structure
	require.NoError(t, yaml.Unmarshal([]byte(doc), &s))
	assert.Equal(t, []Path{{1}, {0}, {2}}, s.Paths())
	b, _ := s.Branch(NewPath(0))
	assert.Equal(t, []Item{3}, b)

	var seq Structure
	require.NoError(t, yaml.Unmarshal([]byte(`[1, 2]`), &seq))
	assert.Equal(t, 2, seq.DataCount())

	var scalar Structure
	require.NoError(t, yaml.Unmarshal([]byte(`hello`), &scalar))
	assert.Equal(t, []Item{"hello"}, scalar.AllData())

	var bad Structure
	assert.Error(t, yaml.Unmarshal([]byte(`"{0}": notalist`), &bad))
}
