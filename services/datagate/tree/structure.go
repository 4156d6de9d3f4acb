// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tree provides the hierarchical data container shared by all
// datagate components.
//
// A Structure maps Paths to ordered branches of opaque items. Components never
// inspect items; they only move, cache and re-index branches. Items are
// treated as immutable value snapshots, which makes deep and shallow
// duplication observably equivalent unless an item opts into copying by
// implementing Duplicator.
package tree

import "errors"

// ErrInvalidPath is returned when a path text cannot be parsed.
var ErrInvalidPath = errors.New("invalid path")

// Item is a single opaque value stored in a branch.
type Item = any

// Duplicator is implemented by items that carry mutable state and need a
// real copy when a Structure is deep-duplicated.
type Duplicator interface {
	Duplicate() any
}

// Structure is an insertion-ordered mapping from Path to branch.
//
// # Description
//
// Each path maps to exactly one branch. Paths are enumerated in the order
// they were first added. The zero value is an empty structure ready to use.
//
// # Thread Safety
//
// NOT safe for concurrent use; caller must synchronize.
type Structure struct {
	paths    []Path
	branches map[string][]Item
}

// New creates an empty structure.
func New() *Structure {
	return &Structure{}
}

// FromItems creates a structure with a single branch at path {0}.
func FromItems(items ...Item) *Structure {
	s := New()
	s.AppendRange(NewPath(0), items)
	return s
}

// OrEmpty returns s, or a new empty structure when s is nil.
func OrEmpty(s *Structure) *Structure {
	if s == nil {
		return New()
	}
	return s
}

// IsEmpty reports whether the structure has no paths.
func (s *Structure) IsEmpty() bool {
	return s == nil || len(s.paths) == 0
}

// PathCount returns the number of paths.
func (s *Structure) PathCount() int {
	if s == nil {
		return 0
	}
	return len(s.paths)
}

// DataCount returns the total number of items across all branches.
func (s *Structure) DataCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, b := range s.branches {
		n += len(b)
	}
	return n
}

// Paths returns a copy of all paths in insertion order.
func (s *Structure) Paths() []Path {
	if s == nil {
		return nil
	}
	out := make([]Path, len(s.paths))
	copy(out, s.paths)
	return out
}

// Has reports whether the path exists.
func (s *Structure) Has(p Path) bool {
	if s == nil || s.branches == nil {
		return false
	}
	_, ok := s.branches[p.String()]
	return ok
}

// Branch returns a copy of the items at the path.
//
// # Outputs
//
//   - []Item: The items, or nil if the path is missing.
//   - bool: False if the path does not exist.
func (s *Structure) Branch(p Path) ([]Item, bool) {
	if s == nil || s.branches == nil {
		return nil, false
	}
	b, ok := s.branches[p.String()]
	if !ok {
		return nil, false
	}
	out := make([]Item, len(b))
	copy(out, b)
	return out, true
}

// EnsurePath creates an empty branch at p if it does not exist yet.
func (s *Structure) EnsurePath(p Path) {
	s.ensure(p)
}

// Append adds a single item to the branch at p, creating it if needed.
func (s *Structure) Append(p Path, item Item) {
	key := s.ensure(p)
	s.branches[key] = append(s.branches[key], item)
}

// AppendRange adds items to the branch at p, creating it if needed.
//
// The branch is created even when items is empty.
func (s *Structure) AppendRange(p Path, items []Item) {
	key := s.ensure(p)
	s.branches[key] = append(s.branches[key], items...)
}

// Range calls fn for every (path, branch) pair in insertion order.
//
// The branch slice passed to fn must not be modified. Return false to stop.
func (s *Structure) Range(fn func(p Path, branch []Item) bool) {
	if s == nil {
		return
	}
	for _, p := range s.paths {
		if !fn(p, s.branches[p.String()]) {
			return
		}
	}
}

// AllData returns every item in path order.
func (s *Structure) AllData() []Item {
	out := make([]Item, 0, s.DataCount())
	s.Range(func(_ Path, branch []Item) bool {
		out = append(out, branch...)
		return true
	})
	return out
}

// ShallowDuplicate returns a structure with new path and branch containers
// that reference the same items.
func (s *Structure) ShallowDuplicate() *Structure {
	return s.duplicate(func(it Item) Item { return it })
}

// Duplicate returns an independent deep copy.
//
// # Description
//
// Containers are always copied. Items implementing Duplicator are copied
// through Duplicate(); all other items are copied by value.
func (s *Structure) Duplicate() *Structure {
	return s.duplicate(func(it Item) Item {
		if d, ok := it.(Duplicator); ok {
			return d.Duplicate()
		}
		return it
	})
}

// Equal reports whether both structures hold the same paths in the same
// order with equal items. Items are compared with ==, so non-comparable
// items never compare equal.
func (s *Structure) Equal(other *Structure) bool {
	if s.PathCount() != other.PathCount() {
		return false
	}
	for i, p := range s.Paths() {
		if !p.Equal(other.paths[i]) {
			return false
		}
		a := s.branches[p.String()]
		b := other.branches[p.String()]
		if len(a) != len(b) {
			return false
		}
		for j := range a {
			if !itemEqual(a[j], b[j]) {
				return false
			}
		}
	}
	return true
}

// String returns a compact debug representation.
func (s *Structure) String() string {
	data, err := s.MarshalJSON()
	if err != nil {
		return "<invalid structure>"
	}
	return string(data)
}

func (s *Structure) ensure(p Path) string {
	if s.branches == nil {
		s.branches = make(map[string][]Item)
	}
	key := p.String()
	if _, ok := s.branches[key]; !ok {
		s.paths = append(s.paths, NewPath(p...))
		s.branches[key] = []Item{}
	}
	return key
}

func (s *Structure) duplicate(copyItem func(Item) Item) *Structure {
	out := New()
	s.Range(func(p Path, branch []Item) bool {
		items := make([]Item, len(branch))
		for i, it := range branch {
			items[i] = copyItem(it)
		}
		out.AppendRange(p, items)
		return true
	})
	return out
}

func itemEqual(a, b Item) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
