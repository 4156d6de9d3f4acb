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
	"fmt"
	"strconv"
	"strings"
)

// Path identifies a branch within a Structure.
//
// # Description
//
// A Path is an ordered sequence of non-negative integers. Paths are values:
// every operation that changes a path returns a new one and never touches
// the receiver's backing array.
//
// The text form is "{0;1;2}". The empty path prints as "{}".
type Path []int

// NewPath creates a path from the given indices.
func NewPath(indices ...int) Path {
	p := make(Path, len(indices))
	copy(p, indices)
	return p
}

// Len returns the number of indices in the path.
func (p Path) Len() int {
	return len(p)
}

// Prepend returns a new path with idx as the first element.
//
// # Inputs
//
//   - idx: The index to place in front of the existing indices.
//
// # Outputs
//
//   - Path: A new path of length Len()+1. The receiver is unchanged.
func (p Path) Prepend(idx int) Path {
	out := make(Path, 0, len(p)+1)
	out = append(out, idx)
	return append(out, p...)
}

// Append returns a new path with idx as the last element.
func (p Path) Append(idx int) Path {
	out := make(Path, 0, len(p)+1)
	out = append(out, p...)
	return append(out, idx)
}

// Compare orders paths lexicographically.
//
// # Description
//
// Elements are compared left to right. When one path is a prefix of the
// other, the shorter path sorts first.
//
// # Outputs
//
//   - int: -1 if p < other, 0 if equal, +1 if p > other.
func (p Path) Compare(other Path) int {
	n := len(p)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		switch {
		case p[i] < other[i]:
			return -1
		case p[i] > other[i]:
			return 1
		}
	}
	switch {
	case len(p) < len(other):
		return -1
	case len(p) > len(other):
		return 1
	}
	return 0
}

// Equal reports whether both paths hold the same indices.
func (p Path) Equal(other Path) bool {
	return p.Compare(other) == 0
}

// String returns the "{a;b;c}" text form.
func (p Path) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, idx := range p {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(strconv.Itoa(idx))
	}
	sb.WriteByte('}')
	return sb.String()
}

// ParsePath parses the "{a;b;c}" text form.
//
// # Description
//
// Braces are optional, so "0;1" and "{0;1}" are equivalent. Whitespace
// around indices is ignored. Negative indices are rejected.
//
// # Outputs
//
//   - Path: The parsed path.
//   - error: ErrInvalidPath wrapped with the offending text.
func ParsePath(s string) (Path, error) {
	text := strings.TrimSpace(s)
	text = strings.TrimPrefix(text, "{")
	text = strings.TrimSuffix(text, "}")
	text = strings.TrimSpace(text)
	if text == "" {
		return Path{}, nil
	}

	parts := strings.Split(text, ";")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		idx, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, s)
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: negative index in %q", ErrInvalidPath, s)
		}
		p = append(p, idx)
	}
	return p, nil
}

// MustParsePath is like ParsePath but panics on error. Intended for tests
// and static tables.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}
