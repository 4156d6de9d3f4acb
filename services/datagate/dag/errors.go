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
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph construction and solving.
var (
	// ErrInvalidInput is returned when an argument is nil or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilNode is returned when a nil node is added to a builder.
	ErrNilNode = errors.New("node must not be nil")

	// ErrDuplicateNode is returned when two nodes share a name.
	ErrDuplicateNode = errors.New("duplicate node name")

	// ErrNodeNotFound is returned when a name does not exist in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrCycleDetected is returned when dependencies form a cycle.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrNotSettable is returned when Set targets a node that holds no value.
	ErrNotSettable = errors.New("node value cannot be set")
)

// NodeError attaches a node name to an error.
type NodeError struct {
	NodeName string
	Err      error
}

// NewNodeError creates a NodeError.
func NewNodeError(name string, err error) *NodeError {
	return &NodeError{NodeName: name, Err: err}
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeName, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// CycleError describes a dependency cycle.
type CycleError struct {
	// Path lists the nodes of the cycle, first node repeated at the end.
	Path []string
}

// NewCycleError creates a CycleError for the given path.
func NewCycleError(path []string) *CycleError {
	p := make([]string, len(path))
	copy(p, path)
	return &CycleError{Path: p}
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}

// Is makes errors.Is(err, ErrCycleDetected) match.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected
}
