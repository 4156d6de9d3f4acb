// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"sort"

	"github.com/AleutianAI/datagate/services/datagate/dag"
	"github.com/AleutianAI/datagate/services/datagate/diag"
)

// ComponentResponse is returned by GET /v1/components/:name.
type ComponentResponse struct {
	// Name is the component name.
	Name string `json:"name"`

	// Kind is the component kind from the graph file.
	Kind string `json:"kind"`

	// Expired is true when the component waits for the next solve.
	Expired bool `json:"expired"`

	// Value is the last output. Omitted when the component has none.
	Value any `json:"value,omitempty"`

	// Messages are the runtime messages of the last evaluation.
	Messages []diag.Message `json:"messages,omitempty"`

	// RecordEmpty is the record-empty setting. Recorders only.
	RecordEmpty *bool `json:"record_empty,omitempty"`
}

// SolveResponse summarizes a solve triggered by a request.
type SolveResponse struct {
	SessionID   string            `json:"session_id"`
	Evaluated   []string          `json:"evaluated"`
	Aborted     []string          `json:"aborted,omitempty"`
	Invalidated []string          `json:"invalidated,omitempty"`
	Errors      map[string]string `json:"errors,omitempty"`
	DurationMs  int64             `json:"duration_ms"`
}

// NewSolveResponse converts a solve result.
func NewSolveResponse(r *dag.Result) SolveResponse {
	resp := SolveResponse{
		SessionID:   r.SessionID,
		Evaluated:   r.Evaluated,
		Aborted:     r.Aborted,
		Invalidated: r.Invalidated,
		DurationMs:  r.Duration.Milliseconds(),
	}
	if resp.Evaluated == nil {
		resp.Evaluated = []string{}
	}
	if len(r.Errors) > 0 {
		resp.Errors = make(map[string]string, len(r.Errors))
		for name, err := range r.Errors {
			resp.Errors[name] = err.Error()
		}
	}
	return resp
}

// FailedNodes returns the names in Errors, sorted.
func (r SolveResponse) FailedNodes() []string {
	names := make([]string, 0, len(r.Errors))
	for name := range r.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RecordEmptyRequest is the body of PUT /v1/components/:name/record_empty.
type RecordEmptyRequest struct {
	Value *bool `json:"value" binding:"required"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable error code.
	Code string `json:"code,omitempty"`
}

// HealthResponse is returned by GET /v1/health.
type HealthResponse struct {
	Status string `json:"status"`
	Graph  string `json:"graph"`
	Nodes  int    `json:"nodes"`
}
