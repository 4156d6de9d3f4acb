// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes a running component graph over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/datagate/services/datagate/config"
	"github.com/AleutianAI/datagate/services/datagate/dag"
	"github.com/AleutianAI/datagate/services/datagate/recorder"
	"github.com/AleutianAI/datagate/services/datagate/telemetry"
)

// maxBodyBytes bounds parameter values accepted over HTTP.
const maxBodyBytes = 1 << 20

// Handlers serves component reads and writes against one executor.
//
// Thread Safety: Safe for concurrent use. The executor serializes solves.
type Handlers struct {
	graph    *config.Graph
	exec     *dag.Executor
	settings recorder.SettingsStore
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// NewHandlers creates handlers.
//
// # Inputs
//
//   - graph: The built graph. Must not be nil.
//   - exec: Executor over graph.DAG. Must not be nil.
//   - settings: Where record_empty changes are persisted. May be nil.
//   - metrics: Request metrics. May be nil.
//   - logger: If nil, uses slog.Default().
func NewHandlers(graph *config.Graph, exec *dag.Executor, settings recorder.SettingsStore, metrics *telemetry.Metrics, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		graph:    graph,
		exec:     exec,
		settings: settings,
		metrics:  metrics,
		logger:   logger,
	}
}

func getOrCreateRequestID(c *gin.Context) string {
	id := c.GetHeader("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	c.Header("X-Request-ID", id)
	return id
}

func (h *Handlers) observe(ctx context.Context, start time.Time, status string) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordRequest(ctx, "http", status, time.Since(start).Seconds())
}

// HandleHealth handles GET /v1/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Graph:  h.graph.DAG.Name(),
		Nodes:  h.graph.DAG.NodeCount(),
	})
}

// HandleGetComponent handles GET /v1/components/:name.
//
// Returns the component's last output without solving.
func (h *Handlers) HandleGetComponent(c *gin.Context) {
	start := time.Now()
	name := c.Param("name")

	kind, ok := h.graph.Kinds[name]
	if !ok {
		h.observe(c.Request.Context(), start, "not_found")
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown component " + name, Code: "NOT_FOUND"})
		return
	}

	resp := ComponentResponse{
		Name:     name,
		Kind:     kind,
		Expired:  h.exec.Expired(name),
		Messages: h.exec.Messages(name),
	}
	if v, ok := h.exec.Output(name); ok {
		resp.Value = v
	}
	if node, ok := h.graph.Recorders[name]; ok {
		h.exec.Inspect(func() {
			v := node.Recorder().RecordEmpty()
			resp.RecordEmpty = &v
		})
	}

	h.observe(c.Request.Context(), start, "ok")
	c.JSON(http.StatusOK, resp)
}

// HandleSetComponent handles POST /v1/components/:name.
//
// # Description
//
// The body is the new parameter value as JSON: a structure object such as
// {"{0}": [1, 2]}, a bare array, true/false or an integer. The value is
// set and the graph solved before responding.
//
// # Responses
//
//   - 200: SolveResponse. Node failures are reported in its errors field.
//   - 400: Malformed value, or the component is not a parameter.
//   - 404: Unknown component.
func (h *Handlers) HandleSetComponent(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()
	name := c.Param("name")
	logger := telemetry.LoggerWithTrace(ctx, h.logger).With(
		slog.String("request_id", getOrCreateRequestID(c)),
		slog.String("component", name),
	)

	kind, ok := h.graph.Kinds[name]
	if !ok {
		h.observe(ctx, start, "not_found")
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown component " + name, Code: "NOT_FOUND"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		h.observe(ctx, start, "bad_request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "read body: " + err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	value, err := config.ParseValue(kind, body)
	if err != nil {
		code := "INVALID_VALUE"
		if errors.Is(err, config.ErrNotAParameter) {
			code = "NOT_A_PARAMETER"
		}
		logger.Warn("rejected value", slog.String("error", err.Error()))
		h.observe(ctx, start, "bad_request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	if err := h.exec.Set(name, value); err != nil {
		h.observe(ctx, start, "bad_request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "NOT_A_PARAMETER"})
		return
	}
	if h.metrics != nil {
		h.metrics.SetsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("component", name)))
	}

	h.solve(c, logger, start)
}

// HandleSetRecordEmpty handles PUT /v1/components/:name/record_empty.
//
// The new setting is persisted and the graph solved before responding.
func (h *Handlers) HandleSetRecordEmpty(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()
	name := c.Param("name")
	logger := telemetry.LoggerWithTrace(ctx, h.logger).With(
		slog.String("request_id", getOrCreateRequestID(c)),
		slog.String("component", name),
	)

	var req RecordEmptyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.observe(ctx, start, "bad_request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	if err := h.graph.SetRecordEmpty(ctx, h.exec, name, *req.Value, h.settings); err != nil {
		if errors.Is(err, config.ErrUnknownComponent) {
			h.observe(ctx, start, "not_found")
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_A_RECORDER"})
			return
		}
		logger.Error("record_empty update failed", slog.String("error", err.Error()))
		h.observe(ctx, start, "error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "SETTINGS_FAILED"})
		return
	}

	h.solve(c, logger, start)
}

func (h *Handlers) solve(c *gin.Context, logger *slog.Logger, start time.Time) {
	ctx := c.Request.Context()
	result, err := h.exec.Solve(ctx)
	if err != nil {
		logger.Error("solve failed", slog.String("error", err.Error()))
		h.observe(ctx, start, "error")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "SOLVE_FAILED"})
		return
	}

	resp := NewSolveResponse(result)
	if !result.Success() {
		logger.Warn("solve reported node failures", slog.Any("nodes", resp.FailedNodes()))
	}
	h.observe(ctx, start, "ok")
	c.JSON(http.StatusOK, resp)
}
