// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments used by the CLI front ends.
//
// Solve-level metrics live in the dag package; these cover requests that
// arrive from outside (HTTP, file watcher) and recorder queue depth.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// RequestsTotal counts external requests by source and status.
	RequestsTotal metric.Int64Counter

	// RequestDuration records request handling time in seconds.
	RequestDuration metric.Float64Histogram

	// SetsTotal counts parameter updates by component.
	SetsTotal metric.Int64Counter

	// RecorderDepth reports the number of snapshots held per recorder.
	RecorderDepth metric.Int64ObservableGauge
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RequestsTotal, err = meter.Int64Counter("datagate_requests_total",
		metric.WithDescription("External requests by source and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create requests_total: %w", err)
	}

	m.RequestDuration, err = meter.Float64Histogram("datagate_request_duration_seconds",
		metric.WithDescription("External request handling time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request_duration: %w", err)
	}

	m.SetsTotal, err = meter.Int64Counter("datagate_parameter_sets_total",
		metric.WithDescription("Parameter updates by component"),
	)
	if err != nil {
		return nil, fmt.Errorf("create parameter_sets_total: %w", err)
	}

	return m, nil
}

// RecordRequest adds one request observation.
func (m *Metrics) RecordRequest(ctx context.Context, source, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("status", status),
	)
	m.RequestsTotal.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, seconds, attrs)
}

// RegisterRecorderDepth observes queue depth on every collection.
//
// # Inputs
//
//   - meter: The meter to register on.
//   - depths: Returns the current depth per recorder name.
//
// # Outputs
//
//   - metric.Registration: Call Unregister to stop observing.
//   - error: Non-nil if the gauge cannot be created.
func (m *Metrics) RegisterRecorderDepth(meter metric.Meter, depths func() map[string]int) (metric.Registration, error) {
	var err error
	m.RecorderDepth, err = meter.Int64ObservableGauge("datagate_recorder_depth",
		metric.WithDescription("Snapshots currently held by each recorder"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create recorder_depth: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for name, depth := range depths() {
			o.ObserveInt64(m.RecorderDepth, int64(depth), metric.WithAttributes(attribute.String("recorder", name)))
		}
		return nil
	}, m.RecorderDepth)
}
