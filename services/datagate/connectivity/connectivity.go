// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package connectivity provides the environment predicates that gate
// recorder evaluations. The recorder itself only sees a boolean; hosts pick
// a Checker and evaluate it before each call.
package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single dial probe.
const DefaultTimeout = 2 * time.Second

// ErrUnreachable is returned when a probe cannot reach its target.
var ErrUnreachable = errors.New("target unreachable")

// Checker reports whether the environment precondition holds.
type Checker interface {
	// Check returns nil when the precondition holds.
	Check(ctx context.Context) error
}

// Valid evaluates c. A nil checker is always valid.
func Valid(ctx context.Context, c Checker) bool {
	if c == nil {
		return true
	}
	return c.Check(ctx) == nil
}

// Static is a Checker with a fixed answer.
type Static bool

// Check returns ErrUnreachable when s is false.
func (s Static) Check(context.Context) error {
	if !s {
		return ErrUnreachable
	}
	return nil
}

// DialChecker probes a TCP endpoint.
type DialChecker struct {
	// Address is the host:port to dial.
	Address string

	// Timeout bounds the dial. Default: DefaultTimeout.
	Timeout time.Duration

	dialer net.Dialer
}

// NewDialChecker creates a TCP probe for address.
func NewDialChecker(address string, timeout time.Duration) *DialChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DialChecker{Address: address, Timeout: timeout}
}

// Check dials the address and closes the connection immediately.
func (d *DialChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	conn, err := d.dialer.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, d.Address, err)
	}
	return conn.Close()
}

// Cached re-runs an inner checker at most once per interval and answers
// from the last result in between.
//
// # Thread Safety
//
// Safe for concurrent use.
type Cached struct {
	inner     Checker
	sometimes *rate.Sometimes

	mu   sync.Mutex
	last error
}

// NewCached wraps inner. A non-positive interval probes on every call.
func NewCached(inner Checker, interval time.Duration) *Cached {
	s := &rate.Sometimes{Interval: interval}
	if interval <= 0 {
		s = &rate.Sometimes{Every: 1}
	}
	return &Cached{inner: inner, sometimes: s}
}

// Check returns the cached result, probing first if the interval elapsed.
func (c *Cached) Check(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sometimes.Do(func() {
		c.last = c.inner.Check(ctx)
	})
	return c.last
}
