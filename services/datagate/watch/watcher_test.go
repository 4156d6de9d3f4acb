// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Errors(t *testing.T) {
	noop := func(context.Context, []Change) {}

	_, err := New(nil, noop, nil)
	assert.ErrorIs(t, err, ErrNoPaths)

	_, err = New([]string{"x.json"}, nil, nil)
	assert.Error(t, err)

	_, err = New([]string{filepath.Join(t.TempDir(), "missing", "x.json")}, noop, nil)
	assert.Error(t, err)
}

func TestWatcher_DeliversDebouncedBatch(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "data.json")
	other := filepath.Join(dir, "other.json")
	require.NoError(t, os.WriteFile(target, []byte(`{}`), 0600))

	batches := make(chan []Change, 4)
	w, err := New([]string{target}, func(_ context.Context, changes []Change) {
		batches <- changes
	}, &Options{Debounce: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(other, []byte(`[1]`), 0600))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(target, []byte(`{"{0}": [1]}`), 0600))
	}

	select {
	case changes := <-batches:
		require.Len(t, changes, 1)
		assert.Equal(t, target, changes[0].Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no batch delivered")
	}

	w.Stop()
	w.Stop()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.False(t, w.IsWatching())
}

func TestWatcher_RunTwice(t *testing.T) {
	target := filepath.Join(t.TempDir(), "data.json")
	w, err := New([]string{target}, func(context.Context, []Change) {}, nil)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, w.IsWatching, time.Second, 5*time.Millisecond)
	assert.Error(t, w.Run(ctx))

	cancel()
	<-done
}

func TestConvertOp(t *testing.T) {
	tests := []struct {
		in   fsnotify.Op
		want Op
		ok   bool
	}{
		{fsnotify.Create, OpCreate, true},
		{fsnotify.Write, OpWrite, true},
		{fsnotify.Write | fsnotify.Chmod, OpWrite, true},
		{fsnotify.Remove, OpRemove, true},
		{fsnotify.Rename, OpRename, true},
		{fsnotify.Chmod, 0, false},
	}
	for _, tt := range tests {
		got, ok := convertOp(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in.String())
		if ok {
			assert.Equal(t, tt.want, got, tt.in.String())
		}
	}
	assert.Equal(t, "unknown", Op(9).String())
}

func TestDedupe_KeepsLatestPerPath(t *testing.T) {
	now := time.Now()
	in := []Change{
		{Path: "a", Op: OpCreate, Time: now},
		{Path: "b", Op: OpWrite, Time: now},
		{Path: "a", Op: OpRemove, Time: now.Add(time.Millisecond)},
	}
	out := dedupe(in)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Path)
	assert.Equal(t, OpRemove, out[0].Op)
	assert.Equal(t, "b", out[1].Path)
}
