// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch reports debounced changes to a set of files.
//
// The watch CLI mode uses it to re-set a value parameter and re-solve
// whenever its backing JSON file is saved.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// ErrNoPaths is returned by New when no file is given.
var ErrNoPaths = errors.New("no paths to watch")

// Op is the kind of file change.
type Op int

const (
	// OpCreate means the file appeared, including an editor's atomic replace.
	OpCreate Op = iota

	// OpWrite means the file was modified in place.
	OpWrite

	// OpRemove means the file was deleted.
	OpRemove

	// OpRename means the file was moved away.
	OpRename
)

// String returns the lowercase op name.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Change is one observed change to a watched file.
type Change struct {
	Path string
	Op   Op
	Time time.Time
}

// Handler receives a debounced batch, at most one change per path.
type Handler func(ctx context.Context, changes []Change)

// Options configures a Watcher.
type Options struct {
	// Debounce is how long the watcher waits for quiet before flushing.
	// Default: 100ms
	Debounce time.Duration

	// BufferSize bounds pending changes. Changes beyond it are dropped.
	// Default: 64
	BufferSize int

	// Logger receives watch errors. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{
		Debounce:   100 * time.Millisecond,
		BufferSize: 64,
	}
}

// Watcher watches files and calls a Handler with debounced batches.
//
// # Description
//
// Each file's parent directory is watched rather than the file itself, so
// editors that save by writing a temp file and renaming it still produce
// events. Events for other files in those directories are ignored.
//
// # Thread Safety
//
// Safe for concurrent use. The handler is called from a single goroutine.
type Watcher struct {
	targets  map[string]struct{}
	watcher  *fsnotify.Watcher
	handler  Handler
	debounce time.Duration
	logger   *slog.Logger

	changes  chan Change
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// New creates a Watcher for paths. Watches are registered before New
// returns, so changes made after it returns are not missed.
//
// # Inputs
//
//   - paths: Files to watch. Must not be empty. Relative paths are made
//     absolute.
//   - handler: Called with each batch. Must not be nil.
//   - opts: Options. Nil uses DefaultOptions.
//
// # Outputs
//
//   - *Watcher: Call Run to start delivering changes and Stop to release.
//   - error: ErrNoPaths or a watch registration failure.
func New(paths []string, handler Handler, opts *Options) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, ErrNoPaths
	}
	if handler == nil {
		return nil, errors.New("watch: nil handler")
	}
	o := DefaultOptions()
	if opts != nil {
		if opts.Debounce > 0 {
			o.Debounce = opts.Debounce
		}
		if opts.BufferSize > 0 {
			o.BufferSize = opts.BufferSize
		}
		o.Logger = opts.Logger
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		targets:  make(map[string]struct{}, len(paths)),
		watcher:  fw,
		handler:  handler,
		debounce: o.Debounce,
		logger:   o.Logger,
		changes:  make(chan Change, o.BufferSize),
		done:     make(chan struct{}),
	}

	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		w.targets[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if _, ok := dirs[dir]; ok {
			continue
		}
		dirs[dir] = struct{}{}
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Run delivers changes until ctx is cancelled or Stop is called. Pending
// changes are flushed before it returns.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return errors.New("watch: already running")
	}
	w.watching = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.processEvents(gctx)
		return nil
	})
	g.Go(func() error {
		w.debounceLoop(gctx)
		return nil
	})
	return g.Wait()
}

// Stop ends Run and releases the underlying watcher. Safe to call twice.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

// IsWatching reports whether Run is active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			path := filepath.Clean(event.Name)
			if _, watched := w.targets[path]; !watched {
				continue
			}
			op, ok := convertOp(event.Op)
			if !ok {
				continue
			}
			select {
			case w.changes <- Change{Path: path, Op: op, Time: time.Now()}:
			default:
				w.logger.Warn("watch buffer full, dropping change", slog.String("path", path))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// convertOp maps an fsnotify op. Chmod alone is not a change.
func convertOp(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpWrite, true
	case op.Has(fsnotify.Remove):
		return OpRemove, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	default:
		return 0, false
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	var batch []Change
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func(ctx context.Context) {
		if len(batch) > 0 {
			w.handler(ctx, dedupe(batch))
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush(context.WithoutCancel(ctx))
			return
		case <-w.done:
			flush(ctx)
			return
		case change := <-w.changes:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush(ctx)
		}
	}
}

// dedupe keeps the latest change per path, in first-seen order.
func dedupe(changes []Change) []Change {
	seen := make(map[string]int, len(changes))
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		if i, ok := seen[c.Path]; ok {
			out[i] = c
			continue
		}
		seen[c.Path] = len(out)
		out = append(out, c)
	}
	return out
}
