// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"fmt"
	"sort"

	"github.com/AleutianAI/datagate/services/datagate/dag"
	"github.com/AleutianAI/datagate/services/datagate/recorder"
)

// ApplyStep applies a step's changes to exec and solves.
//
// Parameters are set in name order. A record_empty change is persisted to
// settings when settings is not nil.
func (g *Graph) ApplyStep(ctx context.Context, exec *dag.Executor, step Step, settings recorder.SettingsStore) (*dag.Result, error) {
	names := make([]string, 0, len(step.Set))
	for name := range step.Set {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		node := step.Set[name]
		v, err := DecodeValue(g.Kinds[name], &node)
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", name, err)
		}
		if err := exec.Set(name, v); err != nil {
			return nil, fmt.Errorf("set %s: %w", name, err)
		}
	}

	for name, v := range step.RecordEmpty {
		if err := g.SetRecordEmpty(ctx, exec, name, v, settings); err != nil {
			return nil, err
		}
	}

	for _, name := range step.Expire {
		if err := exec.Expire(name); err != nil {
			return nil, fmt.Errorf("expire %s: %w", name, err)
		}
	}

	return exec.Solve(ctx)
}

// SetRecordEmpty persists a recorder's record-empty setting, then changes
// it and expires the recorder on change.
//
// Both happen under the executor lock, so concurrent callers persist and
// apply in the same order. A failed write leaves the recorder unchanged.
func (g *Graph) SetRecordEmpty(ctx context.Context, exec *dag.Executor, name string, v bool, settings recorder.SettingsStore) error {
	node, ok := g.Recorders[name]
	if !ok {
		return fmt.Errorf("%w: %q is not a recorder", ErrUnknownComponent, name)
	}
	err := exec.Update(name, func(dag.Node) (bool, error) {
		if settings != nil {
			if err := recorder.SaveRecordEmpty(ctx, settings, name, v); err != nil {
				return false, err
			}
		}
		return node.SetRecordEmpty(v), nil
	})
	if err != nil {
		return fmt.Errorf("record_empty %s: %w", name, err)
	}
	return nil
}
