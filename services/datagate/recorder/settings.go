// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recorder

import (
	"context"
	"fmt"
)

// SettingsStore persists per-component boolean settings.
//
// The host owns the store; the recorder only reads and writes its keys.
type SettingsStore interface {
	// GetBool returns the value and whether the key exists.
	GetBool(ctx context.Context, component, key string) (bool, bool, error)

	// SetBool writes the value.
	SetBool(ctx context.Context, component, key string, value bool) error
}

// SaveRecordEmpty writes v as the record-empty setting of component id.
//
// Hosts pass the value they are about to apply rather than reading it back
// from a recorder another goroutine may be changing.
func SaveRecordEmpty(ctx context.Context, store SettingsStore, id string, v bool) error {
	if err := store.SetBool(ctx, id, SettingRecordEmpty, v); err != nil {
		return fmt.Errorf("save %s for %s: %w", SettingRecordEmpty, id, err)
	}
	return nil
}

// Load restores the persisted settings for the component id.
//
// A missing key keeps the current value.
func (r *Recorder) Load(ctx context.Context, store SettingsStore, id string) error {
	v, ok, err := store.GetBool(ctx, id, SettingRecordEmpty)
	if err != nil {
		return fmt.Errorf("load %s for %s: %w", SettingRecordEmpty, id, err)
	}
	if ok {
		r.state.recordEmpty = v
	}
	return nil
}
