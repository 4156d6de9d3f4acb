// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/datagate/pkg/validation"
)

// SettingsPrefix is the key prefix of every persisted setting.
const SettingsPrefix = "datagate/settings/"

var (
	// ErrInvalidKey is returned for component or setting names that fail
	// validation.
	ErrInvalidKey = errors.New("invalid settings key")

	// ErrInvalidValue is returned when a stored value has the wrong type.
	ErrInvalidValue = errors.New("invalid settings value")
)

var (
	trueValue  = []byte{1}
	falseValue = []byte{0}
)

// SettingsStore reads and writes per-component settings.
//
// Keys have the form datagate/settings/<component>/<key>.
type SettingsStore struct {
	db *DB
}

// NewSettingsStore creates a store over db.
func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// SettingsKey builds the storage key for a component setting. Both names
// must pass validation.ValidateName.
func SettingsKey(component, key string) ([]byte, error) {
	if err := validation.ValidateNames([]string{component, key}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return []byte(SettingsPrefix + component + "/" + key), nil
}

// GetBool reads a boolean setting.
//
// # Outputs
//
//   - bool: The stored value.
//   - bool: False if the setting was never written.
//   - error: Non-nil on invalid keys, corrupt values or storage failure.
func (s *SettingsStore) GetBool(ctx context.Context, component, key string) (bool, bool, error) {
	k, err := SettingsKey(component, key)
	if err != nil {
		return false, false, err
	}

	var value, found bool
	err = s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			switch {
			case bytes.Equal(val, trueValue):
				value = true
			case bytes.Equal(val, falseValue):
				value = false
			default:
				return fmt.Errorf("%w: %s", ErrInvalidValue, k)
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return false, false, fmt.Errorf("get setting %s: %w", k, err)
	}
	return value, found, nil
}

// SetBool writes a boolean setting.
func (s *SettingsStore) SetBool(ctx context.Context, component, key string, value bool) error {
	k, err := SettingsKey(component, key)
	if err != nil {
		return err
	}

	v := falseValue
	if value {
		v = trueValue
	}
	if err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(k, v)
	}); err != nil {
		return fmt.Errorf("set setting %s: %w", k, err)
	}
	return nil
}

// Delete removes a setting. Deleting a missing setting is not an error.
func (s *SettingsStore) Delete(ctx context.Context, component, key string) error {
	k, err := SettingsKey(component, key)
	if err != nil {
		return err
	}
	if err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(k)
	}); err != nil {
		return fmt.Errorf("delete setting %s: %w", k, err)
	}
	return nil
}

// Keys lists the setting keys stored for a component.
func (s *SettingsStore) Keys(ctx context.Context, component string) ([]string, error) {
	if err := validation.ValidateName(component); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	prefix := []byte(SettingsPrefix + component + "/")

	var keys []string
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(bytes.TrimPrefix(it.Item().Key(), prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list settings for %s: %w", component, err)
	}
	return keys, nil
}
