// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation validates user-provided identifiers.
//
// Component and setting names end up in storage keys and URL paths, so they
// are restricted to a small character set.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidName is returned for names that fail ValidateName.
var ErrInvalidName = errors.New("invalid name")

// namePattern allows letters, digits, underscores, dots and hyphens, not
// starting with a dot or hyphen. Max length: 64.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]{0,63}$`)

// ValidateName validates a component or setting name.
//
// Valid names:
//   - 1-64 characters
//   - Letters, digits and underscores
//   - Dots and hyphens after the first character
//
// Example:
//
//	if err := validation.ValidateName(component); err != nil {
//	    return nil, fmt.Errorf("settings key: %w", err)
//	}
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q (must be 1-64 letters, digits, '_', '.' or '-')", ErrInvalidName, name)
	}
	return nil
}

// ValidateNames validates several names and lists every invalid one.
func ValidateNames(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateName(n); err != nil {
			invalid = append(invalid, n)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("%w: %q", ErrInvalidName, invalid)
	}
	return nil
}

// SanitizeName trims surrounding space and validates the result.
func SanitizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := ValidateName(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
