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
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/datagate/services/datagate/tree"
)

// ErrNotAParameter is returned when decoding a value for a component kind
// that holds none.
var ErrNotAParameter = errors.New("component kind holds no value")

// DecodeValue converts a YAML node to the Go value a parameter of kind
// holds: *tree.Structure, bool or int. An absent node yields the zero
// value (empty structure, false, 0).
func DecodeValue(kind string, node *yaml.Node) (any, error) {
	if node != nil && node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	absent := node == nil || node.Kind == 0

	switch kind {
	case KindValue:
		s := tree.New()
		if absent {
			return s, nil
		}
		if err := node.Decode(s); err != nil {
			return nil, fmt.Errorf("decode structure: %w", err)
		}
		return s, nil

	case KindToggle:
		var b bool
		if absent {
			return b, nil
		}
		if err := node.Decode(&b); err != nil {
			return nil, fmt.Errorf("decode toggle: %w", err)
		}
		return b, nil

	case KindNumber:
		var n int
		if absent {
			return n, nil
		}
		if err := node.Decode(&n); err != nil {
			return nil, fmt.Errorf("decode number: %w", err)
		}
		return n, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrNotAParameter, kind)
	}
}

// ParseValue decodes YAML or JSON text for a parameter of kind.
//
// Empty input is rejected.
func ParseValue(kind string, data []byte) (any, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}
	if node.Kind == 0 {
		return nil, errors.New("parse value: empty input")
	}
	return DecodeValue(kind, &node)
}
