// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ErrInvalidEncoding is returned when a structure document is malformed.
var ErrInvalidEncoding = errors.New("invalid structure encoding")

// MarshalJSON encodes the structure as an object keyed by path text.
//
// Keys are written in insertion order:
//
//	{"{0;0}":[1,2],"{0;1}":[]}
func (s *Structure) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	var err error
	first := true
	s.Range(func(p Path, branch []Item) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false

		key, kerr := json.Marshal(p.String())
		if kerr != nil {
			err = kerr
			return false
		}
		buf.Write(key)
		buf.WriteByte(':')

		if branch == nil {
			branch = []Item{}
		}
		val, verr := json.Marshal(branch)
		if verr != nil {
			err = fmt.Errorf("marshal branch %s: %w", p, verr)
			return false
		}
		buf.Write(val)
		return true
	})
	if err != nil {
		return nil, err
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes the object form produced by MarshalJSON.
//
// Key order in the document is preserved. A top-level array is accepted as
// shorthand for a single branch at {0}.
func (s *Structure) UnmarshalJSON(data []byte) error {
	*s = Structure{}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}

	switch tok {
	case json.Delim('['):
		var items []Item
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
		}
		s.AppendRange(NewPath(0), items)
		return nil
	case json.Delim('{'):
	default:
		return fmt.Errorf("%w: expected object or array", ErrInvalidEncoding)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("%w: non-string key", ErrInvalidEncoding)
		}
		p, err := ParsePath(key)
		if err != nil {
			return err
		}

		var items []Item
		if err := dec.Decode(&items); err != nil {
			return fmt.Errorf("%w: branch %s: %v", ErrInvalidEncoding, key, err)
		}
		s.AppendRange(p, items)
	}

	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return nil
}

// UnmarshalYAML decodes a mapping of path text to item sequences.
//
// # Description
//
// Mapping order is preserved, which plain map decoding would lose. A
// sequence is shorthand for a single branch at {0}, and a scalar for a
// one-item branch at {0}. A null value produces an empty structure.
func (s *Structure) UnmarshalYAML(value *yaml.Node) error {
	*s = Structure{}

	switch value.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			p, err := ParsePath(value.Content[i].Value)
			if err != nil {
				return err
			}
			items, err := decodeYAMLBranch(value.Content[i+1])
			if err != nil {
				return fmt.Errorf("branch %s: %w", p, err)
			}
			s.AppendRange(p, items)
		}
		return nil

	case yaml.SequenceNode:
		items, err := decodeYAMLBranch(value)
		if err != nil {
			return err
		}
		s.AppendRange(NewPath(0), items)
		return nil

	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			return nil
		}
		var item Item
		if err := value.Decode(&item); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
		}
		s.Append(NewPath(0), item)
		return nil

	default:
		return fmt.Errorf("%w: unsupported yaml node kind %d", ErrInvalidEncoding, value.Kind)
	}
}

func decodeYAMLBranch(node *yaml.Node) ([]Item, error) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return []Item{}, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: branch must be a sequence", ErrInvalidEncoding)
	}
	items := make([]Item, 0, len(node.Content))
	for _, child := range node.Content {
		var item Item
		if err := child.Decode(&item); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
		}
		items = append(items, item)
	}
	return items, nil
}
