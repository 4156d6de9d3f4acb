// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diag is the runtime message channel between components and the
// host. Components report user-visible remarks, warnings and errors here
// instead of returning Go errors for conditions the user has to fix.
package diag

import "fmt"

// Level is the severity of a runtime message.
type Level int

const (
	// LevelRemark is informational.
	LevelRemark Level = iota + 1

	// LevelWarning flags a suspicious but non-fatal condition.
	LevelWarning

	// LevelError means the component could not produce a normal result.
	LevelError
)

// String returns "remark", "warning", "error" or "unknown".
func (l Level) String() string {
	switch l {
	case LevelRemark:
		return "remark"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Message is a single runtime message.
type Message struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// String formats the message as "level: text".
func (m Message) String() string {
	return fmt.Sprintf("%s: %s", m.Level, m.Text)
}

// Reporter receives runtime messages.
type Reporter interface {
	Report(msg Message)
}

// Errorf reports an error-level message.
func Errorf(r Reporter, format string, args ...any) {
	r.Report(Message{Level: LevelError, Text: fmt.Sprintf(format, args...)})
}

// Warnf reports a warning-level message.
func Warnf(r Reporter, format string, args ...any) {
	r.Report(Message{Level: LevelWarning, Text: fmt.Sprintf(format, args...)})
}

// Collector accumulates messages for one evaluation.
//
// The zero value is ready to use. NOT safe for concurrent use.
type Collector struct {
	messages []Message
}

// Report appends a message.
func (c *Collector) Report(msg Message) {
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of all collected messages.
func (c *Collector) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Max returns the highest level collected, or 0 if there are none.
func (c *Collector) Max() Level {
	var highest Level
	for _, m := range c.messages {
		if m.Level > highest {
			highest = m.Level
		}
	}
	return highest
}

// Reset drops all collected messages.
func (c *Collector) Reset() {
	c.messages = c.messages[:0]
}

// Discard is a Reporter that drops every message.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(Message) {}
