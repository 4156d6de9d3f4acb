// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"
)

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconArrow} {
		if got := icon.Render(); !strings.Contains(got, string(icon)) {
			t.Errorf("Render(%q) = %q", icon, got)
		}
	}
}

func TestNewPrinter_BufferIsPlain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	if !p.Plain() {
		t.Fatal("expected plain output for a non-terminal writer")
	}
	if p.Writer() != &buf {
		t.Error("Writer() returned a different writer")
	}
}

func TestPrinter_Plain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.Title("step 1")
	p.Success("solved")
	p.Warning("aborted")
	p.Error("failed")
	p.Field("hist", `{"{0;0}":[1]}`)
	p.Box("boxed")

	want := strings.Join([]string{
		"== step 1 ==",
		"OK: solved",
		"WARN: aborted",
		"ERROR: failed",
		`hist = {"{0;0}":[1]}`,
		"boxed",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("plain output =\n%s\nwant\n%s", got, want)
	}
}

func TestPrinter_Styled(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{w: &buf}

	p.Success("solved")
	p.Field("hist", "[]")

	out := buf.String()
	if !strings.Contains(out, "solved") || !strings.Contains(out, "hist") {
		t.Errorf("styled output missing text: %q", out)
	}
	if strings.Contains(out, "OK:") {
		t.Errorf("styled output used plain prefix: %q", out)
	}
}
