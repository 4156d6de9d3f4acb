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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/datagate/pkg/logging"
	"github.com/AleutianAI/datagate/services/datagate/connectivity"
	"github.com/AleutianAI/datagate/services/datagate/dag"
	"github.com/AleutianAI/datagate/services/datagate/recorder"
	"github.com/AleutianAI/datagate/services/datagate/tree"
)

const demoYAML = `
name: demo
store: {in_memory: true}
components:
  - {name: data,  kind: value,  value: {"{0}": [1, 2]}}
  - {name: pass,  kind: toggle, value: true}
  - {name: limit, kind: number, value: 2}
  - {name: hold,  kind: gate, policy: gatekeeper, data: data, flag: pass}
  - {name: fwd,   kind: passer, data: data, flag: pass}
  - {name: hist,  kind: recorder, data: data, limit: limit}
steps:
  - set: {data: {"{0}": [3]}}
    print: [hist]
  - set: {data: [4]}
    print: [hist]
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(demoYAML))
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".datagate/state"), cfg.Store.Path)
	assert.True(t, cfg.Store.InMemory)
	assert.Equal(t, logging.LevelInfo, cfg.LogLevel())
	assert.Equal(t, "none", cfg.Telemetry.Traces)
	assert.Equal(t, DefaultPrometheusPort, cfg.Telemetry.PrometheusPort)
	assert.Equal(t, ConnectivityNone, cfg.Connectivity.Mode)
	assert.Equal(t, 2*time.Second, cfg.Connectivity.Timeout)
	assert.Len(t, cfg.Components, 6)
	assert.Len(t, cfg.Steps, 2)
	assert.Nil(t, cfg.Checker())

	tc := cfg.TelemetryConfig()
	assert.Equal(t, "none", tc.MetricExporter)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(demoYAML), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	base := "name: g\ncomponents:\n"
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", base + "  - {name: a, kind: toggle, colour: red}", "colour"},
		{"no components", "name: g\n", "Components"},
		{"missing name", "components:\n  - {name: a, kind: toggle}", "Name"},
		{"bad kind", base + "  - {name: a, kind: lamp}", "Kind"},
		{"slash in name", base + "  - {name: a/b, kind: toggle}", "Name"},
		{"duplicate", base + "  - {name: a, kind: toggle}\n  - {name: a, kind: number}", "duplicate"},
		{"bad policy", base + "  - {name: d, kind: value}\n  - {name: g1, kind: gate, data: d, policy: sometimes}", "Policy"},
		{"no data port", base + "  - {name: g1, kind: gate}", "requires a data port"},
		{"unknown ref", base + "  - {name: d, kind: value}\n  - {name: g1, kind: gate, data: d, flag: nope}", "unknown component"},
		{"recorder ref", base + "  - {name: d, kind: value}\n  - {name: h, kind: recorder, data: d, clear: nope}", "h.clear"},
		{"bad toggle value", base + "  - {name: a, kind: toggle, value: [1]}", "a.value"},
		{"tcp without address", "name: g\nconnectivity: {mode: tcp}\ncomponents:\n  - {name: a, kind: toggle}", "requires an address"},
		{"bad address", "name: g\nconnectivity: {mode: tcp, address: nowhere}\ncomponents:\n  - {name: a, kind: toggle}", "Address"},
		{"bad log level", "name: g\nlogging: {level: loud}\ncomponents:\n  - {name: a, kind: toggle}", "Level"},
		{"step sets unknown", base + "  - {name: a, kind: toggle}\nsteps:\n  - set: {b: true}", "unknown component"},
		{"step bad value", base + "  - {name: a, kind: number}\nsteps:\n  - set: {a: many}", "step 0 sets a"},
		{"step record_empty target", base + "  - {name: a, kind: toggle}\nsteps:\n  - record_empty: {a: true}", "not a recorder"},
		{"step print unknown", base + "  - {name: a, kind: toggle}\nsteps:\n  - print: [z]", "unknown component"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_InvalidIsWrapped(t *testing.T) {
	_, err := Parse([]byte("name: g\ncomponents:\n  - {name: g1, kind: gate}"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChecker(t *testing.T) {
	offline := false
	cfg := &Config{Connectivity: ConnectivityConfig{Mode: ConnectivityStatic, OK: &offline}}
	assert.False(t, connectivity.Valid(context.Background(), cfg.Checker()))

	cfg.Connectivity.OK = nil
	assert.True(t, connectivity.Valid(context.Background(), cfg.Checker()))

	cfg.Connectivity = ConnectivityConfig{Mode: ConnectivityTCP, Address: "127.0.0.1:1", Timeout: time.Second}
	_, ok := cfg.Checker().(*connectivity.Cached)
	assert.True(t, ok)
}

// =============================================================================
// Values
// =============================================================================

func TestParseValue(t *testing.T) {
	v, err := ParseValue(KindValue, []byte(`{"{0;1}": ["a", 2]}`))
	require.NoError(t, err)
	s := v.(*tree.Structure)
	assert.Equal(t, []tree.Path{{0, 1}}, s.Paths())
	b, _ := s.Branch(tree.NewPath(0, 1))
	assert.Equal(t, []tree.Item{"a", 2}, b)

	v, err = ParseValue(KindToggle, []byte("true"))
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = ParseValue(KindNumber, []byte("5"))
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	_, err = ParseValue(KindNumber, []byte(""))
	assert.Error(t, err)

	_, err = ParseValue(KindGate, []byte("1"))
	assert.ErrorIs(t, err, ErrNotAParameter)
}

func TestDecodeValue_AbsentIsZero(t *testing.T) {
	v, err := DecodeValue(KindValue, nil)
	require.NoError(t, err)
	assert.True(t, v.(*tree.Structure).IsEmpty())

	v, err = DecodeValue(KindToggle, nil)
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

// =============================================================================
// Graph and steps
// =============================================================================

type mapStore map[string]bool

func (m mapStore) GetBool(_ context.Context, component, key string) (bool, bool, error) {
	v, ok := m[component+"/"+key]
	return v, ok, nil
}

func (m mapStore) SetBool(_ context.Context, component, key string, value bool) error {
	m[component+"/"+key] = value
	return nil
}

func TestBuildGraph_RunSteps(t *testing.T) {
	ctx := context.Background()
	cfg, err := Parse([]byte(demoYAML))
	require.NoError(t, err)

	g, err := cfg.BuildGraph(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, KindGate, g.Kinds["hold"])
	assert.Equal(t, []string{"hist"}, g.RecorderNames())

	exec, err := dag.NewExecutor(g.DAG, nil)
	require.NoError(t, err)
	_, err = exec.Solve(ctx)
	require.NoError(t, err)

	for _, step := range cfg.Steps {
		res, err := g.ApplyStep(ctx, exec, step, nil)
		require.NoError(t, err)
		assert.True(t, res.Success())
	}

	v, _ := exec.Output("hist")
	out := v.(*tree.Structure)
	assert.Equal(t, []tree.Path{{0, 0}, {1, 0}}, out.Paths())
	b0, _ := out.Branch(tree.NewPath(0, 0))
	b1, _ := out.Branch(tree.NewPath(1, 0))
	assert.Equal(t, []tree.Item{3}, b0)
	assert.Equal(t, []tree.Item{4}, b1)
	assert.Equal(t, map[string]int{"hist": 2}, g.RecorderDepths())
}

func TestBuildGraph_RecorderSettings(t *testing.T) {
	ctx := context.Background()
	doc := strings.Replace(demoYAML, "limit: limit}", "limit: limit, record_empty: false}", 1)
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	store := mapStore{"hist/" + recorder.SettingRecordEmpty: true}
	g, err := cfg.BuildGraph(ctx, store)
	require.NoError(t, err)
	assert.True(t, g.Recorders["hist"].Recorder().RecordEmpty(), "persisted setting wins")

	exec, err := dag.NewExecutor(g.DAG, nil)
	require.NoError(t, err)
	require.NoError(t, g.SetRecordEmpty(ctx, exec, "hist", false, store))
	assert.False(t, store["hist/"+recorder.SettingRecordEmpty])

	assert.ErrorIs(t, g.SetRecordEmpty(ctx, exec, "hold", true, store), ErrUnknownComponent)
}

func TestBuildGraph_RecordEmptyStep(t *testing.T) {
	ctx := context.Background()
	doc := demoYAML + "  - {set: {data: {}}, record_empty: {hist: true}}\n"
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	store := mapStore{}
	g, err := cfg.BuildGraph(ctx, store)
	require.NoError(t, err)
	exec, err := dag.NewExecutor(g.DAG, nil)
	require.NoError(t, err)
	_, err = exec.Solve(ctx)
	require.NoError(t, err)

	for _, step := range cfg.Steps {
		_, err := g.ApplyStep(ctx, exec, step, store)
		require.NoError(t, err)
	}

	v, _ := exec.Output("hist")
	out := v.(*tree.Structure)
	// Limit 2 keeps the {4} snapshot and the empty one at slot 1.
	assert.Equal(t, []tree.Path{{0, 0}, {1}}, out.Paths())
	assert.True(t, store["hist/"+recorder.SettingRecordEmpty])
}

type failingStore struct{ err error }

func (f failingStore) GetBool(context.Context, string, string) (bool, bool, error) {
	return false, false, nil
}

func (f failingStore) SetBool(context.Context, string, string, bool) error {
	return f.err
}

// Run with -race: updates and solves share recorder state.
func TestSetRecordEmpty_ConcurrentWithSolve(t *testing.T) {
	ctx := context.Background()
	cfg, err := Parse([]byte(demoYAML))
	require.NoError(t, err)

	store := mapStore{}
	g, err := cfg.BuildGraph(ctx, store)
	require.NoError(t, err)
	exec, err := dag.NewExecutor(g.DAG, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(v bool) {
			defer wg.Done()
			assert.NoError(t, g.SetRecordEmpty(ctx, exec, "hist", v, store))
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			_, err := exec.Solve(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var inMemory bool
	exec.Inspect(func() { inMemory = g.Recorders["hist"].Recorder().RecordEmpty() })
	assert.Equal(t, inMemory, store["hist/"+recorder.SettingRecordEmpty], "store and recorder agree")
}

func TestSetRecordEmpty_WriteFailureKeepsSetting(t *testing.T) {
	ctx := context.Background()
	cfg, err := Parse([]byte(demoYAML))
	require.NoError(t, err)

	g, err := cfg.BuildGraph(ctx, nil)
	require.NoError(t, err)
	exec, err := dag.NewExecutor(g.DAG, nil)
	require.NoError(t, err)
	_, err = exec.Solve(ctx)
	require.NoError(t, err)

	boom := errors.New("disk full")
	err = g.SetRecordEmpty(ctx, exec, "hist", true, failingStore{err: boom})
	assert.ErrorIs(t, err, boom)
	assert.False(t, g.Recorders["hist"].Recorder().RecordEmpty())
	assert.False(t, exec.Expired("hist"))
}
