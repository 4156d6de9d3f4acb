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

	"github.com/AleutianAI/datagate/services/datagate/connectivity"
	"github.com/AleutianAI/datagate/services/datagate/dag"
	"github.com/AleutianAI/datagate/services/datagate/gate"
	"github.com/AleutianAI/datagate/services/datagate/recorder"
)

// Graph is a built component graph plus the metadata front ends need.
type Graph struct {
	// DAG is the validated graph.
	DAG *dag.DAG

	// Kinds maps component names to their kind.
	Kinds map[string]string

	// Recorders maps recorder names to their nodes.
	Recorders map[string]*dag.RecorderNode
}

// RecorderNames returns recorder names in sorted order.
func (g *Graph) RecorderNames() []string {
	names := make([]string, 0, len(g.Recorders))
	for name := range g.Recorders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RecorderDepths returns the number of snapshots each recorder holds.
func (g *Graph) RecorderDepths() map[string]int {
	out := make(map[string]int, len(g.Recorders))
	for name, node := range g.Recorders {
		out[name] = node.Recorder().Len()
	}
	return out
}

// Checker builds the connectivity precondition. Nil means always connected.
func (c *Config) Checker() connectivity.Checker {
	switch c.Connectivity.Mode {
	case ConnectivityStatic:
		ok := true
		if c.Connectivity.OK != nil {
			ok = *c.Connectivity.OK
		}
		return connectivity.Static(ok)
	case ConnectivityTCP:
		probe := connectivity.NewDialChecker(c.Connectivity.Address, c.Connectivity.Timeout)
		return connectivity.NewCached(probe, c.Connectivity.Interval)
	default:
		return nil
	}
}

// BuildGraph turns the component list into a graph.
//
// # Description
//
// Each recorder starts with the record_empty value from the file and then
// loads its persisted setting from settings, which wins when present. All
// recorders share one connectivity checker.
//
// # Inputs
//
//   - ctx: Used for settings reads.
//   - settings: Persisted recorder settings. May be nil.
//
// # Outputs
//
//   - *Graph: The built graph.
//   - error: Invalid values, graph errors (cycles) or settings failures.
func (c *Config) BuildGraph(ctx context.Context, settings recorder.SettingsStore) (*Graph, error) {
	g := &Graph{
		Kinds:     make(map[string]string, len(c.Components)),
		Recorders: make(map[string]*dag.RecorderNode),
	}
	checker := c.Checker()
	b := dag.NewBuilder(c.Name)

	for _, comp := range c.Components {
		g.Kinds[comp.Name] = comp.Kind

		switch comp.Kind {
		case KindValue, KindToggle, KindNumber:
			v, err := DecodeValue(comp.Kind, &comp.Value)
			if err != nil {
				return nil, fmt.Errorf("component %s: %w", comp.Name, err)
			}
			b.AddNode(dag.NewParamNode(comp.Name, v))

		case KindGate:
			policy, err := gate.ParsePolicy(comp.Policy)
			if err != nil {
				return nil, fmt.Errorf("component %s: %w", comp.Name, err)
			}
			b.AddNode(dag.NewGateNode(comp.Name, policy, comp.Data, comp.Flag))

		case KindPasser:
			b.AddNode(dag.NewPasserNode(comp.Name, comp.Data, comp.Flag))

		case KindRecorder:
			node := dag.NewRecorderNode(comp.Name, dag.RecorderPorts{
				Data:   comp.Data,
				Record: comp.Record,
				Clear:  comp.Clear,
				Limit:  comp.Limit,
			}, checker)
			if comp.RecordEmpty != nil {
				node.SetRecordEmpty(*comp.RecordEmpty)
			}
			if settings != nil {
				if err := node.Recorder().Load(ctx, settings, comp.Name); err != nil {
					return nil, fmt.Errorf("component %s: %w", comp.Name, err)
				}
			}
			g.Recorders[comp.Name] = node
			b.AddNode(node)

		default:
			return nil, fmt.Errorf("%w: component %s has kind %q", ErrInvalidConfig, comp.Name, comp.Kind)
		}
	}

	d, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build graph %s: %w", c.Name, err)
	}
	g.DAG = d
	return g, nil
}
