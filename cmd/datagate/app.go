// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/AleutianAI/datagate/pkg/logging"
	"github.com/AleutianAI/datagate/pkg/ux"
	"github.com/AleutianAI/datagate/services/datagate/config"
	"github.com/AleutianAI/datagate/services/datagate/dag"
	badgerstore "github.com/AleutianAI/datagate/services/datagate/storage/badger"
	"github.com/AleutianAI/datagate/services/datagate/telemetry"
)

const shutdownTimeout = 5 * time.Second

// app is everything a graph command needs: config, logger, store, graph
// and executor. Close releases them in reverse order.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	db       *badgerstore.DB
	settings *badgerstore.SettingsStore
	graph    *config.Graph
	exec     *dag.Executor
	shutdown func(context.Context) error
}

// newLogger builds the CLI logger. Logs are JSON when asked for or when
// stderr is not a terminal.
func newLogger(opts *globalOptions, level logging.Level, jsonLogs bool, dir string, errOut io.Writer) (*logging.Logger, error) {
	if opts.logLevel != "" {
		l, err := logging.ParseLevel(opts.logLevel)
		if err != nil {
			return nil, err
		}
		level = l
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  dir,
		Service: "datagate",
		JSON:    jsonLogs || opts.logJSON || !ux.IsTerminal(errOut),
		Output:  errOut,
	}), nil
}

// openStore opens the settings store at path.
func openStore(path string, inMemory bool, logger *logging.Logger) (*badgerstore.DB, error) {
	cfg := badgerstore.DefaultConfig()
	cfg.Path = logging.ExpandPath(path)
	cfg.InMemory = inMemory
	cfg.Logger = logger.Slog()
	if inMemory {
		cfg.Path = ""
		cfg.GCInterval = 0
	}
	return badgerstore.OpenDB(cfg)
}

// openApp loads the graph file and wires everything up. adjust, if not
// nil, may change the config before anything is opened.
func openApp(ctx context.Context, opts *globalOptions, path string, errOut io.Writer, adjust func(*config.Config)) (_ *app, err error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.store != "" {
		cfg.Store.Path = logging.ExpandPath(opts.store)
		cfg.Store.InMemory = false
	}
	if adjust != nil {
		adjust(cfg)
	}

	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.logger, err = newLogger(opts, cfg.LogLevel(), cfg.Logging.JSON, cfg.Logging.Dir, errOut)
	if err != nil {
		return nil, err
	}

	a.shutdown, err = telemetry.Init(ctx, cfg.TelemetryConfig())
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	a.db, err = openStore(cfg.Store.Path, cfg.Store.InMemory, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}
	a.settings = badgerstore.NewSettingsStore(a.db)

	a.graph, err = cfg.BuildGraph(ctx, a.settings)
	if err != nil {
		return nil, err
	}
	a.exec, err = dag.NewExecutor(a.graph.DAG, a.logger.Slog())
	if err != nil {
		return nil, err
	}

	a.logger.Debug("graph loaded",
		"graph", cfg.Name,
		"nodes", a.graph.DAG.NodeCount(),
		"store", cfg.Store.Path,
		"in_memory", cfg.Store.InMemory,
	)
	return a, nil
}

// Close releases the store, telemetry and logger.
func (a *app) Close() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, a.shutdown(ctx))
		cancel()
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

// printOutputs prints each named component's output as JSON along with any
// runtime messages from its last evaluation.
func (a *app) printOutputs(out *ux.Printer, names []string) error {
	for _, name := range names {
		v, ok := a.exec.Output(name)
		text := "<none>"
		if ok {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode %s: %w", name, err)
			}
			text = string(data)
		}
		out.Field(name, text)
		for _, msg := range a.exec.Messages(name) {
			out.Warning(fmt.Sprintf("%s: %s", name, msg))
		}
	}
	return nil
}

// reportSolve prints the failures and aborts of a solve.
func reportSolve(out *ux.Printer, res *dag.Result) {
	for _, name := range res.Aborted {
		out.Warning(name + " aborted, previous output kept")
	}
	names := make([]string, 0, len(res.Errors))
	for name := range res.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out.Error(fmt.Sprintf("%s: %v", name, res.Errors[name]))
	}
}

// outputNames returns names, or every non-parameter component when names
// is empty.
func (a *app) outputNames(names []string) []string {
	if len(names) > 0 {
		return names
	}
	var out []string
	for _, name := range a.graph.DAG.Order() {
		switch a.graph.Kinds[name] {
		case config.KindValue, config.KindToggle, config.KindNumber:
			continue
		}
		out = append(out, name)
	}
	return out
}
