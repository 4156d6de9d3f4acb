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
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/datagate/pkg/ux"
	"github.com/AleutianAI/datagate/services/datagate/config"
	"github.com/AleutianAI/datagate/services/datagate/telemetry"
	"github.com/AleutianAI/datagate/services/datagate/watch"
)

type watchOptions struct {
	dataFile string
	node     string
	print    []string
	debounce time.Duration
}

func newWatchCmd(opts *globalOptions) *cobra.Command {
	wo := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch <graph.yaml>",
		Short: "Re-solve a graph whenever a data file changes",
		Long: `Loads the data file into a value component, solves, and repeats each
time the file is saved. The file holds a structure as JSON, for example
{"{0}": [1, 2]}, or a bare array.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, wo, args[0])
		},
	}
	cmd.Flags().StringVar(&wo.dataFile, "data", "", "JSON file to watch (required)")
	cmd.Flags().StringVar(&wo.node, "node", "", "Value component the file feeds (required)")
	cmd.Flags().StringSliceVar(&wo.print, "print", nil, "Components to print after each solve (default: all non-parameters)")
	cmd.Flags().DurationVar(&wo.debounce, "debounce", 100*time.Millisecond, "Quiet period before a change is applied")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("node")
	return cmd
}

func runWatch(cmd *cobra.Command, opts *globalOptions, wo *watchOptions, path string) (err error) {
	ctx := cmd.Context()
	a, err := openApp(ctx, opts, path, cmd.ErrOrStderr(), nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if kind := a.graph.Kinds[wo.node]; kind != config.KindValue {
		return fmt.Errorf("--node %q must name a value component", wo.node)
	}

	metrics, err := telemetry.NewMetrics(otel.Meter("datagate.cli"))
	if err != nil {
		return err
	}

	out := ux.NewPrinter(cmd.OutOrStdout())
	names := a.outputNames(wo.print)
	logger := a.logger.Slog().With(slog.String("file", wo.dataFile), slog.String("node", wo.node))

	apply := func(ctx context.Context) {
		start := time.Now()
		status := "ok"
		if err := a.loadDataFile(ctx, out, wo.dataFile, wo.node, names); err != nil {
			status = "error"
			logger.Warn("change not applied", slog.String("error", err.Error()))
			out.Error(err.Error())
		}
		metrics.RecordRequest(ctx, "watch", status, time.Since(start).Seconds())
	}

	w, err := watch.New([]string{wo.dataFile}, func(ctx context.Context, changes []watch.Change) {
		for _, c := range changes {
			if c.Op == watch.OpRemove || c.Op == watch.OpRename {
				logger.Info("data file moved away, waiting for it to return")
				return
			}
		}
		apply(ctx)
	}, &watch.Options{Debounce: wo.debounce, Logger: a.logger.Slog()})
	if err != nil {
		return err
	}
	defer w.Stop()

	apply(ctx)
	logger.Info("watching for changes")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	if h := telemetry.MetricsHandler(); h != nil && a.cfg.Telemetry.Metrics == telemetry.ExporterPrometheus {
		addr := fmt.Sprintf(":%d", a.cfg.Telemetry.PrometheusPort)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			w.Stop()
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", h)
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			return serveUntilDone(gctx, srv, ln, a.logger)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadDataFile sets node from the file, solves and prints names.
func (a *app) loadDataFile(ctx context.Context, out *ux.Printer, file, node string, names []string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	v, err := config.ParseValue(config.KindValue, data)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	if err := a.exec.Set(node, v); err != nil {
		return err
	}
	res, err := a.exec.Solve(ctx)
	if err != nil {
		return err
	}

	out.Title(fmt.Sprintf("%s (%s)", file, time.Now().Format(time.TimeOnly)))
	reportSolve(out, res)
	return a.printOutputs(out, names)
}
