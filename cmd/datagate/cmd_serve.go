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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/datagate/pkg/logging"
	"github.com/AleutianAI/datagate/pkg/ux"
	"github.com/AleutianAI/datagate/services/datagate/api"
	"github.com/AleutianAI/datagate/services/datagate/config"
	"github.com/AleutianAI/datagate/services/datagate/telemetry"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve <graph.yaml>",
		Short: "Serve a graph over HTTP",
		Long: `Serves component reads and writes over HTTP:

  GET  /v1/components/:name               last output of a component
  POST /v1/components/:name               set a parameter and solve
  PUT  /v1/components/:name/record_empty  change a recorder setting
  GET  /metrics                           Prometheus metrics`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			return runServe(cmd, opts, ln, args[0])
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}

// runServe serves on ln until the command context is cancelled.
func runServe(cmd *cobra.Command, opts *globalOptions, ln net.Listener, path string) (err error) {
	ctx := cmd.Context()
	a, err := openApp(ctx, opts, path, cmd.ErrOrStderr(), func(c *config.Config) {
		if c.Telemetry.Metrics == telemetry.ExporterNone {
			c.Telemetry.Metrics = telemetry.ExporterPrometheus
		}
	})
	if err != nil {
		ln.Close()
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if a.logger.Slog().Enabled(ctx, slog.LevelDebug) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if _, err := a.exec.Solve(ctx); err != nil {
		ln.Close()
		return fmt.Errorf("initial solve: %w", err)
	}

	meter := otel.Meter("datagate.api")
	metrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		ln.Close()
		return err
	}
	reg, err := metrics.RegisterRecorderDepth(meter, func() map[string]int {
		var depths map[string]int
		a.exec.Inspect(func() { depths = a.graph.RecorderDepths() })
		return depths
	})
	if err != nil {
		ln.Close()
		return err
	}
	defer reg.Unregister()

	handlers := api.NewHandlers(a.graph, a.exec, a.settings, metrics, a.logger.Slog())
	srv := &http.Server{
		Handler:           api.NewRouter(a.cfg.Name, handlers, telemetry.MetricsHandler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ux.NewPrinter(cmd.OutOrStdout()).Box(fmt.Sprintf("datagate serving %s on %s", a.cfg.Name, ln.Addr()))
	a.logger.Info("server started", "address", ln.Addr().String(), "graph", a.cfg.Name)

	return serveUntilDone(ctx, srv, ln, a.logger)
}

// serveUntilDone runs srv on ln and shuts it down when ctx ends.
func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener, logger *logging.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
