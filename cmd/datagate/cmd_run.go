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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/datagate/pkg/ux"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <graph.yaml>",
		Short: "Solve a graph once and play its scripted steps",
		Long: `Builds the graph, solves it, then applies each step in the file:
parameters are set, the graph is solved and the listed outputs are printed
as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, opts, args[0])
		},
	}
}

func runGraph(cmd *cobra.Command, opts *globalOptions, path string) (err error) {
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

	out := ux.NewPrinter(cmd.OutOrStdout())
	out.Title(a.cfg.Name)

	res, err := a.exec.Solve(ctx)
	if err != nil {
		return fmt.Errorf("initial solve: %w", err)
	}
	reportSolve(out, res)

	failed := len(res.Errors)
	for i, step := range a.cfg.Steps {
		title := fmt.Sprintf("step %d", i+1)
		if step.Name != "" {
			title += ": " + step.Name
		}
		out.Title(title)

		res, err := a.graph.ApplyStep(ctx, a.exec, step, a.settings)
		if err != nil {
			return fmt.Errorf("%s: %w", title, err)
		}
		reportSolve(out, res)
		failed += len(res.Errors)

		if err := a.printOutputs(out, step.Print); err != nil {
			return err
		}
	}

	if len(a.cfg.Steps) == 0 {
		if err := a.printOutputs(out, a.outputNames(nil)); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d node evaluation(s) failed", failed)
	}
	out.Success(fmt.Sprintf("%d step(s) applied", len(a.cfg.Steps)))
	return nil
}
