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
	"github.com/spf13/cobra"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	logLevel string
	logJSON  bool
	store    string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "datagate",
		Short: "Run component graphs of gates, passers and recorders",
		Long: `datagate evaluates graphs of data-flow components described in a
YAML file. Gates hold or release data, passers forward it, and recorders
keep a bounded history of snapshots.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error). Overrides the graph file")
	rootCmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().StringVar(&opts.store, "store", "", "Settings store directory. Overrides the graph file")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newWatchCmd(opts),
		newServeCmd(opts),
		newSettingsCmd(opts),
	)
	return rootCmd
}
