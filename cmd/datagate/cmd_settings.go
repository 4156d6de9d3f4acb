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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/datagate/pkg/logging"
	"github.com/AleutianAI/datagate/pkg/ux"
	"github.com/AleutianAI/datagate/pkg/validation"
	"github.com/AleutianAI/datagate/services/datagate/config"
	"github.com/AleutianAI/datagate/services/datagate/recorder"
	badgerstore "github.com/AleutianAI/datagate/services/datagate/storage/badger"
)

// settingNames maps CLI setting names to persisted keys.
var settingNames = map[string]string{
	"record-empty": recorder.SettingRecordEmpty,
}

func newSettingsCmd(opts *globalOptions) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or change persisted component settings",
	}

	settingsCmd.AddCommand(
		&cobra.Command{
			Use:   "get <component> <setting>",
			Short: "Print a persisted setting",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				component, key, err := settingArgs(args[0], args[1])
				if err != nil {
					return err
				}
				return withSettings(cmd, opts, func(store *badgerstore.SettingsStore, out *ux.Printer) error {
					v, found, err := store.GetBool(cmd.Context(), component, key)
					if err != nil {
						return err
					}
					text := "unset"
					if found {
						text = strconv.FormatBool(v)
					}
					out.Field(component+" "+args[1], text)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "set <component> <setting> <true|false>",
			Short: "Change a persisted setting",
			Long: `Change a persisted setting. Graphs loaded afterwards use the stored
value instead of the one in their graph file.`,
			Args: cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				component, key, err := settingArgs(args[0], args[1])
				if err != nil {
					return err
				}
				v, err := strconv.ParseBool(args[2])
				if err != nil {
					return fmt.Errorf("value %q: %w", args[2], err)
				}
				return withSettings(cmd, opts, func(store *badgerstore.SettingsStore, out *ux.Printer) error {
					if err := store.SetBool(cmd.Context(), component, key, v); err != nil {
						return err
					}
					out.Success(fmt.Sprintf("%s %s = %t", component, args[1], v))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "unset <component> <setting>",
			Short: "Remove a persisted setting",
			Long: `Remove a persisted setting. Graphs loaded afterwards fall back to the
value in their graph file.`,
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				component, key, err := settingArgs(args[0], args[1])
				if err != nil {
					return err
				}
				return withSettings(cmd, opts, func(store *badgerstore.SettingsStore, out *ux.Printer) error {
					if err := store.Delete(cmd.Context(), component, key); err != nil {
						return err
					}
					out.Success(fmt.Sprintf("%s %s unset", component, args[1]))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list <component>",
			Short: "Print every persisted setting of a component",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				component, err := validation.SanitizeName(args[0])
				if err != nil {
					return err
				}
				return withSettings(cmd, opts, func(store *badgerstore.SettingsStore, out *ux.Printer) error {
					keys, err := store.Keys(cmd.Context(), component)
					if err != nil {
						return err
					}
					if len(keys) == 0 {
						out.Field(component, "<none>")
						return nil
					}
					for _, key := range keys {
						v, _, err := store.GetBool(cmd.Context(), component, key)
						if err != nil {
							return err
						}
						out.Field(component+" "+settingName(key), strconv.FormatBool(v))
					}
					return nil
				})
			},
		},
	)
	return settingsCmd
}

// settingArgs validates a component argument and maps a setting name to
// its persisted key.
func settingArgs(component, setting string) (string, string, error) {
	component, err := validation.SanitizeName(component)
	if err != nil {
		return "", "", err
	}
	key, ok := settingNames[setting]
	if !ok {
		return "", "", fmt.Errorf("unknown setting %q (known: record-empty)", setting)
	}
	return component, key, nil
}

// settingName maps a persisted key back to its CLI name.
func settingName(key string) string {
	for name, k := range settingNames {
		if k == key {
			return name
		}
	}
	return key
}

// withSettings opens the store named by --store, or the default store.
func withSettings(cmd *cobra.Command, opts *globalOptions, fn func(*badgerstore.SettingsStore, *ux.Printer) error) (err error) {
	logger, err := newLogger(opts, logging.LevelWarn, false, "", cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logger.Close()

	path := opts.store
	if path == "" {
		path = config.DefaultStorePath
	}
	db, err := openStore(path, false, logger)
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(badgerstore.NewSettingsStore(db), ux.NewPrinter(cmd.OutOrStdout()))
}
