// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Show and edit the configuration file.

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/molihua12345/KubeAgent/internal/config"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or edit the configuration",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newConfigShowCommand(opts),
		newConfigPathCommand(opts),
		newConfigSetCommand(opts),
		newConfigResetCommand(opts),
	)
	return cmd
}

// editPath is the file config set and config reset write: --config, else
// the existing default file, else the default TOML file.
func (o *rootOptions) editPath() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	if p := defaultConfigFile(); p != "" {
		return p, nil
	}
	return config.ConfigPathTOML()
}

func newConfigShowCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration, including flags and environment",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			return config.WriteTOML(w, cfg)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newConfigPathCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.editPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newConfigSetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting in the configuration file",
		Long: "Change one setting in the configuration file. Keys:\n  " +
			strings.Join(config.Keys(), "\n  "),
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.editPath()
			if err != nil {
				return err
			}

			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				if cfg, err = config.ReadFile(path); err != nil {
					return err
				}
			}

			if err := cfg.Set(args[0], args[1]); err != nil {
				if errors.Is(err, config.ErrUnknownKey) {
					return NewUsageError("%v (see 'config set --help')", err)
				}
				return NewUsageError("%v", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid settings: %w", err)
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", strings.ToLower(strings.TrimSpace(args[0])), strings.TrimSpace(args[1]))
			fmt.Fprintln(cmd.ErrOrStderr(), DimStyle.Render("Saved "+path))
			return nil
		},
	}
}

func newConfigResetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Write the default configuration to the configuration file",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.editPath()
			if err != nil {
				return err
			}
			if err := config.Save(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
