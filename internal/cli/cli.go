// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Root command, global flags and Execute.

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// Version information, set at build time with -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// rootOptions holds the global flags shared by every command.
type rootOptions struct {
	configPath string
	backendURL string
	logLevel   string
}

// NewRootCommand builds the kubewizard-chat command tree. Running it with
// no subcommand starts the full-screen chat.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "kubewizard-chat",
		Short: "Chat with the KubeWizard Kubernetes assistant",
		Long: `kubewizard-chat talks to a KubeWizard backend. Replies stream in as they
are generated, conversations are kept as local sessions, and sessions can be
exported to JSON, Markdown or HTML.`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "configuration file (default ~/.kubewizard/config.toml)")
	flags.StringVar(&opts.backendURL, "backend", "", "backend base URL, e.g. http://127.0.0.1:5000")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Message: err.Error()}
	})

	root.AddCommand(
		newTUICommand(opts),
		newREPLCommand(opts),
		newAskCommand(opts),
		newHistoryCommand(opts),
		newHealthCommand(opts),
		newExportCommand(opts),
		newArchiveCommand(opts),
		newConfigCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command tree against os.Args and returns the process
// exit code.
func Execute() int {
	return run(NewRootCommand())
}

func run(root *cobra.Command) int {
	if err := root.Execute(); err != nil {
		var reply *replyError
		if !errors.As(err, &reply) {
			DisplayError(root.ErrOrStderr(), err)
		}
		return GetExitCode(err)
	}
	return ExitSuccess
}

// usageArgs turns positional argument failures into usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &UsageError{Message: fmt.Sprintf("%s: %v", cmd.CommandPath(), err)}
		}
		return nil
	}
}
