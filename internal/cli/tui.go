// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/molihua12345/KubeAgent/internal/config"
	uichat "github.com/molihua12345/KubeAgent/internal/ui/chat"
	"github.com/molihua12345/KubeAgent/internal/ui/styles"
)

func newTUICommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the full-screen chat (default)",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}
}

// runTUI runs the Bubble Tea program until the user quits. The config file,
// if there is one, is watched for theme and probe interval changes.
func runTUI(cmd *cobra.Command, opts *rootOptions) error {
	if !IsTTY() || !IsStdoutTTY() {
		return NewUsageError("the chat screen needs a terminal; use 'repl' or 'ask' instead")
	}

	a, err := newApp(cmd.ErrOrStderr(), opts, logToFile)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	model := uichat.New(uichat.Options{
		Facade:  a.facade,
		Theme:   styles.NewTheme(a.cfg.UI.Theme),
		Config:  a.cfg,
		Logger:  a.log,
		Context: ctx,
	})
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))

	if a.configPath != "" {
		if err := config.Watch(ctx, a.configPath, uichat.WatchConfig(p)); err != nil {
			a.log.Warn("config watch disabled", zap.String("path", a.configPath), zap.Error(err))
		}
	}

	a.log.Info("tui started", zap.String("backend", a.cfg.Backend.URL))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("chat screen: %w", err)
	}
	return nil
}
