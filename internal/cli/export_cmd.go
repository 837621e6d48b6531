// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/molihua12345/KubeAgent/internal/export"
	"github.com/molihua12345/KubeAgent/internal/util"
)

type exportOptions struct {
	format string
	output string
	title  string
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	eo := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the backend conversation to a file",
		Long: `Export replays the conversation stored on the backend and writes it as
JSON, Markdown or HTML. With no --output the file is created in the
configured export directory; "-" writes to stdout; an existing directory
receives a generated file name; any other path is written as given.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.ErrOrStderr(), opts, logToStderr)
			if err != nil {
				return err
			}
			defer a.Close()
			return runExport(cmd, a, eo)
		},
	}
	cmd.Flags().StringVarP(&eo.format, "format", "f", "", "json, md or html (default from config)")
	cmd.Flags().StringVarP(&eo.output, "output", "o", "", `output file or directory, "-" for stdout`)
	cmd.Flags().StringVar(&eo.title, "title", "", "title recorded in the export")
	return cmd
}

func runExport(cmd *cobra.Command, a *app, eo *exportOptions) error {
	name := eo.format
	if name == "" {
		name = a.cfg.Export.Format
	}
	fmtName, err := export.ParseFormat(name)
	if err != nil {
		return &UsageError{Message: err.Error()}
	}

	f := a.facade
	n, err := f.LoadHistory(cmd.Context())
	if err != nil {
		return err
	}
	id := f.Store().ActiveID()
	if eo.title != "" {
		if err := f.Store().Rename(id, eo.title); err != nil {
			return err
		}
	}
	out := newPrinter(cmd.ErrOrStderr())

	switch {
	case eo.output == "-":
		data, err := f.Export(id, fmtName)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err

	case eo.output == "" || isDir(eo.output):
		path, err := f.ExportToFile(cmd.Context(), id, fmtName, eo.output)
		if err != nil {
			return err
		}
		out.success("Exported %d messages to %s", n, path)
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil

	default:
		data, err := f.Export(id, fmtName)
		if err != nil {
			return err
		}
		if err := util.AtomicWriteFile(eo.output, data, 0600); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		out.success("Exported %d messages to %s", n, eo.output)
		fmt.Fprintln(cmd.OutOrStdout(), eo.output)
		return nil
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
