// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// archive_cmd.go - Inspect and maintain the local archive of exports.

package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/molihua12345/KubeAgent/internal/archive"
	"github.com/molihua12345/KubeAgent/internal/export"
)

func newArchiveCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Browse exported chats kept in the local archive",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newArchiveListCommand(opts),
		newArchiveShowCommand(opts),
		newArchiveImportCommand(opts),
		newArchiveDeleteCommand(opts),
	)
	return cmd
}

// withArchive opens the app and hands its archive to fn.
func withArchive(cmd *cobra.Command, opts *rootOptions, fn func(*app, *archive.Archive) error) error {
	a, err := newApp(cmd.ErrOrStderr(), opts, logToStderr)
	if err != nil {
		return err
	}
	defer a.Close()
	arch, err := a.requireArchive()
	if err != nil {
		return err
	}
	return fn(a, arch)
}

func parseEntryID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewUsageError("invalid archive entry ID %q", arg)
	}
	return id, nil
}

func newArchiveListCommand(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived exports, newest first",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, opts, func(_ *app, arch *archive.Archive) error {
				entries, err := arch.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if asJSON {
					if entries == nil {
						entries = []archive.Entry{}
					}
					enc := json.NewEncoder(w)
					enc.SetIndent("", "  ")
					return enc.Encode(entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(w, DimStyle.Render("The archive is empty."))
					return nil
				}
				for _, e := range entries {
					fmt.Fprintf(w, "%4d  %s  %-20s %3d msgs  %s\n",
						e.ID,
						e.ArchivedAt.Local().Format("2006-01-02 15:04"),
						e.Title,
						e.MessageCount,
						DimStyle.Render(e.Preview))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to list, 0 for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func newArchiveShowCommand(opts *rootOptions) *cobra.Command {
	var formatName string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one archived export",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntryID(args[0])
			if err != nil {
				return err
			}
			return withArchive(cmd, opts, func(a *app, arch *archive.Archive) error {
				snap, err := arch.Load(cmd.Context(), id)
				if err != nil {
					return err
				}
				if formatName == "" {
					p := newPrinter(cmd.OutOrStdout())
					fmt.Fprintln(p.w, p.style(snap.Title, TitleStyle.Render))
					fmt.Fprintln(p.w, RenderSeparator())
					p.transcript(snap.Messages)
					return nil
				}
				fmtName, err := export.ParseFormat(formatName)
				if err != nil {
					return &UsageError{Message: err.Error()}
				}
				exportOpts := export.DefaultOptions()
				exportOpts.Theme = a.cfg.UI.Theme
				exp, err := export.New(fmtName, exportOpts)
				if err != nil {
					return err
				}
				data, err := exp.Export(snap)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&formatName, "format", "f", "", "print as json, md or html instead of a transcript")
	return cmd
}

func newArchiveImportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Add a JSON export file to the archive",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := export.ReadFile(args[0])
			if err != nil {
				return NewCommandError("archive", "import", "could not read export", err)
			}
			return withArchive(cmd, opts, func(_ *app, arch *archive.Archive) error {
				id, err := arch.Save(cmd.Context(), snap)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Archived %d messages as entry %d\n", len(snap.Messages), id)
				return nil
			})
		},
	}
}

func newArchiveDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove an entry from the archive",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntryID(args[0])
			if err != nil {
				return err
			}
			return withArchive(cmd, opts, func(_ *app, arch *archive.Archive) error {
				if err := arch.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted entry %d\n", id)
				return nil
			})
		},
	}
}
