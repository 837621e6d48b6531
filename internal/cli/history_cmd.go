// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/molihua12345/KubeAgent/internal/backend"
	"github.com/molihua12345/KubeAgent/internal/model"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the conversation stored on the backend",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.ErrOrStderr(), opts, logToStderr)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.client.History(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				if entries == nil {
					entries = []backend.HistoryEntry{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			newPrinter(cmd.OutOrStdout()).transcript(historyMessages(entries))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw history entries as JSON")
	return cmd
}

// historyMessages converts backend entries to untimed messages; the
// backend does not record when a turn happened.
func historyMessages(entries []backend.HistoryEntry) []model.Message {
	msgs := make([]model.Message, len(entries))
	for i, e := range entries {
		msg := model.NewMessage(model.RoleFromIsUser(e.IsUser), e.Content)
		msg.Timestamp = time.Time{}
		msgs[i] = msg
	}
	return msgs
}
