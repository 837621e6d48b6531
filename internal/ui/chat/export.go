// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/molihua12345/KubeAgent/internal/config"
	"github.com/molihua12345/KubeAgent/internal/export"
)

// =============================================================================
// EXPORT HANDLERS
// =============================================================================

// exportFormat returns the configured export format, JSON when unset or
// unknown.
func exportFormat(cfg *config.Config) export.Format {
	f, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return export.FormatJSON
	}
	return f
}

// exportCmd writes a session to the configured output directory. The
// facade also archives the snapshot when an archive is configured.
func (m Model) exportCmd(id string) tea.Cmd {
	f, ctx := m.facade, m.ctx
	format := exportFormat(m.cfg)
	return func() tea.Msg {
		path, err := f.ExportToFile(ctx, id, format, "")
		return ExportDoneMsg{Path: path, Err: err}
	}
}

func (m Model) handleExportDone(msg ExportDoneMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		return m, m.setNotice(NoticeError, "Export failed: "+msg.Err.Error())
	}
	return m, m.setNotice(NoticeSuccess, "Exported to "+msg.Path)
}
