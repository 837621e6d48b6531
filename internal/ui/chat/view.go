// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/molihua12345/KubeAgent/internal/connectivity"
	"github.com/molihua12345/KubeAgent/internal/model"
	"github.com/molihua12345/KubeAgent/internal/ui/styles"
	"github.com/molihua12345/KubeAgent/internal/util"
)

// Fixed rows around the transcript: header, status line, input border and
// input line.
const chromeHeight = 4

const emptyTranscript = "No messages yet. Ask KubeWizard about pods, deployments or logs."

// =============================================================================
// LAYOUT
// =============================================================================

// resize recomputes widget sizes from the window size.
func (m *Model) resize() {
	if !m.ready {
		return
	}

	vpWidth := m.width - m.sidebarWidth()
	vpHeight := m.height - chromeHeight
	if m.showHelp {
		m.help.Width = m.width
		vpHeight -= lipgloss.Height(m.help.FullHelpView(m.keys.FullHelp()))
	}
	if vpHeight < 3 {
		vpHeight = 3
	}

	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight
	m.input.Width = contentWidth(m.width, 6)
	m.help.Width = m.width
	m.renderer = newReplyRenderer(m.cfg.UI.Renderer, m.theme, contentWidth(vpWidth, 2))
	m.refresh()
}

// sidebarWidth is zero when the sidebar is disabled or does not fit.
func (m Model) sidebarWidth() int {
	if m.cfg.UI.SidebarWidth <= 0 || !m.theme.GetLayoutMode().ShowSidebar() {
		return 0
	}
	return m.cfg.UI.SidebarWidth
}

// refresh re-reads the active session into the viewport. The view follows
// new output only if it was already at the bottom.
func (m *Model) refresh() {
	follow := m.viewport.AtBottom() || m.viewport.TotalLineCount() == 0
	m.viewport.SetContent(m.renderTranscript())
	if follow {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// RENDERING
// =============================================================================

func (m Model) renderChat() string {
	if !m.ready {
		return "\n  Starting KubeWizard..."
	}

	body := m.viewport.View()
	if w := m.sidebarWidth(); w > 0 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(w, m.viewport.Height), body)
	}

	parts := []string{m.renderHeader(), body, m.renderStatusLine(), m.renderInput()}
	if m.showHelp {
		parts = append(parts, m.help.FullHelpView(m.keys.FullHelp()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader() string {
	title := m.store.Active().Title
	left := m.theme.HeaderTitle.Render("KubeWizard") + "  " + title

	var right string
	switch m.monitor.State() {
	case connectivity.Up:
		right = m.theme.StatusOnline.Render("● online")
	case connectivity.Down:
		right = m.theme.StatusOffline.Render("● offline")
	default:
		right = m.theme.StatusPending.Render("○ connecting")
	}
	if m.state == StateStreaming {
		right = m.spinner.View() + " " + right
	}

	inner := m.width - 2
	gap := inner - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		left = util.TruncateWidth(left, inner-lipgloss.Width(right)-1)
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderSidebar(width, height int) string {
	inner := width - 4
	if inner < 4 {
		inner = 4
	}

	lines := []string{m.theme.SidebarTitle.Render("Chats"), ""}
	for i, meta := range m.store.List() {
		marker := "  "
		if meta.Active {
			marker = "* "
		}
		name := util.PadRight(util.TruncateWidth(marker+meta.Title, inner), inner)
		switch {
		case i == m.selected:
			name = m.theme.SessionItemSelected.Render(name)
		case meta.Active:
			name = m.theme.SessionItemActive.Render(name)
		default:
			name = m.theme.SessionItem.Render(name)
		}
		preview := m.theme.SessionPreview.Render(util.TruncateWidth("  "+meta.Preview, inner))
		lines = append(lines, name, preview)
	}

	return m.theme.Sidebar.
		Width(width - 2).
		Height(height - 2).
		Render(strings.Join(lines, "\n"))
}

// renderTranscript renders the active session plus the reply in flight.
func (m Model) renderTranscript() string {
	width := contentWidth(m.viewport.Width, 2)
	msgs := m.store.Messages(m.store.ActiveID())
	partial := m.showsPartial()

	if len(msgs) == 0 && !partial {
		return m.theme.Placeholder.Render(emptyTranscript)
	}

	blocks := make([]string, 0, len(msgs)+1)
	for _, msg := range msgs {
		blocks = append(blocks, m.renderMessage(msg, width))
	}
	if partial {
		label := m.theme.AssistantLabel.Render(model.RoleAssistant.DisplayName()) + " " + m.spinner.View()
		text := m.theme.Streaming.Render(wrapText(m.partial, width))
		blocks = append(blocks, label+"\n"+text)
	}
	return strings.Join(blocks, "\n\n")
}

func (m Model) renderMessage(msg model.Message, width int) string {
	var label string
	if msg.IsUser() {
		label = m.theme.UserLabel.Render(msg.Role.DisplayName())
	} else {
		label = m.theme.AssistantLabel.Render(msg.Role.DisplayName())
	}
	if !msg.Timestamp.IsZero() {
		label += " " + m.theme.Timestamp.Render(formatTimestamp(msg.Timestamp))
	}

	var body string
	switch {
	case msg.IsUser():
		body = m.theme.UserText.Render(wrapText(msg.Content, width))
	case msg.IsError:
		body = m.theme.ErrorText.Render(wrapText(msg.Content, contentWidth(width, 2)))
	default:
		body = m.renderer.render(msg.ID, msg.Content)
	}

	out := label + "\n" + body
	if stats := msg.Stats.String(); stats != "" {
		out += "\n" + m.theme.Stats.Render(stats)
	}
	return out
}

func (m Model) renderStatusLine() string {
	var line string
	if m.notice != nil {
		switch m.notice.Kind {
		case NoticeSuccess:
			line = styles.RenderSuccess(m.notice.Text)
		case NoticeWarning:
			line = styles.RenderWarning(m.notice.Text)
		case NoticeError:
			line = styles.RenderError(m.notice.Text)
		default:
			line = styles.RenderInfo(m.notice.Text)
		}
	} else {
		line = m.help.ShortHelpView(m.keys.ShortHelp())
	}
	return m.theme.StatusBar.Width(m.width).MaxHeight(1).Render(line)
}

func (m Model) renderInput() string {
	return m.theme.InputContainer.Width(m.width).Render(m.input.View())
}
