// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	facade "github.com/molihua12345/KubeAgent/internal/chat"
	"github.com/molihua12345/KubeAgent/internal/config"
	"github.com/molihua12345/KubeAgent/internal/connectivity"
	"github.com/molihua12345/KubeAgent/internal/ui/styles"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case BootstrapDoneMsg:
		return m.handleBootstrapDone(msg)

	case StoreEventMsg:
		m.refresh()
		return m, waitForEvent(m.events)

	case ConnectivityChangedMsg:
		return m.handleConnectivityChanged(msg)

	case connectivity.StateMsg:
		// Result of a probe command; transitions arrive separately.
		m.refresh()
		if msg.State == connectivity.Down && m.notice != nil && m.notice.Text == checkingNotice {
			return m, m.setNotice(NoticeWarning, "KubeWizard backend is still offline")
		}
		return m, nil

	case connectivity.TickMsg:
		return m, tea.Batch(
			m.monitor.ProbeCmd(m.ctx),
			connectivity.TickCmd(m.monitor.Interval()),
		)

	case StreamTickMsg:
		return m.handleStreamTick()

	case SendDoneMsg:
		return m.handleSendDone(msg)

	case ClearDoneMsg:
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			return m, m.setNotice(NoticeError, "Clear failed: "+msg.Err.Error())
		}
		return m, m.setNotice(NoticeSuccess, "Conversation cleared")

	case ExportDoneMsg:
		return m.handleExportDone(msg)

	case ConfigReloadedMsg:
		return m.handleConfigReloaded(msg)

	case NoticeExpireMsg:
		if m.notice != nil && m.notice.At.Equal(msg.At) {
			m.notice = nil
		}
		return m, nil

	case spinner.TickMsg:
		if m.state == StateReady {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.showsPartial() {
			m.refresh()
		}
		return m, cmd

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancelMgr.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.Back):
		if m.showHelp {
			m.showHelp = false
			m.resize()
		}
		return m, nil

	case key.Matches(msg, m.keys.NewSession):
		if _, err := m.facade.NewSession(); err != nil {
			return m, m.setNotice(NoticeWarning, "Cannot start a new chat: "+err.Error())
		}
		m.selectActive()
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		if m.facade.Busy() {
			return m, m.setNotice(NoticeWarning, "Wait for the reply to finish before clearing")
		}
		if !m.facade.Online() {
			return m, m.setNotice(NoticeWarning, "Backend is offline")
		}
		return m, m.clearCmd()

	case key.Matches(msg, m.keys.NextSession):
		m.moveSelection(1)
		return m, nil

	case key.Matches(msg, m.keys.PrevSession):
		m.moveSelection(-1)
		return m, nil

	case key.Matches(msg, m.keys.OpenSession):
		return m.openSelected()

	case key.Matches(msg, m.keys.DeleteChat):
		return m.deleteSelected()

	case key.Matches(msg, m.keys.Export):
		return m, tea.Batch(
			m.setNotice(NoticeInfo, "Exporting..."),
			m.exportCmd(m.store.ActiveID()),
		)

	case key.Matches(msg, m.keys.Retry):
		return m, tea.Batch(
			m.setNotice(NoticeInfo, checkingNotice),
			m.monitor.ProbeCmd(m.ctx),
		)

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.resize()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the input line. The guards are checked here as well as in
// the facade so that a refused message stays in the input box.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if m.state == StateStreaming {
		return m, m.setNotice(NoticeWarning, "A reply is still streaming")
	}
	if m.facade.Busy() {
		return m, m.setNotice(NoticeWarning, "Wait for the current request to finish")
	}
	if !m.facade.Online() {
		return m, m.setNotice(NoticeWarning, "Backend is offline; message not sent (Ctrl+R to retry)")
	}

	m.input.Reset()
	m.state = StateStreaming
	m.buffer.Reset()
	m.partial = ""
	m.origin = m.store.ActiveID()
	m.refresh()

	return m, tea.Batch(m.sendCmd(text), streamTickCmd(), m.spinner.Tick)
}

func (m *Model) moveSelection(delta int) {
	list := m.sessionList()
	if len(list) == 0 {
		return
	}
	m.selected = (m.selected + delta + len(list)) % len(list)
}

func (m Model) openSelected() (tea.Model, tea.Cmd) {
	list := m.sessionList()
	if len(list) == 0 {
		return m, nil
	}
	if err := m.facade.SwitchTo(list[m.selected].ID); err != nil {
		return m, m.setNotice(NoticeError, err.Error())
	}
	m.refresh()
	return m, nil
}

func (m Model) deleteSelected() (tea.Model, tea.Cmd) {
	list := m.sessionList()
	if len(list) == 0 {
		return m, nil
	}
	target := list[m.selected]
	if m.state == StateStreaming && target.ID == m.origin {
		return m, m.setNotice(NoticeWarning, "Cannot delete a chat while its reply is streaming")
	}
	if err := m.facade.DeleteSession(target.ID); err != nil {
		return m, m.setNotice(NoticeError, err.Error())
	}
	m.selectActive()
	m.refresh()
	return m, m.setNotice(NoticeInfo, "Deleted "+target.Title)
}

// =============================================================================
// MESSAGE HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)
	m.ready = true
	m.resize()
	return m, nil
}

func (m Model) handleBootstrapDone(msg BootstrapDoneMsg) (tea.Model, tea.Cmd) {
	if m.state == StateConnecting {
		m.state = StateReady
	}
	m.selectActive()
	m.refresh()

	cmds := []tea.Cmd{connectivity.TickCmd(m.monitor.Interval())}
	switch {
	case msg.Err != nil:
		cmds = append(cmds, m.setNotice(NoticeError, "Startup failed: "+msg.Err.Error()))
	case !m.monitor.IsUp():
		cmds = append(cmds, m.setNotice(NoticeWarning, "KubeWizard backend is offline (Ctrl+R to retry)"))
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleConnectivityChanged(msg ConnectivityChangedMsg) (tea.Model, tea.Cmd) {
	m.refresh()
	cmds := []tea.Cmd{waitForEvent(m.events)}

	switch {
	case msg.Next == connectivity.Up && msg.Prev == connectivity.Down:
		cmds = append(cmds, m.setNotice(NoticeSuccess, "Reconnected to KubeWizard"))
	case msg.Next == connectivity.Down && msg.Prev == connectivity.Up:
		text := "Lost connection to KubeWizard"
		if msg.Err != nil {
			text += ": " + msg.Err.Error()
		}
		cmds = append(cmds, m.setNotice(NoticeWarning, text))
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleStreamTick() (tea.Model, tea.Cmd) {
	if m.state != StateStreaming {
		return m, nil
	}
	if text, ok := m.buffer.Flush(); ok {
		m.partial += text
		m.refresh()
	}
	return m, streamTickCmd()
}

func (m Model) handleSendDone(msg SendDoneMsg) (tea.Model, tea.Cmd) {
	m.cancelMgr.cancel()
	m.buffer.Reset()
	m.partial = ""
	m.origin = ""
	m.state = StateReady
	m.refresh()

	switch {
	case msg.Err == nil:
		return m, nil
	case facade.IsGuard(msg.Err):
		return m, m.setNotice(NoticeWarning, msg.Err.Error())
	default:
		// The failure is already in the transcript.
		m.log.Debug("exchange failed", zap.Error(msg.Err))
		return m, nil
	}
}

// handleConfigReloaded applies the settings that can change at runtime:
// theme, renderer and probe interval.
func (m Model) handleConfigReloaded(msg ConfigReloadedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		return m, m.setNotice(NoticeWarning, "Config reload failed: "+msg.Err.Error())
	}
	next := msg.Config
	if next == nil {
		return m, nil
	}

	if next.UI.Theme != m.cfg.UI.Theme {
		theme := styles.NewTheme(next.UI.Theme)
		theme.SetSize(m.width, m.height)
		m.theme = theme
		m.input.PromptStyle = theme.InputPrompt
		m.input.PlaceholderStyle = theme.InputPlaceholder
		m.spinner.Style = theme.Spinner
	}
	if next.Backend.ProbeInterval.Duration != m.monitor.Interval() {
		m.monitor.SetInterval(next.Backend.ProbeInterval.Duration)
	}
	m.cfg = next
	m.resize()
	m.log.Info("configuration reloaded")
	return m, m.setNotice(NoticeInfo, "Configuration reloaded")
}

// =============================================================================
// COMMANDS
// =============================================================================

// waitForEvent blocks until the store or monitor reports a change.
func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m Model) bootstrapCmd() tea.Cmd {
	f, ctx := m.facade, m.ctx
	return func() tea.Msg {
		return BootstrapDoneMsg{Err: f.Bootstrap(ctx)}
	}
}

// sendCmd runs one exchange. Deltas go to the streaming buffer; the final
// message reaches the screen through the store.
func (m Model) sendCmd(text string) tea.Cmd {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if d := m.cfg.Backend.StreamTimeout.Duration; d > 0 {
		ctx, cancel = context.WithTimeout(m.ctx, d)
	} else {
		ctx, cancel = context.WithCancel(m.ctx)
	}
	m.cancelMgr.set(cancel)

	f, sink := m.facade, bufferSink{buf: m.buffer}
	return func() tea.Msg {
		defer cancel()
		return SendDoneMsg{Err: f.Send(ctx, text, sink)}
	}
}

func (m Model) clearCmd() tea.Cmd {
	f, ctx := m.facade, m.ctx
	return func() tea.Msg {
		return ClearDoneMsg{Err: f.Clear(ctx)}
	}
}

// WatchConfig returns a config reload callback that forwards results to
// the running program.
func WatchConfig(p *tea.Program) config.ReloadFunc {
	return func(cfg *config.Config, err error) {
		p.Send(ConfigReloadedMsg{Config: cfg, Err: err})
	}
}
