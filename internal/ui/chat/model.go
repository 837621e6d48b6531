// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	facade "github.com/molihua12345/KubeAgent/internal/chat"
	"github.com/molihua12345/KubeAgent/internal/config"
	"github.com/molihua12345/KubeAgent/internal/connectivity"
	"github.com/molihua12345/KubeAgent/internal/session"
	"github.com/molihua12345/KubeAgent/internal/ui/styles"
)

// =============================================================================
// STATE
// =============================================================================

// State is the coarse phase of the interface.
type State int

const (
	// StateConnecting is the phase before the first probe and history
	// replay have finished.
	StateConnecting State = iota
	StateReady
	StateStreaming
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// noticeTTL is how long a notice stays on screen.
const noticeTTL = 5 * time.Second

const checkingNotice = "Checking backend..."

// =============================================================================
// MODEL
// =============================================================================

// Options configures a Model.
type Options struct {
	Facade *facade.Facade
	Theme  *styles.Theme
	Config *config.Config
	Logger *zap.Logger

	// Context bounds every command the model starts. Defaults to Background.
	Context context.Context
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	facade  *facade.Facade
	store   *session.Store
	monitor *connectivity.Monitor
	theme   *styles.Theme
	cfg     *config.Config
	log     *zap.Logger
	ctx     context.Context

	keys     KeyMap
	help     help.Model
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *replyRenderer

	state    State
	width    int
	height   int
	ready    bool
	showHelp bool
	selected int
	notice   *Notice

	// Exchange in flight.
	buffer    *StreamingBuffer
	partial   string
	origin    string
	cancelMgr *cancelManager

	// events carries store and connectivity changes into the update loop.
	events      chan tea.Msg
	unsubscribe func()
}

// New creates the chat model. The facade's store and monitor are observed
// for the lifetime of the model; call Close when the program exits.
func New(opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Theme == nil {
		opts.Theme = styles.NewTheme(opts.Config.UI.Theme)
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}

	input := textinput.New()
	input.Placeholder = "Ask KubeWizard about your cluster..."
	input.Prompt = "> "
	input.PromptStyle = opts.Theme.InputPrompt
	input.PlaceholderStyle = opts.Theme.InputPlaceholder
	input.CharLimit = 4000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = opts.Theme.Spinner

	m := Model{
		facade:    opts.Facade,
		store:     opts.Facade.Store(),
		monitor:   opts.Facade.Monitor(),
		theme:     opts.Theme,
		cfg:       opts.Config,
		log:       opts.Logger.Named("tui"),
		ctx:       opts.Context,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		input:     input,
		viewport:  viewport.New(80, 20),
		spinner:   sp,
		state:     StateConnecting,
		buffer:    NewStreamingBuffer(),
		cancelMgr: newCancelManager(),
		events:    make(chan tea.Msg, 16),
	}
	m.renderer = newReplyRenderer(m.cfg.UI.Renderer, m.theme, 80)

	events := m.events
	m.unsubscribe = m.store.Subscribe(func(ev session.Event) {
		post(events, StoreEventMsg{Event: ev})
	})
	monitor := m.monitor
	monitor.OnChange(func(prev, next connectivity.State) {
		post(events, ConnectivityChangedMsg{Prev: prev, Next: next, Err: monitor.LastError()})
	})
	return m
}

// post delivers msg without blocking. Every message triggers a full
// re-read of the store, so a dropped message is covered by the next one.
func post(ch chan<- tea.Msg, msg tea.Msg) {
	select {
	case ch <- msg:
	default:
	}
}

// Close cancels any exchange in flight and stops observing the store.
func (m Model) Close() {
	m.cancelMgr.cancel()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the current phase.
func (m Model) State() State {
	return m.state
}

// Notice returns the notice on screen, if any.
func (m Model) Notice() *Notice {
	return m.notice
}

// Input returns the current input text.
func (m Model) Input() string {
	return m.input.Value()
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the bootstrap and the event listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.bootstrapCmd(),
		waitForEvent(m.events),
	)
}

// View renders the chat screen.
func (m Model) View() string {
	return m.renderChat()
}

// =============================================================================
// HELPERS
// =============================================================================

// setNotice shows text and schedules its expiry.
func (m *Model) setNotice(kind NoticeKind, text string) tea.Cmd {
	n := &Notice{Kind: kind, Text: text, At: time.Now()}
	m.notice = n
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg {
		return NoticeExpireMsg{At: n.At}
	})
}

// sessionList returns the sidebar rows and clamps the selection.
func (m *Model) sessionList() []session.Meta {
	list := m.store.List()
	if m.selected >= len(list) {
		m.selected = len(list) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
	return list
}

// selectActive moves the sidebar selection to the active session.
func (m *Model) selectActive() {
	for i, meta := range m.store.List() {
		if meta.Active {
			m.selected = i
			return
		}
	}
}

// showsPartial reports whether the reply in flight belongs on the active
// session's transcript. It will commit to the active session unless
// replies are pinned to the session they were sent from.
func (m Model) showsPartial() bool {
	if m.state != StateStreaming {
		return false
	}
	if m.cfg.Session.PinStreamToOrigin {
		return m.store.ActiveID() == m.origin
	}
	return true
}
