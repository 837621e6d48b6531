// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// =============================================================================
// STATE
// =============================================================================

// State is the connectivity state of the backend.
type State int32

const (
	// Unknown is the state before the first probe completes.
	Unknown State = iota
	Up
	Down
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "unknown"
	}
}

// ProbeFunc checks backend liveness. Nil means reachable.
type ProbeFunc func(ctx context.Context) error

// ChangeFunc is called on every transition, outside the monitor's lock.
type ChangeFunc func(prev, next State)

// Default timing.
const (
	DefaultInterval = 30 * time.Second
	DefaultTimeout  = 5 * time.Second
)

// Options configures a Monitor.
type Options struct {
	Interval time.Duration // time between probes
	Timeout  time.Duration // bound on a single probe
	Logger   *zap.Logger
}

// =============================================================================
// MONITOR
// =============================================================================

// Monitor runs periodic probes and reports state transitions.
type Monitor struct {
	probe    ProbeFunc
	timeout  time.Duration
	interval atomic.Int64 // nanoseconds; changed live by SetInterval
	log      *zap.Logger

	state   atomic.Int32
	reset   chan struct{}
	probeMu sync.Mutex // serializes probes

	mu        sync.Mutex
	observers []ChangeFunc
	lastErr   error
	lastProbe time.Time
}

// NewMonitor creates a Monitor in the Unknown state.
func NewMonitor(probe ProbeFunc, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	m := &Monitor{
		probe:   probe,
		timeout: opts.Timeout,
		log:     opts.Logger.Named("connectivity"),
		reset:   make(chan struct{}, 1),
	}
	m.interval.Store(int64(opts.Interval))
	return m
}

// State returns the current state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// IsUp reports whether the last probe succeeded.
func (m *Monitor) IsUp() bool {
	return m.State() == Up
}

// Interval returns the current probe interval.
func (m *Monitor) Interval() time.Duration {
	return time.Duration(m.interval.Load())
}

// SetInterval changes the probe interval. A running loop picks it up on
// its next tick.
func (m *Monitor) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	m.interval.Store(int64(d))
	select {
	case m.reset <- struct{}{}:
	default:
	}
}

// LastError returns the error of the most recent failed probe, or the
// reason passed to ForceDown.
func (m *Monitor) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// LastProbe returns when the most recent probe finished.
func (m *Monitor) LastProbe() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastProbe
}

// OnChange registers an observer for state transitions.
func (m *Monitor) OnChange(fn ChangeFunc) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// ProbeNow runs one probe immediately and returns the resulting state.
func (m *Monitor) ProbeNow(ctx context.Context) State {
	m.probeMu.Lock()
	defer m.probeMu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.probe(pctx)
	cancel()

	m.mu.Lock()
	m.lastProbe = time.Now()
	m.lastErr = err
	m.mu.Unlock()

	next := Up
	if err != nil {
		next = Down
		m.log.Debug("probe failed", zap.Error(err))
	}
	m.transition(next)
	return next
}

// ForceDown marks the backend unreachable without probing. The next
// successful probe brings it back.
func (m *Monitor) ForceDown(reason error) {
	m.mu.Lock()
	m.lastErr = reason
	m.mu.Unlock()
	m.transition(Down)
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.ProbeNow(ctx)
	m.loop(ctx)
}

// RunAfterInitial starts the periodic loop without an immediate probe.
// Used when the caller already ran the startup probe itself.
func (m *Monitor) RunAfterInitial(ctx context.Context) {
	m.loop(ctx)
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-m.reset:
			ticker.Reset(m.Interval())

		case <-ticker.C:
			m.ProbeNow(ctx)
		}
	}
}

// transition stores next and notifies observers if the state changed.
func (m *Monitor) transition(next State) {
	prev := State(m.state.Swap(int32(next)))
	if prev == next {
		return
	}

	m.log.Info("backend connectivity changed",
		zap.Stringer("from", prev),
		zap.Stringer("to", next))

	m.mu.Lock()
	observers := make([]ChangeFunc, len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(prev, next)
	}
}

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// StateMsg reports the outcome of a probe to a Bubble Tea program.
type StateMsg struct {
	State State
	Err   error
}

// TickMsg asks the program to run the next probe.
type TickMsg time.Time

// TickCmd schedules the next probe after interval.
func TickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// ProbeCmd runs a probe off the update loop and returns a StateMsg.
func (m *Monitor) ProbeCmd(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		state := m.ProbeNow(ctx)
		return StateMsg{State: state, Err: m.LastError()}
	}
}
