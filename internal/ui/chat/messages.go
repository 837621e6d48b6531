// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/molihua12345/KubeAgent/internal/config"
	"github.com/molihua12345/KubeAgent/internal/connectivity"
	"github.com/molihua12345/KubeAgent/internal/session"
)

// =============================================================================
// LIFECYCLE MESSAGES
// =============================================================================

// BootstrapDoneMsg reports the end of the startup probe and history replay.
type BootstrapDoneMsg struct {
	Err error
}

// ConfigReloadedMsg carries a configuration that changed on disk.
type ConfigReloadedMsg struct {
	Config *config.Config
	Err    error
}

// =============================================================================
// EXCHANGE MESSAGES
// =============================================================================

// StreamTickMsg drives the streaming buffer drain.
type StreamTickMsg struct {
	Time time.Time
}

// SendDoneMsg is sent when an exchange returns. By then the reply or the
// error notice is already in the store.
type SendDoneMsg struct {
	Err error
}

// ClearDoneMsg reports the result of a clear.
type ClearDoneMsg struct {
	Err error
}

// ExportDoneMsg reports the result of an export to file.
type ExportDoneMsg struct {
	Path string
	Err  error
}

// =============================================================================
// STORE AND CONNECTIVITY MESSAGES
// =============================================================================

// StoreEventMsg wraps a session store change.
type StoreEventMsg struct {
	Event session.Event
}

// ConnectivityChangedMsg reports a backend state transition.
type ConnectivityChangedMsg struct {
	Prev connectivity.State
	Next connectivity.State
	Err  error
}

// =============================================================================
// NOTICES
// =============================================================================

// NoticeKind selects the styling of a status line notice.
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeSuccess
	NoticeWarning
	NoticeError
)

// Notice is a transient line shown above the input.
type Notice struct {
	Kind NoticeKind
	Text string
	At   time.Time
}

// NoticeExpireMsg clears the notice created at At, if it is still shown.
type NoticeExpireMsg struct {
	At time.Time
}
