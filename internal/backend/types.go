// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"time"
)

// Endpoint paths.
const (
	PathHealth  = "/api/health"
	PathHistory = "/api/history"
	PathChat    = "/api/chat"
	PathStream  = "/api/chat/stream"
	PathClear   = "/api/clear"
)

// ChatRequest is the body of both chat endpoints.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the body returned by /api/chat.
type ChatResponse struct {
	Response string `json:"response"`
}

// HistoryEntry is one turn replayed from the backend.
type HistoryEntry struct {
	Content string `json:"content"`
	IsUser  bool   `json:"is_user"`
}

// historyResponse is the body returned by /api/history.
type historyResponse struct {
	History []HistoryEntry `json:"history"`
}

// statusResponse is the body returned by /api/clear.
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health is the body returned by /api/health. All fields are optional.
type Health struct {
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
	Version   string  `json:"version"`

	// Latency is measured client side.
	Latency time.Duration `json:"-"`
}

// Time converts the backend's epoch-seconds timestamp.
func (h Health) Time() time.Time {
	if h.Timestamp == 0 {
		return time.Time{}
	}
	sec := int64(h.Timestamp)
	nsec := int64((h.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
