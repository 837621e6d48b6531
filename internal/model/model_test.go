// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	msg := NewUserMessage("list pods")

	if msg.Role != RoleUser || !msg.IsUser() {
		t.Errorf("Role = %q, want user", msg.Role)
	}
	if !strings.HasPrefix(msg.ID, "msg_") {
		t.Errorf("ID = %q, want msg_ prefix", msg.ID)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
	if msg.IsError {
		t.Error("user message should not be error-flagged")
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("backend unreachable")
	if msg.Role != RoleAssistant || !msg.IsError {
		t.Errorf("got role=%q error=%v", msg.Role, msg.IsError)
	}
}

func TestMessageIDs_UniqueAndOrdered(t *testing.T) {
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 100; i++ {
		id := NewAssistantMessage("x").ID
		if seen[id] {
			t.Fatalf("duplicate ID %s", id)
		}
		seen[id] = true
		if prev != "" && id <= prev {
			t.Errorf("IDs not time ordered: %s after %s", id, prev)
		}
		prev = id
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"user", RoleUser, false},
		{"USER", RoleUser, false},
		{"assistant", RoleAssistant, false},
		{"bot", RoleAssistant, false},
		{" ai ", RoleAssistant, false},
		{"system", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRoleFromIsUser(t *testing.T) {
	if RoleFromIsUser(true) != RoleUser || RoleFromIsUser(false) != RoleAssistant {
		t.Error("RoleFromIsUser mapping wrong")
	}
}

func TestRole_DisplayName(t *testing.T) {
	if RoleUser.DisplayName() != "You" {
		t.Errorf("user display = %q", RoleUser.DisplayName())
	}
	if Role("other").DisplayName() != "other" {
		t.Error("unknown role should display as-is")
	}
}

func TestStatistics(t *testing.T) {
	s := NewStatistics()
	s.StartTime = time.Now().Add(-2 * time.Second)

	s.RecordDelta(5)
	s.RecordDelta(7)
	s.RecordMalformed()
	s.Finalize()

	if s.Deltas != 2 || s.Bytes != 12 || s.Malformed != 1 {
		t.Errorf("counts = %d/%d/%d", s.Deltas, s.Bytes, s.Malformed)
	}
	if s.TTFT < 2*time.Second {
		t.Errorf("TTFT = %v, want >= 2s", s.TTFT)
	}
	if s.TotalDuration < s.TTFT {
		t.Errorf("TotalDuration %v < TTFT %v", s.TotalDuration, s.TTFT)
	}
	if !strings.Contains(s.String(), "2 chunks") {
		t.Errorf("String() = %q", s.String())
	}

	var nilStats *Statistics
	if nilStats.String() != "" {
		t.Error("nil statistics should format as empty")
	}
}
