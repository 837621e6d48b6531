// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "KubeWizard"
	default:
		return string(r)
	}
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ParseRole maps an export label back to a Role. "bot" and "ai" are
// accepted as aliases for assistant.
func ParseRole(label string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "user", "human":
		return RoleUser, nil
	case "assistant", "bot", "ai":
		return RoleAssistant, nil
	default:
		return "", fmt.Errorf("unknown message role %q", label)
	}
}

// RoleFromIsUser maps the backend's is_user flag to a Role.
func RoleFromIsUser(isUser bool) Role {
	if isUser {
		return RoleUser
	}
	return RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single turn in a session. Messages are values and are never
// modified after they are appended.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// IsError marks an assistant message that reports a failure.
	IsError bool `json:"is_error,omitempty"`

	// Stats is set on assistant messages produced from a stream.
	Stats *Statistics `json:"stats,omitempty"`
}

// NewMessage creates a message with a generated ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        generateID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewErrorMessage creates an error-flagged assistant message.
func NewErrorMessage(content string) Message {
	msg := NewMessage(RoleAssistant, content)
	msg.IsError = true
	return msg
}

// IsUser reports whether the message was written by the user.
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == ""
}

// generateID returns a time-ordered unique message ID.
func generateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "msg_" + uuid.NewString()
	}
	return "msg_" + id.String()
}
