// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"

	"github.com/molihua12345/KubeAgent/internal/model"
)

// =============================================================================
// CONVERSION UTILITIES
// =============================================================================

// Record is one message in the portable transcript format.
type Record struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Error   bool   `json:"error,omitempty"`
}

// ToRecords converts messages to portable records, preserving order.
func ToRecords(msgs []model.Message) []Record {
	records := make([]Record, 0, len(msgs))
	for _, msg := range msgs {
		records = append(records, Record{
			Type:    msg.Role.String(),
			Content: msg.Content,
			Error:   msg.IsError,
		})
	}
	return records
}

// FromRecords converts records back to messages. Message IDs are left empty
// so the session store assigns fresh ones on import.
func FromRecords(records []Record) ([]model.Message, error) {
	msgs := make([]model.Message, 0, len(records))
	for i, r := range records {
		role, err := model.ParseRole(r.Type)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		msgs = append(msgs, model.Message{
			Role:    role,
			Content: r.Content,
			IsError: r.Error,
		})
	}
	return msgs, nil
}
