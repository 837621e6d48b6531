// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/molihua12345/KubeAgent/internal/session"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// TimestampLayout is the ISO-8601 layout used in JSON exports.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Document is the JSON export layout.
type Document struct {
	Timestamp string   `json:"timestamp"`
	Title     string   `json:"title,omitempty"`
	Messages  []Record `json:"messages"`
}

// JSONExporter exports transcripts to JSON. Options do not apply; the output
// is always the complete transcript so that it can be imported again.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts a snapshot to JSON.
func (e *JSONExporter) Export(snap session.Snapshot) ([]byte, error) {
	ts := snap.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	doc := Document{
		Timestamp: ts.UTC().Format(TimestampLayout),
		Title:     snap.Title,
		Messages:  ToRecords(snap.Messages),
	}
	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}

// =============================================================================
// IMPORT
// =============================================================================

// ErrNoMessages is returned when an export has no "messages" array.
var ErrNoMessages = errors.New("export has no messages array")

// Parse decodes a JSON export into a snapshot. A missing or unparseable
// timestamp is tolerated.
func Parse(data []byte) (session.Snapshot, error) {
	var raw struct {
		Timestamp string    `json:"timestamp"`
		Title     string    `json:"title"`
		Messages  *[]Record `json:"messages"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return session.Snapshot{}, fmt.Errorf("decode export: %w", err)
	}
	if raw.Messages == nil {
		return session.Snapshot{}, ErrNoMessages
	}

	msgs, err := FromRecords(*raw.Messages)
	if err != nil {
		return session.Snapshot{}, err
	}

	snap := session.Snapshot{Title: raw.Title, Messages: msgs}
	if ts, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
		snap.Timestamp = ts
	}
	return snap, nil
}
