// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/molihua12345/KubeAgent/internal/model"
	"github.com/molihua12345/KubeAgent/internal/session"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a snapshot to Markdown. Message content is written as-is
// since assistant replies are already Markdown.
func (e *MarkdownExporter) Export(snap session.Snapshot) ([]byte, error) {
	ts := snap.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	title := snapshotTitle(snap)

	var sb strings.Builder

	sb.WriteString("---\n")
	sb.WriteString(fmt.Sprintf("title: %s\n", escapeYAML(title)))
	sb.WriteString(fmt.Sprintf("date: %s\n", ts.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("messages: %d\n", len(snap.Messages)))
	sb.WriteString("generator: kubewizard-chat\n")
	sb.WriteString("---\n\n")

	sb.WriteString(fmt.Sprintf("# %s\n\n", escapeMarkdown(title)))

	if len(snap.Messages) == 0 {
		sb.WriteString("*No messages yet.*\n")
		return []byte(sb.String()), nil
	}

	for i, msg := range snap.Messages {
		label := e.formatRoleLabel(msg)
		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			sb.WriteString(fmt.Sprintf("### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Timestamp)))
		} else {
			sb.WriteString(fmt.Sprintf("### %s\n\n", label))
		}

		content := strings.TrimSpace(msg.Content)
		if msg.IsError {
			content = "> " + strings.ReplaceAll(content, "\n", "\n> ")
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")

		if stats := msg.Stats.String(); stats != "" && msg.Role == model.RoleAssistant {
			sb.WriteString(fmt.Sprintf("<sub>%s</sub>\n\n", stats))
		}

		if i < len(snap.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString(fmt.Sprintf("*Exported from kubewizard-chat on %s*\n", formatTimestamp(ts)))
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func (e *MarkdownExporter) formatRoleLabel(msg model.Message) string {
	label := msg.Role.DisplayName()
	if msg.IsError {
		label += " (error)"
	}
	return label
}

// escapeMarkdown escapes characters that would break formatting in headings.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML quotes a frontmatter value when it contains special characters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
