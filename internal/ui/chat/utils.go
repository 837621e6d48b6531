// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// =============================================================================
// FORMATTING UTILITIES
// =============================================================================

// formatTimestamp formats a message time relative to now:
//   - Today: "15:04"
//   - This week: "Mon 15:04"
//   - Older: "Jan 2 15:04"
func formatTimestamp(t time.Time) string {
	now := time.Now()

	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if now.Sub(t) < 7*24*time.Hour {
		return t.Format("Mon 15:04")
	}
	return t.Format("Jan 2 15:04")
}

// contentWidth returns the usable width inside a margin, never below 3.
func contentWidth(totalWidth, margin int) int {
	w := totalWidth - margin
	if w < 3 {
		w = 3
	}
	return w
}

// wrapText wraps text to maxWidth display columns. Existing line breaks are
// kept and long lines break at the last space that fits.
func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}

	var result strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			result.WriteString("\n")
		}
		for runewidth.StringWidth(line) > maxWidth {
			head := runewidth.Truncate(line, maxWidth, "")
			if line[len(head)] != ' ' {
				if cut := strings.LastIndexByte(head, ' '); cut > 0 {
					head = head[:cut]
				}
			}
			if head == "" {
				// A single rune wider than maxWidth.
				_, size := firstRune(line)
				head = line[:size]
			}
			result.WriteString(head)
			result.WriteString("\n")
			line = strings.TrimLeft(line[len(head):], " ")
		}
		result.WriteString(line)
	}
	return result.String()
}

func firstRune(s string) (rune, int) {
	for _, r := range s {
		return r, len(string(r))
	}
	return 0, 0
}
