// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"strconv"
	"strings"
)

// RenderPlain renders a document as plain text: emphasis markers and code
// fences are dropped, list markers are kept. For text without markup,
// RenderPlain(Format(x)) == x.
func RenderPlain(doc Document) string {
	parts := make([]string, 0, len(doc.Blocks))
	for _, b := range doc.Blocks {
		switch b.Kind {
		case BlockCode:
			parts = append(parts, b.Code)
		case BlockList:
			items := make([]string, len(b.Items))
			for i, item := range b.Items {
				items[i] = listMarker(b, i) + plainLine(item)
			}
			parts = append(parts, strings.Join(items, "\n"))
		default:
			lines := make([]string, len(b.Lines))
			for i, l := range b.Lines {
				lines[i] = plainLine(l)
			}
			parts = append(parts, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(parts, "\n")
}

func plainLine(line Line) string {
	var sb strings.Builder
	writePlain(&sb, line)
	return sb.String()
}

func writePlain(sb *strings.Builder, spans []Inline) {
	for _, in := range spans {
		switch in.Kind {
		case InlineStrong, InlineEmphasis:
			writePlain(sb, in.Children)
		default:
			sb.WriteString(in.Text)
		}
	}
}

// listMarker returns "- " for bullets and "N. " for numbered items.
func listMarker(b Block, i int) string {
	if !b.Ordered {
		return "- "
	}
	return strconv.Itoa(b.Start+i) + ". "
}
