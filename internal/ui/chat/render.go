// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/molihua12345/KubeAgent/internal/format"
	"github.com/molihua12345/KubeAgent/internal/ui/styles"
)

// Renderer names accepted in ui.renderer.
const (
	RendererBuiltin = "builtin"
	RendererGlamour = "glamour"
)

// replyRenderer turns assistant text into terminal output. Rendered replies
// are cached by message ID because messages never change once stored.
type replyRenderer struct {
	palette format.Palette
	glam    *glamour.TermRenderer
	width   int
	cache   map[string]string
}

// newReplyRenderer builds a renderer of the given kind. A glamour setup
// failure falls back to the built-in formatter.
func newReplyRenderer(kind string, theme *styles.Theme, width int) *replyRenderer {
	r := &replyRenderer{
		palette: theme.Palette,
		width:   width,
		cache:   make(map[string]string),
	}
	if kind == RendererGlamour {
		style := "dark"
		if !theme.IsDark {
			style = "light"
		}
		glam, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			r.glam = glam
		}
	}
	return r
}

// render renders raw text. id may be empty for text that is still growing.
func (r *replyRenderer) render(id, raw string) string {
	if id != "" {
		if out, ok := r.cache[id]; ok {
			return out
		}
	}

	out := r.renderUncached(raw)
	if id != "" {
		r.cache[id] = out
	}
	return out
}

func (r *replyRenderer) renderUncached(raw string) string {
	if r.glam != nil {
		if out, err := r.glam.Render(raw); err == nil {
			return strings.Trim(out, "\n")
		}
	}
	return format.RenderTerminal(format.Format(raw), r.palette, r.width)
}
