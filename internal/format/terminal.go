// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// TERMINAL PALETTE
// =============================================================================

// Palette holds the styles used by RenderTerminal.
type Palette struct {
	Text       lipgloss.Style
	Code       lipgloss.Style
	Strong     lipgloss.Style
	Emphasis   lipgloss.Style
	Bullet     lipgloss.Style
	CodeBlock  lipgloss.Style
	CodeLabel  lipgloss.Style
	ChromaName string // chroma style for code blocks, e.g. "monokai"
}

// DefaultPalette returns a palette for dark or light terminals.
func DefaultPalette(dark bool) Palette {
	accent := lipgloss.Color("#7AA2F7")
	codeFg := lipgloss.Color("#E0AF68")
	border := lipgloss.Color("#414868")
	chromaName := "monokai"
	if !dark {
		accent = lipgloss.Color("#2E59A8")
		codeFg = lipgloss.Color("#8F5E00")
		border = lipgloss.Color("#A0A4B8")
		chromaName = "github"
	}

	return Palette{
		Text:       lipgloss.NewStyle(),
		Code:       lipgloss.NewStyle().Foreground(codeFg),
		Strong:     lipgloss.NewStyle().Bold(true),
		Emphasis:   lipgloss.NewStyle().Italic(true),
		Bullet:     lipgloss.NewStyle().Foreground(accent),
		CodeBlock:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(border).Padding(0, 1),
		CodeLabel:  lipgloss.NewStyle().Foreground(accent).Italic(true),
		ChromaName: chromaName,
	}
}

// =============================================================================
// TERMINAL RENDERER
// =============================================================================

// RenderTerminal renders a document with ANSI styling. Width wraps
// paragraphs and list items; zero disables wrapping.
func RenderTerminal(doc Document, p Palette, width int) string {
	parts := make([]string, 0, len(doc.Blocks))

	for _, b := range doc.Blocks {
		switch b.Kind {
		case BlockCode:
			code := highlightCode(b.Code, b.Lang, p.ChromaName)
			box := p.CodeBlock.Render(code)
			if b.Lang != "" {
				box = p.CodeLabel.Render(b.Lang) + "\n" + box
			}
			parts = append(parts, box)

		case BlockList:
			items := make([]string, len(b.Items))
			for i, item := range b.Items {
				marker := "• "
				if b.Ordered {
					marker = listMarker(b, i)
				}
				items[i] = "  " + p.Bullet.Render(marker) + wrap(styledLine(item, p), width-4)
			}
			parts = append(parts, strings.Join(items, "\n"))

		default:
			lines := make([]string, len(b.Lines))
			for i, l := range b.Lines {
				lines[i] = wrap(styledLine(l, p), width)
			}
			parts = append(parts, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(parts, "\n")
}

func styledLine(line Line, p Palette) string {
	var sb strings.Builder
	writeStyled(&sb, line, p, p.Text)
	return sb.String()
}

func writeStyled(sb *strings.Builder, spans []Inline, p Palette, base lipgloss.Style) {
	for _, in := range spans {
		switch in.Kind {
		case InlineCode:
			sb.WriteString(p.Code.Render(in.Text))
		case InlineStrong:
			writeStyled(sb, in.Children, p, base.Inherit(p.Strong).Bold(true))
		case InlineEmphasis:
			writeStyled(sb, in.Children, p, base.Inherit(p.Emphasis).Italic(true))
		default:
			sb.WriteString(base.Render(in.Text))
		}
	}
}

func wrap(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}

// highlightCode applies chroma syntax highlighting for the terminal.
func highlightCode(code, language, styleName string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get(styleName)
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return strings.TrimRight(buf.String(), "\n")
}
