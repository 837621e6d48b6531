// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// output.go - Transcript and reply rendering shared by the line commands.

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/molihua12345/KubeAgent/internal/format"
	"github.com/molihua12345/KubeAgent/internal/model"
)

// printer writes transcripts to one writer. Styling is applied only when
// the writer is a color-capable terminal.
type printer struct {
	w        io.Writer
	color    bool
	width    int
	markdown bool // render replies with glamour instead of the builtin formatter
	raw      bool // print replies exactly as received
}

func newPrinter(w io.Writer) *printer {
	color := isTerminalWriter(w) && ColorsEnabled()
	return &printer{w: w, color: color, width: GetTerminalWidth()}
}

func (p *printer) style(text string, render func(...string) string) string {
	if !p.color {
		return text
	}
	return render(text)
}

// label renders "You" or "KubeWizard" for a role.
func (p *printer) label(role model.Role) string {
	name := role.DisplayName()
	if role == model.RoleUser {
		return p.style(name, UserStyle.Render)
	}
	return p.style(name, AssistantStyle.Render)
}

// reply renders assistant text. Plain output drops markup so piped text
// stays readable.
func (p *printer) reply(content string) string {
	if p.raw {
		return content
	}
	if !p.color {
		return format.RenderPlain(format.Format(content))
	}
	if p.markdown {
		if out, err := renderMarkdown(content, p.width); err == nil {
			return out
		}
	}
	return format.RenderTerminal(format.Format(content), format.DefaultPalette(hasDarkBackground()), p.width)
}

// message prints one transcript entry.
func (p *printer) message(msg model.Message) {
	head := p.label(msg.Role)
	if !msg.Timestamp.IsZero() {
		head += " " + p.style(msg.Timestamp.Format("15:04"), DimStyle.Render)
	}
	fmt.Fprintln(p.w, head)

	switch {
	case msg.IsError:
		fmt.Fprintln(p.w, p.style(msg.Content, ErrorStyle.Render))
	case msg.IsUser():
		fmt.Fprintln(p.w, msg.Content)
	default:
		fmt.Fprintln(p.w, p.reply(msg.Content))
	}
}

// transcript prints msgs separated by blank lines.
func (p *printer) transcript(msgs []model.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(p.w, p.style("No messages.", DimStyle.Render))
		return
	}
	for i, msg := range msgs {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		p.message(msg)
	}
}

func (p *printer) warn(format string, args ...any) {
	fmt.Fprintln(p.w, p.style("[WARN] ", WarningStyle.Render)+fmt.Sprintf(format, args...))
}

func (p *printer) info(format string, args ...any) {
	fmt.Fprintln(p.w, p.style(fmt.Sprintf(format, args...), DimStyle.Render))
}

func (p *printer) success(format string, args ...any) {
	fmt.Fprintln(p.w, p.style("[OK] ", SuccessStyle.Render)+fmt.Sprintf(format, args...))
}

// renderMarkdown renders content with glamour at width.
func renderMarkdown(content string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	out, err := r.Render(content)
	if err != nil {
		return "", err
	}
	return strings.Trim(out, "\n"), nil
}
