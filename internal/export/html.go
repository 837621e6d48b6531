// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/molihua12345/KubeAgent/internal/format"
	"github.com/molihua12345/KubeAgent/internal/model"
	"github.com/molihua12345/KubeAgent/internal/session"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports transcripts to a standalone HTML page with embedded CSS.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export converts a snapshot to HTML. Assistant replies go through the
// message formatter; user text is escaped verbatim.
func (e *HTMLExporter) Export(snap session.Snapshot) ([]byte, error) {
	ts := snap.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	title := snapshotTitle(snap)

	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}

	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", html.EscapeString(title)))
	sb.WriteString("    <meta name=\"generator\" content=\"kubewizard-chat\">\n")
	sb.WriteString(fmt.Sprintf("    <meta name=\"date\" content=\"%s\">\n", ts.Format(time.RFC3339)))
	sb.WriteString(e.getCSS())
	sb.WriteString("</head>\n")
	sb.WriteString(fmt.Sprintf("<body class=\"%s-theme\">\n", theme))

	sb.WriteString("    <div class=\"container\">\n")
	sb.WriteString("        <header class=\"header\">\n")
	sb.WriteString(fmt.Sprintf("            <h1>%s</h1>\n", html.EscapeString(title)))
	sb.WriteString(fmt.Sprintf("            <div class=\"metadata\">%s &middot; %d messages</div>\n",
		formatTimestamp(ts), len(snap.Messages)))
	sb.WriteString("        </header>\n")

	sb.WriteString("        <main class=\"conversation\">\n")
	if len(snap.Messages) == 0 {
		sb.WriteString("            <p class=\"empty\">No messages yet.</p>\n")
	}
	for _, msg := range snap.Messages {
		sb.WriteString(e.renderMessage(msg))
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	sb.WriteString(fmt.Sprintf("            <p>Exported from <strong>kubewizard-chat</strong> on %s</p>\n",
		ts.Format("January 2, 2006 at 3:04 PM")))
	sb.WriteString("        </footer>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) renderMessage(msg model.Message) string {
	var sb strings.Builder

	class := "bot-message"
	if msg.IsUser() {
		class = "user-message"
	}
	if msg.IsError {
		class += " error-message"
	}
	sb.WriteString(fmt.Sprintf("            <div class=\"message %s\">\n", class))

	sb.WriteString("                <div class=\"message-header\">\n")
	sb.WriteString(fmt.Sprintf("                    <span class=\"role-label\">%s</span>\n",
		html.EscapeString(msg.Role.DisplayName())))
	if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
		sb.WriteString(fmt.Sprintf("                    <span class=\"timestamp\">%s</span>\n",
			formatShortTimestamp(msg.Timestamp)))
	}
	sb.WriteString("                </div>\n")

	doc := format.Literal(msg.Content)
	if msg.Role == model.RoleAssistant && !msg.IsError {
		doc = format.Format(msg.Content)
	}
	sb.WriteString("                <div class=\"message-content\">\n")
	sb.WriteString(format.RenderHTML(doc))
	sb.WriteString("                </div>\n")

	if stats := msg.Stats.String(); stats != "" {
		sb.WriteString(fmt.Sprintf("                <div class=\"message-stats\">%s</div>\n", html.EscapeString(stats)))
	}

	sb.WriteString("            </div>\n")
	return sb.String()
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

func (e *HTMLExporter) getCSS() string {
	return `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            --font-mono: "SF Mono", "Monaco", "Inconsolata", "Fira Code", monospace;
        }

        .dark-theme {
            --bg-primary: #1a1b26;
            --bg-secondary: #24283b;
            --text-primary: #c0caf5;
            --text-muted: #565f89;
            --border-color: #414868;
            --user-bg: #1f2335;
            --bot-bg: #24283b;
            --code-bg: #16161e;
            --accent: #7aa2f7;
            --error: #f7768e;
        }

        .light-theme {
            --bg-primary: #ffffff;
            --bg-secondary: #f7f8fa;
            --text-primary: #24292e;
            --text-muted: #6a737d;
            --border-color: #e1e4e8;
            --user-bg: #e8f0fe;
            --bot-bg: #ffffff;
            --code-bg: #f6f8fa;
            --accent: #0366d6;
            --error: #d73a49;
        }

        body {
            font-family: var(--font-sans);
            line-height: 1.6;
            color: var(--text-primary);
            background: var(--bg-primary);
            padding: 20px;
        }

        .container {
            max-width: 900px;
            margin: 0 auto;
            background: var(--bg-secondary);
            border-radius: 12px;
            overflow: hidden;
        }

        .header { padding: 24px 32px; border-bottom: 2px solid var(--border-color); }
        .header h1 { font-size: 24px; margin-bottom: 8px; }
        .metadata { font-size: 14px; color: var(--text-muted); }

        .conversation { padding: 24px 32px; }
        .message { margin-bottom: 20px; padding: 16px; border-radius: 8px; border: 1px solid var(--border-color); }
        .user-message { background: var(--user-bg); margin-left: 15%; }
        .bot-message { background: var(--bot-bg); margin-right: 15%; }
        .error-message { border-color: var(--error); }
        .error-message .message-content { color: var(--error); }

        .message-header { display: flex; justify-content: space-between; margin-bottom: 8px; font-size: 13px; }
        .role-label { font-weight: 600; color: var(--accent); }
        .timestamp, .message-stats { color: var(--text-muted); font-size: 12px; }

        .message-content p { margin-bottom: 8px; }
        .message-content ul, .message-content ol { margin: 8px 0 8px 24px; }
        .message-content code { font-family: var(--font-mono); background: var(--code-bg); padding: 1px 4px; border-radius: 3px; }
        .message-content pre { background: var(--code-bg); padding: 12px; border-radius: 6px; overflow-x: auto; margin: 8px 0; }
        .message-content pre code { padding: 0; }

        .empty { color: var(--text-muted); font-style: italic; }
        .footer { padding: 16px 32px; font-size: 12px; color: var(--text-muted); border-top: 1px solid var(--border-color); }
    </style>
`
}
