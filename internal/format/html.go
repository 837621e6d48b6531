// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// htmlPolicy allows exactly the elements RenderHTML produces.
var htmlPolicy = newHTMLPolicy()

func newHTMLPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "pre", "code", "ul", "ol", "li", "strong", "em")
	p.AllowAttrs("start").Matching(regexp.MustCompile(`^[0-9]+$`)).OnElements("ol")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^language-[A-Za-z0-9_+#.-]+$`)).OnElements("code")
	return p
}

// RenderHTML renders a document as an HTML fragment. All text is escaped and
// the result is passed through a sanitizer that only admits the elements
// produced here.
func RenderHTML(doc Document) string {
	var sb strings.Builder
	for _, b := range doc.Blocks {
		switch b.Kind {
		case BlockCode:
			sb.WriteString("<pre><code")
			if b.Lang != "" {
				sb.WriteString(` class="language-` + html.EscapeString(b.Lang) + `"`)
			}
			sb.WriteString(">")
			sb.WriteString(html.EscapeString(b.Code))
			sb.WriteString("</code></pre>\n")

		case BlockList:
			tag := "ul"
			if b.Ordered {
				tag = "ol"
			}
			sb.WriteString("<" + tag)
			if b.Ordered && b.Start > 1 {
				sb.WriteString(` start="` + strconv.Itoa(b.Start) + `"`)
			}
			sb.WriteString(">")
			for _, item := range b.Items {
				sb.WriteString("<li>")
				writeHTML(&sb, item)
				sb.WriteString("</li>")
			}
			sb.WriteString("</" + tag + ">\n")

		default:
			sb.WriteString("<p>")
			for i, l := range b.Lines {
				if i > 0 {
					sb.WriteString("<br>")
				}
				writeHTML(&sb, l)
			}
			sb.WriteString("</p>\n")
		}
	}
	return htmlPolicy.Sanitize(sb.String())
}

// EscapeHTML renders literal text (user messages) as an HTML fragment with
// line breaks preserved.
func EscapeHTML(text string) string {
	return RenderHTML(Literal(text))
}

func writeHTML(sb *strings.Builder, spans []Inline) {
	for _, in := range spans {
		switch in.Kind {
		case InlineCode:
			sb.WriteString("<code>" + html.EscapeString(in.Text) + "</code>")
		case InlineStrong:
			sb.WriteString("<strong>")
			writeHTML(sb, in.Children)
			sb.WriteString("</strong>")
		case InlineEmphasis:
			sb.WriteString("<em>")
			writeHTML(sb, in.Children)
			sb.WriteString("</em>")
		default:
			sb.WriteString(html.EscapeString(in.Text))
		}
	}
}
