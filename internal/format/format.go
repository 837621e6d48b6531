// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	fenceOpen    = regexp.MustCompile("^```([A-Za-z0-9_+#.-]*)[ \t]*(\n|$)")
	bulletLine   = regexp.MustCompile(`^[-*] (.*)$`)
	numberedLine = regexp.MustCompile(`^(\d+)\. (.*)$`)
	tripleSpan   = regexp.MustCompile(`\*\*\*([^\s*](?:.*?[^\s*])?)\*\*\*`)
	boldSpan     = regexp.MustCompile(`\*\*(\S(?:.*?\S)?)\*\*`)
	italicSpan   = regexp.MustCompile(`\*([^*\s](?:[^*]*[^*\s])?)\*`)
)

// segment is the output of the fence stage: either code or unparsed text.
type segment struct {
	code bool
	lang string
	text string
}

// Format converts raw assistant text into a Document.
func Format(raw string) Document {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	var doc Document
	for _, seg := range splitFences(raw) {
		if seg.code {
			doc.Blocks = append(doc.Blocks, Block{Kind: BlockCode, Lang: seg.lang, Code: seg.text})
			continue
		}
		lines := splitInlineCode(seg.text)
		doc.Blocks = append(doc.Blocks, groupLines(lines)...)
	}

	for i := range doc.Blocks {
		b := &doc.Blocks[i]
		for j := range b.Lines {
			b.Lines[j] = emphasize(b.Lines[j])
		}
		for j := range b.Items {
			b.Items[j] = emphasize(b.Items[j])
		}
	}
	return doc
}

// =============================================================================
// STAGE 1: FENCED CODE
// =============================================================================

// splitFences separates fenced code from surrounding text. An opening fence
// without a closing fence is left as text. One newline on each side of a
// fence belongs to the fence.
func splitFences(raw string) []segment {
	var segs []segment
	rest := raw

	for {
		start := fenceStart(rest)
		if start < 0 {
			break
		}
		m := fenceOpen.FindStringSubmatchIndex(rest[start:])
		bodyStart := start + m[1]
		end := strings.Index(rest[bodyStart:], "```")
		if end < 0 {
			break
		}

		before := strings.TrimSuffix(rest[:start], "\n")
		if before != "" {
			segs = append(segs, segment{text: before})
		}

		body := strings.TrimSuffix(rest[bodyStart:bodyStart+end], "\n")
		segs = append(segs, segment{
			code: true,
			lang: rest[start+m[2] : start+m[3]],
			text: body,
		})

		rest = strings.TrimPrefix(rest[bodyStart+end+3:], "\n")
	}

	if rest != "" || len(segs) == 0 {
		segs = append(segs, segment{text: rest})
	}
	return segs
}

// fenceStart finds the first "```" that begins a valid opener.
func fenceStart(s string) int {
	offset := 0
	for {
		i := strings.Index(s[offset:], "```")
		if i < 0 {
			return -1
		}
		if fenceOpen.MatchString(s[offset+i:]) {
			return offset + i
		}
		offset += i + 3
	}
}

// =============================================================================
// STAGES 2-3: INLINE CODE AND LINE BREAKS
// =============================================================================

// splitInlineCode tokenizes text into lines of Text and Code spans. A code
// span never crosses a line; an unmatched backtick is literal.
func splitInlineCode(text string) []Line {
	raw := splitLines(text)
	lines := make([]Line, len(raw))

	for i, l := range raw {
		var line Line
		rest := l
		for {
			open := strings.IndexByte(rest, '`')
			if open < 0 {
				break
			}
			end := strings.IndexByte(rest[open+1:], '`')
			if end < 0 {
				break
			}
			if end == 0 {
				// "``" is not a span; keep both backticks literal.
				line = appendText(line, rest[:open+2])
				rest = rest[open+2:]
				continue
			}
			line = appendText(line, rest[:open])
			line = append(line, Code(rest[open+1:open+1+end]))
			rest = rest[open+1+end+1:]
		}
		lines[i] = appendText(line, rest)
	}
	return lines
}

// appendText adds s to line, merging with a trailing text span.
func appendText(line Line, s string) Line {
	if s == "" {
		return line
	}
	if n := len(line); n > 0 && line[n-1].Kind == InlineText {
		line[n-1].Text += s
		return line
	}
	return append(line, Text(s))
}

func splitLines(s string) []string {
	return strings.Split(s, "\n")
}

// =============================================================================
// STAGES 4-5: BULLET AND NUMBERED LISTS
// =============================================================================

type listKind int

const (
	notList listKind = iota
	bulletList
	numberedList
)

// classify reports whether a line is a list item and returns the item
// content with its marker removed.
func classify(line Line) (listKind, int, Line) {
	if len(line) == 0 || line[0].Kind != InlineText {
		return notList, 0, line
	}
	head := line[0].Text

	if m := bulletLine.FindStringSubmatch(head); m != nil {
		return bulletList, 0, replaceHead(line, m[1])
	}
	if m := numberedLine.FindStringSubmatch(head); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return notList, 0, line
		}
		return numberedList, n, replaceHead(line, m[2])
	}
	return notList, 0, line
}

func replaceHead(line Line, head string) Line {
	out := make(Line, 0, len(line))
	if head != "" {
		out = append(out, Text(head))
	}
	return append(out, line[1:]...)
}

// groupLines wraps contiguous runs of same-kind list items into list blocks
// and everything else into paragraphs.
func groupLines(lines []Line) []Block {
	var blocks []Block
	var para []Line

	flush := func() {
		if para != nil {
			blocks = append(blocks, Block{Kind: BlockParagraph, Lines: para})
			para = nil
		}
	}

	for _, line := range lines {
		kind, num, item := classify(line)
		if kind == notList {
			para = append(para, line)
			continue
		}
		flush()

		ordered := kind == numberedList
		if n := len(blocks); n > 0 && blocks[n-1].Kind == BlockList && blocks[n-1].Ordered == ordered {
			blocks[n-1].Items = append(blocks[n-1].Items, item)
			continue
		}
		blocks = append(blocks, Block{Kind: BlockList, Ordered: ordered, Start: num, Items: []Line{item}})
	}
	flush()
	return blocks
}

// =============================================================================
// STAGES 6-7: BOLD AND ITALIC
// =============================================================================

// ***x*** is bold italic; it is taken before the bold stage so that stage
// cannot claim one of its asterisks.
func emphasize(line Line) Line {
	line = applySpan(line, tripleSpan, func(c Line) Inline { return Strong(Emphasis(c...)) })
	line = applySpan(line, boldSpan, func(c Line) Inline { return Strong(c...) })
	return applySpan(line, italicSpan, func(c Line) Inline { return Emphasis(c...) })
}

// applySpan rewrites matches of re inside Text spans (including those nested
// in Strong or Emphasis) into the span built by wrap.
func applySpan(line Line, re *regexp.Regexp, wrap func(Line) Inline) Line {
	var out Line
	for _, in := range line {
		switch in.Kind {
		case InlineText:
			out = append(out, splitSpan(in.Text, re, wrap)...)
		case InlineStrong, InlineEmphasis:
			in.Children = applySpan(in.Children, re, wrap)
			out = append(out, in)
		default:
			out = append(out, in)
		}
	}
	return out
}

func splitSpan(s string, re *regexp.Regexp, wrap func(Line) Inline) Line {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return Line{Text(s)}
	}

	var out Line
	last := 0
	for _, m := range matches {
		out = appendText(out, s[last:m[0]])
		out = append(out, wrap(Line{Text(s[m[2]:m[3]])}))
		last = m[1]
	}
	return appendText(out, s[last:])
}
