// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package format turns raw assistant text into a structured Document and
// renders Documents for the terminal, HTML exports and plain text.
//
// Format runs a fixed pipeline of stages over an intermediate token
// structure: fenced code, inline code, line breaks, bullet lists, numbered
// lists, bold, italic. Each stage only looks at plain text tokens left by the
// stages before it, so text already claimed (code in particular) is never
// re-matched. Format is total: unbalanced markers stay literal.
//
// User-authored text never goes through the pipeline; use Literal for it.
package format

// BlockKind identifies a top-level block.
type BlockKind int

const (
	// BlockParagraph is a run of lines separated by line breaks.
	BlockParagraph BlockKind = iota
	// BlockCode is a fenced code block.
	BlockCode
	// BlockList is a run of bullet or numbered items.
	BlockList
)

// InlineKind identifies an inline span.
type InlineKind int

const (
	InlineText InlineKind = iota
	InlineCode
	InlineStrong
	InlineEmphasis
)

// Inline is a span within a line. Strong and Emphasis carry Children;
// Text and Code carry Text.
type Inline struct {
	Kind     InlineKind
	Text     string
	Children []Inline
}

// Line is a sequence of inline spans rendered without a break.
type Line []Inline

// Block is one top-level element of a Document.
type Block struct {
	Kind BlockKind

	// Lines holds the paragraph content (BlockParagraph).
	Lines []Line

	// Lang and Code hold the code block (BlockCode).
	Lang string
	Code string

	// Ordered, Start and Items describe a list (BlockList).
	Ordered bool
	Start   int
	Items   []Line
}

// Document is the formatted representation of a message.
type Document struct {
	Blocks []Block
}

// Text returns a plain text inline.
func Text(s string) Inline { return Inline{Kind: InlineText, Text: s} }

// Code returns an inline code span.
func Code(s string) Inline { return Inline{Kind: InlineCode, Text: s} }

// Strong wraps children in strong emphasis.
func Strong(children ...Inline) Inline { return Inline{Kind: InlineStrong, Children: children} }

// Emphasis wraps children in emphasis.
func Emphasis(children ...Inline) Inline { return Inline{Kind: InlineEmphasis, Children: children} }

// Literal returns a document that shows text exactly as written, split into
// lines but with no other interpretation.
func Literal(text string) Document {
	lines := splitLines(text)
	out := make([]Line, len(lines))
	for i, l := range lines {
		if l != "" {
			out[i] = Line{Text(l)}
		}
	}
	return Document{Blocks: []Block{{Kind: BlockParagraph, Lines: out}}}
}

// IsEmpty reports whether the document has no visible content.
func (d Document) IsEmpty() bool {
	return RenderPlain(d) == ""
}
