// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes session transcripts to files and reads them back.
//
// # Supported Formats
//
//   - JSON: {"timestamp", "messages": [{"type", "content", "error"}]}; the
//     only format that can be imported again
//   - Markdown: human-readable transcript with YAML frontmatter
//   - HTML: standalone page with embedded CSS, assistant replies rendered
//     through the message formatter
//
// # Usage
//
//	snap, _ := store.Export(store.ActiveID())
//	exp, _ := export.New(export.FormatMarkdown, nil)
//	path, err := export.ExportToFile(snap, exp, nil)
//
// Importing:
//
//	snap, err := export.ReadFile("chat-export.json")
//	id := store.Import(snap)
package export
