// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across the chat client.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth: display-width truncation for terminal columns
//   - SanitizeFilename: turn free text into a safe file name fragment
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	// Fit a session title into the sidebar
//	label := util.TruncateWidth(title, 24)
//
//	// Write an export atomically
//	err := util.AtomicWriteFile(path, data, 0644)
package util
