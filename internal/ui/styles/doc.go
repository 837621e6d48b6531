// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the chat TUI.
//
// Colors are Lip Gloss AdaptiveColors so they follow the terminal
// background. NewTheme pins the background to the configured "dark" or
// "light" theme and builds every style the TUI uses, plus the palette the
// message formatter renders assistant replies with.
//
// Usage:
//
//	theme := styles.NewTheme("dark")
//	fmt.Println(theme.UserLabel.Render("You"))
package styles
