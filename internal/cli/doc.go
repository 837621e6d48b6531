// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the kubewizard-chat command tree.
//
// Every command shares the same wiring: configuration is loaded from
// ~/.kubewizard (or --config), environment overrides and global flags are
// applied, and a chat façade is built over the backend client, the session
// store and, when enabled, the export archive.
//
// # Commands
//
//	kubewizard-chat [tui]              Full-screen chat (default)
//	kubewizard-chat repl               Line-oriented chat with input history
//	kubewizard-chat ask <text>         One-shot question, reply on stdout
//	kubewizard-chat history            Print the backend conversation
//	kubewizard-chat health             Probe the backend
//	kubewizard-chat export             Export the backend conversation
//	kubewizard-chat archive list       List archived exports
//	kubewizard-chat archive show <id>  Print one archived export
//	kubewizard-chat archive import <f> Archive a JSON export file
//	kubewizard-chat config show        Print the effective configuration
//	kubewizard-chat config set <k> <v> Change one setting in the config file
//	kubewizard-chat config reset       Write the defaults to the config file
//	kubewizard-chat version            Print build information
//
// # Global Flags
//
//	--config     Configuration file (TOML, or JSON by extension)
//	--backend    Backend base URL, overrides backend.url
//	--log-level  Log level, overrides logging.level
//
// # Exit Codes
//
// Failures map to the codes in errors.go: usage errors exit 2, config
// errors 3, backend connectivity and transport errors 5, missing archive
// entries 7 and timeouts 8.
package cli
