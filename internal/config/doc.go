// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// kubewizard chat client.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, validation and hot reload.
//
// # Key Types
//
//   - Config: main configuration structure
//   - BackendConfig: backend URL, timeouts and probe cadence
//   - SessionConfig: session titles, previews and stream commit target
//   - UIConfig: theme and renderer selection
//   - Watcher: reloads the config file when it changes on disk
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (KUBEWIZARD_*)
//   - ~/.kubewizard/config.toml
//   - ~/.kubewizard/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	interval := cfg.Backend.ProbeInterval.Duration
package config
