// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the message types shared by the session store,
// the stream accumulator and the exporters.
//
// # Key Types
//
//   - Role: message author (user or assistant)
//   - Message: one immutable turn in a session
//   - Statistics: timing for one streamed reply
package model
