// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the in-memory conversation sessions of one client
// process.
//
// The Store is the single source of truth for every session's messages.
// Renderers are projections of it: they subscribe to change events and
// repaint from Store reads, and never write back.
//
// # Invariants
//
//   - At least one session exists; the store starts with a default session.
//   - Exactly one session is active and the active ID always names an
//     existing session.
//   - Messages are kept in append order and never reordered or edited.
//   - A session's preview is derived from its latest message and is
//     recomputed on every append.
//
// # Usage
//
//	store := session.NewStore(session.DefaultOptions())
//	store.Append(model.RoleUser, "why is my pod pending?")
//
//	id := store.CreateAndSwitch()
//	store.SwitchTo(id)
//
//	snap, _ := store.Export(store.ActiveID())
package session
