// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat maps user intents onto the backend, the session store and
// the connectivity monitor.
//
// The Facade is the only component that talks to the backend. Every
// exchange goes through Send, which is guarded by connectivity and a
// single-flight busy flag. Failures never escape as panics: anything the
// user should see becomes an error-flagged assistant message in the store.
//
// Usage:
//
//	f := chat.New(chat.Options{Backend: client, Store: store})
//	if err := f.Start(ctx); err != nil { ... }
//	err := f.Send(ctx, "why is my pod pending?", sink)
package chat
