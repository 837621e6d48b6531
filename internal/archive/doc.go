// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package archive keeps exported session snapshots in a local SQLite
// database so that they can be listed and re-imported later.
//
// The database uses the pure Go modernc.org/sqlite driver, so no cgo is
// required. Each Save stores one snapshot as an entry plus its ordered
// messages; Load returns it as a session.Snapshot ready for
// session.Store.Import.
package archive
