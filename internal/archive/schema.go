// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package archive

// Schema creates the archive tables.
const Schema = `
CREATE TABLE IF NOT EXISTS entries (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT    NOT NULL,
	title         TEXT    NOT NULL,
	preview       TEXT    NOT NULL DEFAULT '',
	message_count INTEGER NOT NULL,
	exported_at   INTEGER NOT NULL,
	archived_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_archived ON entries(archived_at DESC);

CREATE TABLE IF NOT EXISTS messages (
	entry_id   INTEGER NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	role       TEXT    NOT NULL,
	content    TEXT    NOT NULL,
	is_error   INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (entry_id, seq)
);
`
