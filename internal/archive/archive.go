// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/molihua12345/KubeAgent/internal/model"
	"github.com/molihua12345/KubeAgent/internal/session"
	"github.com/molihua12345/KubeAgent/internal/util"
)

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = errors.New("archive entry not found")

// previewLength bounds Entry.Preview in runes.
const previewLength = 60

// Entry describes one archived snapshot.
type Entry struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview"` // first user message, truncated
	MessageCount int       `json:"message_count"`
	ExportedAt   time.Time `json:"exported_at"`
	ArchivedAt   time.Time `json:"archived_at"`
}

// Options configures an Archive.
type Options struct {
	// MaxEntries limits stored snapshots; the oldest are pruned on Save.
	// Zero means unlimited.
	MaxEntries int

	Logger *zap.Logger
}

// Archive is a SQLite-backed snapshot store. It is safe for concurrent use.
type Archive struct {
	db   *sql.DB
	path string
	opts Options
	log  *zap.Logger
}

// Open opens (creating if needed) the archive database at path.
func Open(path string, opts Options) (*Archive, error) {
	if path == "" {
		return nil, errors.New("archive path cannot be empty")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Archive{
		db:   db,
		path: path,
		opts: opts,
		log:  opts.Logger.Named("archive"),
	}, nil
}

// Path returns the database path.
func (a *Archive) Path() string {
	return a.path
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// =============================================================================
// SAVE / DELETE
// =============================================================================

// Save stores a snapshot and returns its entry ID.
func (a *Archive) Save(ctx context.Context, snap session.Snapshot) (int64, error) {
	exported := snap.Timestamp
	if exported.IsZero() {
		exported = time.Now()
	}
	title := strings.TrimSpace(snap.Title)
	if title == "" {
		title = "Untitled"
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO entries (session_id, title, preview, message_count, exported_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snap.SessionID, title, preview(snap.Messages), len(snap.Messages),
		exported.UnixMilli(), time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, msg := range snap.Messages {
		created := msg.Timestamp
		if created.IsZero() {
			created = exported
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (entry_id, seq, role, content, is_error, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, i, msg.Role.String(), msg.Content, msg.IsError, created.UnixMilli())
		if err != nil {
			return 0, fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	if a.opts.MaxEntries > 0 {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM entries WHERE id NOT IN (
				SELECT id FROM entries ORDER BY archived_at DESC, id DESC LIMIT ?
			)
		`, a.opts.MaxEntries)
		if err != nil {
			return 0, fmt.Errorf("prune: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	a.log.Debug("snapshot archived",
		zap.Int64("entry_id", id),
		zap.String("session_id", snap.SessionID),
		zap.Int("messages", len(snap.Messages)))
	return id, nil
}

// Delete removes an entry and its messages.
func (a *Archive) Delete(ctx context.Context, id int64) error {
	res, err := a.db.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// List returns entries, newest first. A limit of zero returns all.
func (a *Archive) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, session_id, title, preview, message_count, exported_at, archived_at
		FROM entries ORDER BY archived_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns one entry's metadata.
func (a *Archive) Get(ctx context.Context, id int64) (Entry, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, session_id, title, preview, message_count, exported_at, archived_at
		FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return e, err
}

// Load returns an archived snapshot with its messages in original order.
// Message IDs are empty so that session.Store.Import assigns fresh ones.
func (a *Archive) Load(ctx context.Context, id int64) (session.Snapshot, error) {
	entry, err := a.Get(ctx, id)
	if err != nil {
		return session.Snapshot{}, err
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT role, content, is_error, created_at
		FROM messages WHERE entry_id = ? ORDER BY seq`, id)
	if err != nil {
		return session.Snapshot{}, err
	}
	defer rows.Close()

	snap := session.Snapshot{
		Timestamp: entry.ExportedAt,
		SessionID: entry.SessionID,
		Title:     entry.Title,
	}
	for rows.Next() {
		var (
			role    string
			msg     model.Message
			created int64
		)
		if err := rows.Scan(&role, &msg.Content, &msg.IsError, &created); err != nil {
			return session.Snapshot{}, err
		}
		if msg.Role, err = model.ParseRole(role); err != nil {
			return session.Snapshot{}, err
		}
		msg.Timestamp = time.UnixMilli(created)
		snap.Messages = append(snap.Messages, msg)
	}
	return snap, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e                  Entry
		exported, archived int64
	)
	if err := s.Scan(&e.ID, &e.SessionID, &e.Title, &e.Preview, &e.MessageCount, &exported, &archived); err != nil {
		return Entry{}, err
	}
	e.ExportedAt = time.UnixMilli(exported)
	e.ArchivedAt = time.UnixMilli(archived)
	return e, nil
}

// preview returns the first user message, single-lined and truncated.
func preview(msgs []model.Message) string {
	for _, m := range msgs {
		if m.IsUser() {
			return util.TruncateRunes(util.SingleLine(m.Content), previewLength)
		}
	}
	return ""
}
