// Package store is the persistent, SQLite-backed record of rooms,
// messages, known-contiguous spans, and cookies. It is the single
// writer for all of these; reads and writes share one connection.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"
)

// DB wraps a single SQLite connection pool. All writes are serialised
// through writeMu, matching spec §4.E's "one writer at a time"; reads
// skip writeMu but go through the same single-connection pool, so they
// do not run in parallel with each other or with a write.
type DB struct {
	sql    *sql.DB
	log    *zap.Logger
	writeMu sync.Mutex
}

// Open opens (creating if necessary) the SQLite database at path and
// brings its schema up to date. path may be ":memory:" for tests.
func Open(ctx context.Context, path string, log *zap.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(DELETE)", path)
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared&_pragma=foreign_keys(1)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite only supports one writer; a single connection keeps the Go
	// pool from serialising writes behind SQLITE_BUSY retries.
	sqlDB.SetMaxOpenConns(1)

	if err := migrate(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &DB{sql: sqlDB, log: log}, nil
}

// Close flushes and closes the underlying connection. Callers must await
// it explicitly before process exit (spec §5).
func (d *DB) Close() error {
	return d.sql.Close()
}

// EnsureRoom records that room has been joined, setting first_joined on
// first sight and always refreshing last_joined.
func (d *DB) EnsureRoom(ctx context.Context, room RoomID, now int64) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	_, err := d.sql.ExecContext(ctx, `
		INSERT INTO rooms (domain, room, first_joined, last_joined)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (domain, room) DO UPDATE SET last_joined = excluded.last_joined
	`, room.Domain, room.Name, now, now)
	if err != nil {
		return fmt.Errorf("store: ensure room %s/%s: %w", room.Domain, room.Name, err)
	}
	return nil
}

// FirstJoined returns the room's first_joined timestamp, or 0 if the
// room is unknown. InsertMessageBatch reads the same column inside its
// own transaction to decide whether a message predates the local user's
// presence (and is therefore pre-read).
func (d *DB) FirstJoined(ctx context.Context, room RoomID) (int64, error) {
	var firstJoined sql.NullInt64
	err := d.sql.QueryRowContext(ctx, `
		SELECT first_joined FROM rooms WHERE domain = ? AND room = ?
	`, room.Domain, room.Name).Scan(&firstJoined)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: first_joined %s/%s: %w", room.Domain, room.Name, err)
	}
	return firstJoined.Int64, nil
}

// Compact reclaims space freed by deletions; exposed as an explicit
// maintenance command (spec §4.E "Garbage collect").
func (d *DB) Compact(ctx context.Context) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if _, err := d.sql.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("store: vacuum: %w", err)
	}
	return nil
}
