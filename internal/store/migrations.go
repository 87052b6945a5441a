package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one schema version's worth of DDL/DML, applied inside a
// single transaction. Adding a migration bumps the schema to
// len(migrations).
type migration func(ctx context.Context, tx *sql.Tx) error

// migrations is applied in order, each exactly once, keyed by the
// monotonically increasing schema version stored in the schema_version
// table. The shape mirrors the original client's three-step evolution:
// base schema, then a seen-tracking column, then domain-qualified room
// keys.
var migrations = []migration{
	migrateCreateBaseSchema,
	migrateAddSeenColumn,
	migrateQualifyRoomsByDomain,
}

func migrateCreateBaseSchema(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE rooms (
			room TEXT PRIMARY KEY,
			first_joined INTEGER,
			last_joined INTEGER
		) STRICT`,
		`CREATE TABLE messages (
			room TEXT NOT NULL,
			id INTEGER NOT NULL,
			parent INTEGER,
			previous_edit_id INTEGER,
			time INTEGER NOT NULL,
			content TEXT NOT NULL,
			edited INTEGER,
			deleted INTEGER,
			truncated INTEGER NOT NULL DEFAULT 0,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			server_id TEXT NOT NULL,
			server_era TEXT NOT NULL,
			session_id TEXT NOT NULL,
			is_staff INTEGER NOT NULL DEFAULT 0,
			is_manager INTEGER NOT NULL DEFAULT 0,
			client_address TEXT,
			real_client_address TEXT,
			PRIMARY KEY (room, id),
			FOREIGN KEY (room) REFERENCES rooms (room) ON DELETE CASCADE
		) STRICT`,
		`CREATE INDEX messages_room_id_parent ON messages (room, id, parent)`,
		`CREATE INDEX messages_room_parent_id ON messages (room, parent, id)`,
		`CREATE TABLE spans (
			room TEXT NOT NULL,
			start INTEGER,
			end INTEGER,
			UNIQUE (room, start, end),
			FOREIGN KEY (room) REFERENCES rooms (room) ON DELETE CASCADE,
			CHECK (start IS NULL OR end IS NOT NULL)
		) STRICT`,
		`CREATE TABLE cookies (
			domain TEXT NOT NULL,
			cookie TEXT NOT NULL
		) STRICT`,
	}
	return execAll(ctx, tx, stmts)
}

func migrateAddSeenColumn(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`ALTER TABLE messages ADD COLUMN seen INTEGER NOT NULL DEFAULT 1`,
		`CREATE INDEX messages_room_id_seen ON messages (room, id, seen)`,
	}
	return execAll(ctx, tx, stmts)
}

// migrateQualifyRoomsByDomain recreates rooms/messages/spans keyed by
// (domain, room) instead of room alone, so the same room name on two
// different servers is tracked separately.
func migrateQualifyRoomsByDomain(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`ALTER TABLE rooms RENAME TO rooms_old`,
		`ALTER TABLE messages RENAME TO messages_old`,
		`ALTER TABLE spans RENAME TO spans_old`,

		`CREATE TABLE rooms (
			domain TEXT NOT NULL,
			room TEXT NOT NULL,
			first_joined INTEGER,
			last_joined INTEGER,
			PRIMARY KEY (domain, room)
		) STRICT`,
		`CREATE TABLE messages (
			domain TEXT NOT NULL,
			room TEXT NOT NULL,
			id INTEGER NOT NULL,
			parent INTEGER,
			previous_edit_id INTEGER,
			time INTEGER NOT NULL,
			content TEXT NOT NULL,
			edited INTEGER,
			deleted INTEGER,
			truncated INTEGER NOT NULL DEFAULT 0,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			server_id TEXT NOT NULL,
			server_era TEXT NOT NULL,
			session_id TEXT NOT NULL,
			is_staff INTEGER NOT NULL DEFAULT 0,
			is_manager INTEGER NOT NULL DEFAULT 0,
			client_address TEXT,
			real_client_address TEXT,
			seen INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (domain, room, id),
			FOREIGN KEY (domain, room) REFERENCES rooms (domain, room) ON DELETE CASCADE
		) STRICT`,
		`CREATE INDEX messages_room_id_parent ON messages (domain, room, id, parent)`,
		`CREATE INDEX messages_room_parent_id ON messages (domain, room, parent, id)`,
		`CREATE INDEX messages_room_id_seen ON messages (domain, room, id, seen)`,
		`CREATE TABLE spans (
			domain TEXT NOT NULL,
			room TEXT NOT NULL,
			start INTEGER,
			end INTEGER,
			UNIQUE (domain, room, start, end),
			FOREIGN KEY (domain, room) REFERENCES rooms (domain, room) ON DELETE CASCADE,
			CHECK (start IS NULL OR end IS NOT NULL)
		) STRICT`,

		`INSERT INTO rooms (domain, room, first_joined, last_joined)
			SELECT '', room, first_joined, last_joined FROM rooms_old`,
		`INSERT INTO messages SELECT '', * FROM messages_old`,
		`INSERT INTO spans SELECT '', * FROM spans_old`,

		`DROP TABLE rooms_old`,
		`DROP TABLE messages_old`,
		`DROP TABLE spans_old`,
	}
	return execAll(ctx, tx, stmts)
}

func execAll(ctx context.Context, tx *sql.Tx, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migration statement failed: %w\n%s", err, stmt)
		}
	}
	return nil
}

// migrate brings the schema up to len(migrations), running each pending
// migration as its own transaction so a crash mid-migration leaves the
// database at a well-defined, resumable version.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("store: create schema_version table: %w", err)
	}

	version, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	for version < len(migrations) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: begin migration tx: %w", err)
		}
		if err := migrations[version](ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: clear schema_version: %w", err)
		}
		version++
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: record schema_version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: commit migration %d: %w", version-1, err)
		}
	}
	return nil
}

func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: read schema_version: %w", err)
	}
	return version, nil
}
