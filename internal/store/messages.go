package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/groverooms/grove/internal/euphid"
	"github.com/groverooms/grove/internal/wire"
)

// InsertMessageBatch upserts msgs (which must be sorted ascending by id
// and belong to room) and extends the room's span index. nextID is the
// id of the next known message after this batch, or nil. The span added
// is [first id, nextID], or [first id, last id] when nextID is nil; an
// empty batch adds [start of history, nextID].
// ownUserID is the local user's session user id; messages it sent, and
// messages that predate the room's first_joined timestamp, are marked
// seen on insert.
func (d *DB) InsertMessageBatch(ctx context.Context, room RoomID, msgs []wire.Message, nextID *euphid.ID, ownUserID string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: insert batch begin: %w", err)
	}
	defer tx.Rollback()

	var firstJoined sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT first_joined FROM rooms WHERE domain = ? AND room = ?
	`, room.Domain, room.Name).Scan(&firstJoined)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("store: insert batch first_joined: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (
			domain, room, id, parent, previous_edit_id, time, content,
			edited, deleted, truncated, user_id, name, server_id,
			server_era, session_id, is_staff, is_manager,
			client_address, real_client_address, seen
		) VALUES (
			?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?
		)
		ON CONFLICT (domain, room, id) DO UPDATE SET
			parent = excluded.parent,
			previous_edit_id = excluded.previous_edit_id,
			time = excluded.time,
			content = excluded.content,
			edited = excluded.edited,
			deleted = excluded.deleted,
			truncated = excluded.truncated,
			user_id = excluded.user_id,
			name = excluded.name,
			server_id = excluded.server_id,
			server_era = excluded.server_era,
			session_id = excluded.session_id,
			is_staff = excluded.is_staff,
			is_manager = excluded.is_manager,
			client_address = excluded.client_address,
			real_client_address = excluded.real_client_address
	`)
	if err != nil {
		return fmt.Errorf("store: insert batch prepare: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		var parent, prevEdit sql.NullInt64
		if m.Parent != nil {
			parent = sql.NullInt64{Int64: int64(*m.Parent), Valid: true}
		}
		if m.PreviousEditID != nil {
			prevEdit = sql.NullInt64{Int64: int64(*m.PreviousEditID), Valid: true}
		}
		ownMsg := m.Sender.ID == ownUserID
		preRead := firstJoined.Valid && m.Time < firstJoined.Int64
		seen := ownMsg || preRead

		_, err := stmt.ExecContext(ctx,
			room.Domain, room.Name, int64(m.ID), parent, prevEdit, m.Time, m.Content,
			nullInt64Ptr(m.EditedTime), nullInt64Ptr(m.DeletedTime), boolToInt(m.Truncated),
			m.Sender.ID, m.Sender.Name, m.Sender.ServerID,
			m.Sender.ServerEra, m.Sender.SessionID, boolToInt(m.Sender.IsStaff), boolToInt(m.Sender.IsManager),
			nullString(m.Sender.ClientAddress), nullString(m.Sender.RealClientAddress),
			boolToInt(seen),
		)
		if err != nil {
			return fmt.Errorf("store: insert message %s: %w", m.ID, err)
		}
	}

	if len(msgs) == 0 {
		if err := addSpanTx(ctx, tx, room, nil, nextID); err != nil {
			return err
		}
	} else {
		first := msgs[0].ID
		end := nextID
		if end == nil {
			last := msgs[len(msgs)-1].ID
			end = &last
		}
		if err := addSpanTx(ctx, tx, room, &first, end); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func nullInt64Ptr(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanMessage(row interface {
	Scan(dest ...any) error
}) (wire.Message, error) {
	var m wire.Message
	var parent, prevEdit, edited, deleted sql.NullInt64
	var clientAddr, realClientAddr sql.NullString
	var isStaff, isManager, truncated int

	err := row.Scan(
		&m.ID, &parent, &prevEdit, &m.Time, &m.Content,
		&edited, &deleted, &truncated,
		&m.Sender.ID, &m.Sender.Name, &m.Sender.ServerID,
		&m.Sender.ServerEra, &m.Sender.SessionID, &isStaff, &isManager,
		&clientAddr, &realClientAddr,
	)
	if err != nil {
		return wire.Message{}, err
	}

	if parent.Valid {
		p := euphid.ID(parent.Int64)
		m.Parent = &p
	}
	if prevEdit.Valid {
		p := euphid.ID(prevEdit.Int64)
		m.PreviousEditID = &p
	}
	if edited.Valid {
		m.EditedTime = &edited.Int64
	}
	if deleted.Valid {
		m.DeletedTime = &deleted.Int64
	}
	m.Truncated = truncated != 0
	m.Sender.IsStaff = isStaff != 0
	m.Sender.IsManager = isManager != 0
	m.Sender.ClientAddress = clientAddr.String
	m.Sender.RealClientAddress = realClientAddr.String

	return m, nil
}

const messageColumns = `
	id, parent, previous_edit_id, time, content,
	edited, deleted, truncated, user_id, name, server_id,
	server_era, session_id, is_staff, is_manager,
	client_address, real_client_address
`

// Tree returns every message in the transitive closure of rootID's
// children, sorted by id ascending.
func (d *DB) Tree(ctx context.Context, room RoomID, rootID euphid.ID) ([]wire.Message, error) {
	rows, err := d.sql.QueryContext(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT ?
			UNION ALL
			SELECT m.id FROM messages m
			JOIN subtree s ON m.parent = s.id
			WHERE m.domain = ? AND m.room = ?
		)
		SELECT `+messageColumns+`
		FROM messages
		WHERE domain = ? AND room = ? AND id IN (SELECT id FROM subtree)
		ORDER BY id ASC
	`, int64(rootID), room.Domain, room.Name, room.Domain, room.Name)
	if err != nil {
		return nil, fmt.Errorf("store: tree(%s): %w", rootID, err)
	}
	defer rows.Close()

	var out []wire.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: tree(%s) scan: %w", rootID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Path walks parent pointers from id up to its root, returning the
// chain ordered ascending (root first). The walk stops at the first id
// whose message is not in the store; that id is still included, as the
// first element.
func (d *DB) Path(ctx context.Context, room RoomID, id euphid.ID) ([]euphid.ID, error) {
	var path []euphid.ID
	cur := id
	for {
		path = append(path, cur)

		var parent sql.NullInt64
		err := d.sql.QueryRowContext(ctx, `
			SELECT parent FROM messages WHERE domain = ? AND room = ? AND id = ?
		`, room.Domain, room.Name, int64(cur)).Scan(&parent)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("store: path(%s): %w", id, err)
		}
		if !parent.Valid {
			break
		}
		cur = euphid.ID(parent.Int64)
	}

	// reverse into ascending order
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

func (d *DB) oneID(ctx context.Context, query string, args ...any) (euphid.ID, bool, error) {
	var v int64
	err := d.sql.QueryRowContext(ctx, query, args...).Scan(&v)
	if err == sql.ErrNoRows {
		return euphid.None, false, nil
	}
	if err != nil {
		return euphid.None, false, err
	}
	return euphid.ID(v), true, nil
}

// FirstRootID and LastRootID return the oldest/newest root (parent IS
// NULL) message id in room.
func (d *DB) FirstRootID(ctx context.Context, room RoomID) (euphid.ID, bool, error) {
	id, ok, err := d.oneID(ctx, `
		SELECT id FROM messages WHERE domain = ? AND room = ? AND parent IS NULL
		ORDER BY id ASC LIMIT 1
	`, room.Domain, room.Name)
	return id, ok, wrapErr(err, "first_root_id")
}

func (d *DB) LastRootID(ctx context.Context, room RoomID) (euphid.ID, bool, error) {
	id, ok, err := d.oneID(ctx, `
		SELECT id FROM messages WHERE domain = ? AND room = ? AND parent IS NULL
		ORDER BY id DESC LIMIT 1
	`, room.Domain, room.Name)
	return id, ok, wrapErr(err, "last_root_id")
}

func (d *DB) PrevRootID(ctx context.Context, room RoomID, id euphid.ID) (euphid.ID, bool, error) {
	got, ok, err := d.oneID(ctx, `
		SELECT id FROM messages WHERE domain = ? AND room = ? AND parent IS NULL AND id < ?
		ORDER BY id DESC LIMIT 1
	`, room.Domain, room.Name, int64(id))
	return got, ok, wrapErr(err, "prev_root_id")
}

func (d *DB) NextRootID(ctx context.Context, room RoomID, id euphid.ID) (euphid.ID, bool, error) {
	got, ok, err := d.oneID(ctx, `
		SELECT id FROM messages WHERE domain = ? AND room = ? AND parent IS NULL AND id > ?
		ORDER BY id ASC LIMIT 1
	`, room.Domain, room.Name, int64(id))
	return got, ok, wrapErr(err, "next_root_id")
}

func (d *DB) OldestMsgID(ctx context.Context, room RoomID) (euphid.ID, bool, error) {
	id, ok, err := d.oneID(ctx, `
		SELECT id FROM messages WHERE domain = ? AND room = ? ORDER BY id ASC LIMIT 1
	`, room.Domain, room.Name)
	return id, ok, wrapErr(err, "oldest_msg_id")
}

func (d *DB) NewestMsgID(ctx context.Context, room RoomID) (euphid.ID, bool, error) {
	id, ok, err := d.oneID(ctx, `
		SELECT id FROM messages WHERE domain = ? AND room = ? ORDER BY id DESC LIMIT 1
	`, room.Domain, room.Name)
	return id, ok, wrapErr(err, "newest_msg_id")
}

func (d *DB) OlderMsgID(ctx context.Context, room RoomID, id euphid.ID) (euphid.ID, bool, error) {
	got, ok, err := d.oneID(ctx, `
		SELECT id FROM messages WHERE domain = ? AND room = ? AND id < ? ORDER BY id DESC LIMIT 1
	`, room.Domain, room.Name, int64(id))
	return got, ok, wrapErr(err, "older_msg_id")
}

func (d *DB) NewerMsgID(ctx context.Context, room RoomID, id euphid.ID) (euphid.ID, bool, error) {
	got, ok, err := d.oneID(ctx, `
		SELECT id FROM messages WHERE domain = ? AND room = ? AND id > ? ORDER BY id ASC LIMIT 1
	`, room.Domain, room.Name, int64(id))
	return got, ok, wrapErr(err, "newer_msg_id")
}

func (d *DB) OlderUnseenMsgID(ctx context.Context, room RoomID, id euphid.ID) (euphid.ID, bool, error) {
	got, ok, err := d.oneID(ctx, `
		SELECT id FROM messages WHERE domain = ? AND room = ? AND id < ? AND seen = 0
		ORDER BY id DESC LIMIT 1
	`, room.Domain, room.Name, int64(id))
	return got, ok, wrapErr(err, "older_unseen_msg_id")
}

func (d *DB) NewerUnseenMsgID(ctx context.Context, room RoomID, id euphid.ID) (euphid.ID, bool, error) {
	got, ok, err := d.oneID(ctx, `
		SELECT id FROM messages WHERE domain = ? AND room = ? AND id > ? AND seen = 0
		ORDER BY id ASC LIMIT 1
	`, room.Domain, room.Name, int64(id))
	return got, ok, wrapErr(err, "newer_unseen_msg_id")
}

// UnseenCount returns the number of messages in room with seen = false.
func (d *DB) UnseenCount(ctx context.Context, room RoomID) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE domain = ? AND room = ? AND seen = 0
	`, room.Domain, room.Name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: unseen_count: %w", err)
	}
	return n, nil
}

// MarkSeen marks a single message seen.
func (d *DB) MarkSeen(ctx context.Context, room RoomID, id euphid.ID) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	_, err := d.sql.ExecContext(ctx, `
		UPDATE messages SET seen = 1 WHERE domain = ? AND room = ? AND id = ?
	`, room.Domain, room.Name, int64(id))
	if err != nil {
		return fmt.Errorf("store: mark_seen(%s): %w", id, err)
	}
	return nil
}

// MarkOlderSeen marks every message with id <= upTo seen ("mark older
// seen" from the cursor movement's action vocabulary).
func (d *DB) MarkOlderSeen(ctx context.Context, room RoomID, upTo euphid.ID) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	_, err := d.sql.ExecContext(ctx, `
		UPDATE messages SET seen = 1 WHERE domain = ? AND room = ? AND id <= ?
	`, room.Domain, room.Name, int64(upTo))
	if err != nil {
		return fmt.Errorf("store: mark_older_seen(%s): %w", upTo, err)
	}
	return nil
}

// MarkVisibleSeen marks exactly the given ids seen in one statement,
// used to mark a frame's visible blocks seen without round-tripping
// once per message.
func (d *DB) MarkVisibleSeen(ctx context.Context, room RoomID, ids []euphid.ID) error {
	if len(ids) == 0 {
		return nil
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, room.Domain, room.Name)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, int64(id))
	}
	query := fmt.Sprintf(`UPDATE messages SET seen = 1 WHERE domain = ? AND room = ? AND id IN (%s)`,
		strings.Join(placeholders, ","))
	if _, err := d.sql.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: mark_visible_seen: %w", err)
	}
	return nil
}

func wrapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("store: %s: %w", op, err)
}
