package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/groverooms/grove/internal/euphid"
)

// span is a half-open... actually closed interval [start, end] of
// message ids known to be fully downloaded contiguously. A nil Start
// means "extends to the beginning of history"; a nil End means "extends
// to the end of history".
type span struct {
	Start *euphid.ID
	End   *euphid.ID
}

// Span is the exported, read-only view of a span row.
type Span = span

// AddSpan inserts [start, end] into room's span index and reduces the
// whole set to canonical (sorted, non-overlapping, non-adjacent) form.
func (d *DB) AddSpan(ctx context.Context, room RoomID, start, end *euphid.ID) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: add_span begin: %w", err)
	}
	defer tx.Rollback()

	if err := addSpanTx(ctx, tx, room, start, end); err != nil {
		return err
	}
	return tx.Commit()
}

func addSpanTx(ctx context.Context, tx *sql.Tx, room RoomID, start, end *euphid.ID) error {
	spans, err := loadSpansTx(ctx, tx, room)
	if err != nil {
		return err
	}
	spans = append(spans, span{Start: start, End: end})
	merged := mergeSpans(spans)

	if _, err := tx.ExecContext(ctx, `DELETE FROM spans WHERE domain = ? AND room = ?`, room.Domain, room.Name); err != nil {
		return fmt.Errorf("store: add_span clear: %w", err)
	}

	for _, s := range merged {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO spans (domain, room, start, end) VALUES (?, ?, ?, ?)
		`, room.Domain, room.Name, idPtrToSQL(s.Start), idPtrToSQL(s.End)); err != nil {
			return fmt.Errorf("store: add_span insert: %w", err)
		}
	}
	return nil
}

func loadSpansTx(ctx context.Context, tx *sql.Tx, room RoomID) ([]span, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT start, end FROM spans WHERE domain = ? AND room = ?
	`, room.Domain, room.Name)
	if err != nil {
		return nil, fmt.Errorf("store: load spans: %w", err)
	}
	defer rows.Close()

	var out []span
	for rows.Next() {
		var start, end sql.NullInt64
		if err := rows.Scan(&start, &end); err != nil {
			return nil, fmt.Errorf("store: load spans scan: %w", err)
		}
		out = append(out, span{Start: sqlToIDPtr(start), End: sqlToIDPtr(end)})
	}
	return out, rows.Err()
}

// mergeSpans sorts spans by start (nil/−∞ first) and sweeps left to
// right, merging any span whose start is <= the open span's end.
func mergeSpans(spans []span) []span {
	if len(spans) == 0 {
		return nil
	}

	sort.SliceStable(spans, func(i, j int) bool {
		return startLess(spans[i].Start, spans[j].Start)
	})

	var out []span
	open := spans[0]
	for _, s := range spans[1:] {
		if spanStartsBeforeOrAt(s.Start, open.End) {
			if endGreater(s.End, open.End) {
				open.End = s.End
			}
			continue
		}
		out = append(out, open)
		open = s
	}
	out = append(out, open)
	return out
}

// startLess orders nil (−∞) before any concrete value, and concrete
// values by their numeric id.
func startLess(a, b *euphid.ID) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return *a < *b
}

// spanStartsBeforeOrAt reports whether the next span's start is <= the
// open span's end (so it should be merged in). A nil end means the open
// span already extends to +∞, so everything merges; a nil start always
// qualifies.
func spanStartsBeforeOrAt(start, openEnd *euphid.ID) bool {
	if start == nil {
		return true
	}
	if openEnd == nil {
		return true
	}
	return *start <= *openEnd
}

func endGreater(a, b *euphid.ID) bool {
	if a == nil {
		return true // a is +∞
	}
	if b == nil {
		return false
	}
	return *a > *b
}

func idPtrToSQL(id *euphid.ID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func sqlToIDPtr(v sql.NullInt64) *euphid.ID {
	if !v.Valid {
		return nil
	}
	id := euphid.ID(v.Int64)
	return &id
}

// LastSpan returns the span with the greatest start (nil sorts first,
// so a nil-start span is "last" only if it is the sole span).
func (d *DB) LastSpan(ctx context.Context, room RoomID) (Span, bool, error) {
	var start, end sql.NullInt64
	err := d.sql.QueryRowContext(ctx, `
		SELECT start, end FROM spans WHERE domain = ? AND room = ?
		ORDER BY start DESC LIMIT 1
	`, room.Domain, room.Name).Scan(&start, &end)
	if err == sql.ErrNoRows {
		return Span{}, false, nil
	}
	if err != nil {
		return Span{}, false, fmt.Errorf("store: last_span: %w", err)
	}
	return Span{Start: sqlToIDPtr(start), End: sqlToIDPtr(end)}, true, nil
}

// Spans returns every span for room, sorted ascending by start.
func (d *DB) Spans(ctx context.Context, room RoomID) ([]Span, error) {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("store: spans begin: %w", err)
	}
	defer tx.Rollback()

	spans, err := loadSpansTx(ctx, tx, room)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(spans, func(i, j int) bool { return startLess(spans[i].Start, spans[j].Start) })
	return spans, nil
}
