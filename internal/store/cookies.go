package store

import (
	"context"
	"fmt"
)

// Cookies returns every cookie currently stored for domain. Servers
// re-set the full jar on each response, so callers replace rather than
// merge.
func (d *DB) Cookies(ctx context.Context, domain string) ([]string, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT cookie FROM cookies WHERE domain = ?`, domain)
	if err != nil {
		return nil, fmt.Errorf("store: cookies(%s): %w", domain, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("store: cookies(%s) scan: %w", domain, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetCookies replaces the entire jar for domain with cookies.
func (d *DB) SetCookies(ctx context.Context, domain string, cookies []string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: set_cookies(%s) begin: %w", domain, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cookies WHERE domain = ?`, domain); err != nil {
		return fmt.Errorf("store: set_cookies(%s) clear: %w", domain, err)
	}
	for _, c := range cookies {
		if _, err := tx.ExecContext(ctx, `INSERT INTO cookies (domain, cookie) VALUES (?, ?)`, domain, c); err != nil {
			return fmt.Errorf("store: set_cookies(%s) insert: %w", domain, err)
		}
	}
	return tx.Commit()
}

// ClearCookies empties the jar for domain, or for every domain if domain
// is empty.
func (d *DB) ClearCookies(ctx context.Context, domain string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	var err error
	if domain == "" {
		_, err = d.sql.ExecContext(ctx, `DELETE FROM cookies`)
	} else {
		_, err = d.sql.ExecContext(ctx, `DELETE FROM cookies WHERE domain = ?`, domain)
	}
	if err != nil {
		return fmt.Errorf("store: clear_cookies(%s): %w", domain, err)
	}
	return nil
}
