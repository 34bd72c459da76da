package store

import (
	"context"
	"time"
)

// InsertScanError records a per-entry failure for the errors view.
// Scan processing continues; these never abort a scan.
func (s *Store) InsertScanError(ctx context.Context, rootID int64, path, message string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("insert_scan_error", start, err) }()

	release, err := s.acquireWrite()
	if err != nil {
		return err
	}
	defer release()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scan_errors (root_id, path, message) VALUES (?, ?, ?)`,
		rootID, path, message)
	if err != nil {
		err = storageErr("insert scan error", err)
	}
	return err
}

// ListScanErrors returns recorded failures, optionally filtered to one
// root. Resolved errors are excluded unless includeResolved is set.
func (s *Store) ListScanErrors(ctx context.Context, rootID int64, includeResolved bool) ([]ScanError, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `SELECT id, root_id, path, message, created_at, resolved FROM scan_errors WHERE 1=1`
	var args []interface{}

	if rootID > 0 {
		query += ` AND root_id = ?`
		args = append(args, rootID)
	}
	if !includeResolved {
		query += ` AND resolved = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT 500`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list scan errors", err)
	}
	defer rows.Close()

	var result []ScanError
	for rows.Next() {
		var se ScanError
		var createdAt int64
		if err := rows.Scan(&se.ID, &se.RootID, &se.Path, &se.Message, &createdAt, &se.Resolved); err != nil {
			return nil, storageErr("list scan errors", err)
		}
		se.CreatedAt = time.Unix(createdAt, 0)
		result = append(result, se)
	}
	return result, rows.Err()
}

// ResolveScanError marks one recorded failure as handled.
func (s *Store) ResolveScanError(ctx context.Context, id int64) error {
	release, err := s.acquireWrite()
	if err != nil {
		return err
	}
	defer release()

	res, err := s.db.ExecContext(ctx,
		`UPDATE scan_errors SET resolved = 1 WHERE id = ?`, id)
	if err != nil {
		return storageErr("resolve scan error", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearScanErrors deletes recorded failures, optionally scoped to a root.
func (s *Store) ClearScanErrors(ctx context.Context, rootID int64) error {
	release, err := s.acquireWrite()
	if err != nil {
		return err
	}
	defer release()

	if rootID > 0 {
		_, err = s.db.ExecContext(ctx, `DELETE FROM scan_errors WHERE root_id = ?`, rootID)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM scan_errors`)
	}
	if err != nil {
		return storageErr("clear scan errors", err)
	}
	return nil
}
