package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"dirindex/internal/metrics"
)

const entryColumns = `id, root_id, path, parent_path, name, extension, size, mtime, is_dir, generation`

func scanEntry(row interface{ Scan(...interface{}) error }) (*FileEntry, error) {
	var e FileEntry
	var mtime int64

	err := row.Scan(
		&e.ID, &e.RootID, &e.Path, &e.ParentPath, &e.Name, &e.Extension,
		&e.Size, &mtime, &e.IsDir, &e.Generation,
	)
	if err != nil {
		return nil, err
	}

	e.ModTime = time.Unix(mtime, 0)
	return &e, nil
}

// EntrySignature is the stored identity used by the scanner's diff
// policy: an entry is unchanged when size and mtime both match.
type EntrySignature struct {
	Size  int64
	MTime int64
	IsDir bool
}

// LoadSignatures returns path → signature for every entry under the
// root. The scanner diffs enumerated metadata against this map to skip
// writes for unchanged entries.
func (s *Store) LoadSignatures(ctx context.Context, rootID int64) (map[string]EntrySignature, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, size, mtime, is_dir FROM file_entries WHERE root_id = ?`, rootID)
	if err != nil {
		return nil, storageErr("load signatures", err)
	}
	defer rows.Close()

	sigs := make(map[string]EntrySignature)
	for rows.Next() {
		var path string
		var sig EntrySignature
		if err := rows.Scan(&path, &sig.Size, &sig.MTime, &sig.IsDir); err != nil {
			return nil, storageErr("load signatures", err)
		}
		sigs[path] = sig
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("load signatures", err)
	}
	return sigs, nil
}

// UpsertEntries writes a batch of changed entries in one transaction.
// The batch either fully commits or fully rolls back; concurrent
// readers observe pre- or post-batch state, never a partial batch.
func (s *Store) UpsertEntries(ctx context.Context, entries []FileEntry) error {
	if len(entries) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_batch", start, err) }()

	release, err := s.acquireWrite()
	if err != nil {
		return err
	}
	defer release()

	tx, txStart, err := s.beginTx()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO file_entries (root_id, path, parent_path, name, extension, size, mtime, is_dir, generation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(root_id, path) DO UPDATE SET
			parent_path = excluded.parent_path,
			name = excluded.name,
			extension = excluded.extension,
			size = excluded.size,
			mtime = excluded.mtime,
			is_dir = excluded.is_dir,
			generation = excluded.generation`)
	if err != nil {
		err = storageErr("upsert batch", err)
		return s.endTx(tx, txStart, err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		if _, err = stmt.ExecContext(ctx,
			e.RootID, e.Path, e.ParentPath, e.Name, e.Extension,
			e.Size, e.ModTime.Unix(), e.IsDir, e.Generation,
		); err != nil {
			err = storageErr("upsert batch", err)
			return s.endTx(tx, txStart, err)
		}
	}

	err = s.endTx(tx, txStart, nil)
	if err == nil {
		metrics.StoreRowsAffected.WithLabelValues("upsert_batch").Observe(float64(len(entries)))
	}
	return err
}

// TouchEntries stamps unchanged entries with the current scan
// generation so DeleteMissing does not purge them. This is the only
// write an unchanged entry receives.
func (s *Store) TouchEntries(ctx context.Context, rootID, generation int64, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_batch", start, err) }()

	release, err := s.acquireWrite()
	if err != nil {
		return err
	}
	defer release()

	tx, txStart, err := s.beginTx()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE file_entries SET generation = ? WHERE root_id = ? AND path = ?`)
	if err != nil {
		err = storageErr("touch entries", err)
		return s.endTx(tx, txStart, err)
	}
	defer stmt.Close()

	for _, p := range paths {
		if _, err = stmt.ExecContext(ctx, generation, rootID, p); err != nil {
			err = storageErr("touch entries", err)
			return s.endTx(tx, txStart, err)
		}
	}

	return s.endTx(tx, txStart, nil)
}

// DeleteEntries removes specific paths (and, for directories, their
// whole subtrees) under a root. Used by incremental scans when a
// change event reports a removal.
func (s *Store) DeleteEntries(ctx context.Context, rootID int64, paths []string) (int64, error) {
	if len(paths) == 0 {
		return 0, nil
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("delete_missing", start, err) }()

	release, err := s.acquireWrite()
	if err != nil {
		return 0, err
	}
	defer release()

	tx, txStart, err := s.beginTx()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, p := range paths {
		// Remove the entry itself and anything indexed beneath it.
		res, execErr := tx.ExecContext(ctx, `
			DELETE FROM file_entries
			WHERE root_id = ? AND (path = ? OR path LIKE ? ESCAPE '\')`,
			rootID, p, likePrefix(p)+"%")
		if execErr != nil {
			err = storageErr("delete entries", execErr)
			return 0, s.endTx(tx, txStart, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	err = s.endTx(tx, txStart, nil)
	if err == nil && total > 0 {
		metrics.StoreRowsAffected.WithLabelValues("delete_missing").Observe(float64(total))
	}
	return total, err
}

// DeleteMissing purges entries under the root whose last-seen
// generation predates the given one. Called only after a full scan
// completes successfully, so a transient enumeration failure can never
// mass-delete an index.
func (s *Store) DeleteMissing(ctx context.Context, rootID, generation int64) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_missing", start, err) }()

	release, err := s.acquireWrite()
	if err != nil {
		return 0, err
	}
	defer release()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM file_entries WHERE root_id = ? AND generation < ?`,
		rootID, generation)
	if err != nil {
		err = storageErr("delete missing", err)
		return 0, err
	}

	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		metrics.StoreRowsAffected.WithLabelValues("delete_missing").Observe(float64(deleted))
	}
	return deleted, nil
}

// GetEntry returns a single entry by root and path, or ErrNotFound.
func (s *Store) GetEntry(ctx context.Context, rootID int64, path string) (*FileEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	entry, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM file_entries WHERE root_id = ? AND path = ?`,
		rootID, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get entry", err)
	}
	return entry, nil
}

// ListChildren returns the direct children of a directory for
// hierarchical browsing, directories first, then by name.
func (s *Store) ListChildren(ctx context.Context, rootID int64, parentPath string) ([]FileEntry, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_children", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM file_entries
		WHERE root_id = ? AND parent_path = ?
		ORDER BY is_dir DESC, name COLLATE NOCASE`,
		rootID, parentPath)
	if err != nil {
		err = storageErr("list children", err)
		return nil, err
	}
	defer rows.Close()

	var entries []FileEntry
	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			err = storageErr("list children", scanErr)
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = storageErr("list children", rowsErr)
		return nil, err
	}
	return entries, nil
}

// ExportRoot streams every entry under a root ordered by path. The
// classification pipeline consumes this as read-only input.
func (s *Store) ExportRoot(ctx context.Context, rootID int64, fn func(FileEntry) error) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("export_root", start, err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM file_entries
		WHERE root_id = ? ORDER BY path`, rootID)
	if err != nil {
		err = storageErr("export root", err)
		return err
	}
	defer rows.Close()

	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			err = storageErr("export root", scanErr)
			return err
		}
		if err = fn(*entry); err != nil {
			return err
		}
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = storageErr("export root", rowsErr)
	}
	return err
}

// CalculateStats computes current index statistics.
func (s *Store) CalculateStats(ctx context.Context) (IndexStats, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stats := IndexStats{RootsByStatus: make(map[string]int)}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM file_entries WHERE is_dir = 0`, &stats.TotalFiles},
		{`SELECT COUNT(*) FROM file_entries WHERE is_dir = 1`, &stats.TotalDirs},
		{`SELECT COUNT(*) FROM watched_roots`, &stats.TotalRoots},
		{`SELECT COUNT(*) FROM scan_errors WHERE resolved = 0`, &stats.ErrorCount},
	}

	for _, q := range counts {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return stats, storageErr("calculate stats", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM watched_roots GROUP BY status`)
	if err != nil {
		return stats, storageErr("calculate stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, storageErr("calculate stats", err)
		}
		stats.RootsByStatus[status] = count
	}

	var lastSync sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(last_sync) FROM watched_roots`).Scan(&lastSync); err == nil && lastSync.Valid {
		stats.LastScanAt = time.Unix(lastSync.Int64, 0)
	}

	return stats, rows.Err()
}

// ExtensionCounts returns how many files exist per extension, most
// common first.
func (s *Store) ExtensionCounts(ctx context.Context) ([]ExtensionCount, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT extension, COUNT(*) FROM file_entries
		WHERE is_dir = 0
		GROUP BY extension ORDER BY COUNT(*) DESC, extension`)
	if err != nil {
		return nil, storageErr("extension counts", err)
	}
	defer rows.Close()

	var counts []ExtensionCount
	for rows.Next() {
		var ec ExtensionCount
		if err := rows.Scan(&ec.Extension, &ec.Count); err != nil {
			return nil, storageErr("extension counts", err)
		}
		counts = append(counts, ec)
	}
	return counts, rows.Err()
}

// likePrefix escapes LIKE wildcards in a path prefix and appends the
// separator so "/data/a" does not match "/data/ab".
func likePrefix(path string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(path)
	if strings.HasPrefix(path, `\\`) {
		return escaped + `\\`
	}
	return escaped + "/"
}
