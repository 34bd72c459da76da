package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const rootColumns = `id, path, kind, poll_interval, silent_update, enabled, status, last_sync, fail_count, generation, created_at`

func scanRoot(row interface{ Scan(...interface{}) error }) (*WatchedRoot, error) {
	var root WatchedRoot
	var pollSeconds int64
	var lastSync sql.NullInt64
	var createdAt int64

	err := row.Scan(
		&root.ID, &root.Path, &root.Kind, &pollSeconds, &root.SilentUpdate,
		&root.Enabled, &root.Status, &lastSync, &root.FailCount,
		&root.Generation, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	root.PollInterval = time.Duration(pollSeconds) * time.Second
	if lastSync.Valid {
		root.LastSync = time.Unix(lastSync.Int64, 0)
	}
	root.CreatedAt = time.Unix(createdAt, 0)
	return &root, nil
}

// CreateRoot registers a new watched root. The caller is responsible
// for running the conflict check first.
func (s *Store) CreateRoot(ctx context.Context, root *WatchedRoot) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_root", start, err) }()

	release, err := s.acquireWrite()
	if err != nil {
		return err
	}
	defer release()

	if root.Status == "" {
		root.Status = HealthNormal
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO watched_roots (path, kind, poll_interval, silent_update, enabled, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		root.Path, root.Kind, int64(root.PollInterval/time.Second),
		root.SilentUpdate, root.Enabled, root.Status,
	)
	if err != nil {
		err = storageErr("create root", err)
		return err
	}

	root.ID, err = res.LastInsertId()
	if err != nil {
		err = storageErr("create root", err)
	}
	return err
}

// GetRoot returns a watched root by ID, or ErrNotFound.
func (s *Store) GetRoot(ctx context.Context, id int64) (*WatchedRoot, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	root, err := scanRoot(s.db.QueryRowContext(ctx,
		`SELECT `+rootColumns+` FROM watched_roots WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get root", err)
	}
	return root, nil
}

// GetRootByPath returns a watched root by its exact path, or ErrNotFound.
func (s *Store) GetRootByPath(ctx context.Context, path string) (*WatchedRoot, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	root, err := scanRoot(s.db.QueryRowContext(ctx,
		`SELECT `+rootColumns+` FROM watched_roots WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get root by path", err)
	}
	return root, nil
}

// ListRoots returns all watched roots ordered by path.
func (s *Store) ListRoots(ctx context.Context) ([]WatchedRoot, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rootColumns+` FROM watched_roots ORDER BY path`)
	if err != nil {
		return nil, storageErr("list roots", err)
	}
	defer rows.Close()

	var roots []WatchedRoot
	for rows.Next() {
		root, err := scanRoot(rows)
		if err != nil {
			return nil, storageErr("list roots", err)
		}
		roots = append(roots, *root)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list roots", err)
	}
	return roots, nil
}

// ListEnabledRoots returns the roots that should have an active
// watcher or poller attached.
func (s *Store) ListEnabledRoots(ctx context.Context) ([]WatchedRoot, error) {
	roots, err := s.ListRoots(ctx)
	if err != nil {
		return nil, err
	}
	enabled := roots[:0]
	for _, r := range roots {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	return enabled, nil
}

// UpdateRootSync records the outcome of a sync attempt: health status,
// last successful sync timestamp and the consecutive-failure counter.
func (s *Store) UpdateRootSync(ctx context.Context, id int64, status Health, lastSync time.Time, failCount int) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_root", start, err) }()

	release, err := s.acquireWrite()
	if err != nil {
		return err
	}
	defer release()

	if lastSync.IsZero() {
		_, err = s.db.ExecContext(ctx, `
			UPDATE watched_roots SET status = ?, fail_count = ? WHERE id = ?`,
			status, failCount, id)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE watched_roots SET status = ?, last_sync = ?, fail_count = ? WHERE id = ?`,
			status, lastSync.Unix(), failCount, id)
	}
	if err != nil {
		err = storageErr("update root sync", err)
	}
	return err
}

// SetRootEnabled toggles a root. Disabling does not delete indexed
// content; re-enabling resets the failure counter.
func (s *Store) SetRootEnabled(ctx context.Context, id int64, enabled bool) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_root", start, err) }()

	release, err := s.acquireWrite()
	if err != nil {
		return err
	}
	defer release()

	status := HealthDisabled
	failCount := -1
	if enabled {
		status = HealthNormal
		failCount = 0
	}

	var res sql.Result
	if failCount >= 0 {
		res, err = s.db.ExecContext(ctx, `
			UPDATE watched_roots SET enabled = ?, status = ?, fail_count = ? WHERE id = ?`,
			enabled, status, failCount, id)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE watched_roots SET enabled = ?, status = ? WHERE id = ?`,
			enabled, status, id)
	}
	if err != nil {
		err = storageErr("set root enabled", err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
	}
	return err
}

// UpdateRootSettings applies configuration changes (poll interval,
// silent-update flag). Takes effect on the root's next tick.
func (s *Store) UpdateRootSettings(ctx context.Context, id int64, pollInterval time.Duration, silentUpdate bool) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_root", start, err) }()

	release, err := s.acquireWrite()
	if err != nil {
		return err
	}
	defer release()

	res, err := s.db.ExecContext(ctx, `
		UPDATE watched_roots SET poll_interval = ?, silent_update = ? WHERE id = ?`,
		int64(pollInterval/time.Second), silentUpdate, id)
	if err != nil {
		err = storageErr("update root settings", err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
	}
	return err
}

// DeleteRoot removes a watched root and cascades deletion of its file
// entries and scan errors. Callers should consult HasIndexedContent
// first and confirm with the user.
func (s *Store) DeleteRoot(ctx context.Context, id int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_root", start, err) }()

	release, err := s.acquireWrite()
	if err != nil {
		return err
	}
	defer release()

	res, err := s.db.ExecContext(ctx, `DELETE FROM watched_roots WHERE id = ?`, id)
	if err != nil {
		err = storageErr("delete root", err)
		return err
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		err = ErrNotFound
		return err
	}
	return nil
}

// NextGeneration atomically increments and returns the root's scan
// generation counter. Called once at the start of every full scan.
func (s *Store) NextGeneration(ctx context.Context, id int64) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("next_generation", start, err) }()

	release, err := s.acquireWrite()
	if err != nil {
		return 0, err
	}
	defer release()

	var generation int64
	err = s.db.QueryRowContext(ctx, `
		UPDATE watched_roots SET generation = generation + 1
		WHERE id = ?
		RETURNING generation`, id).Scan(&generation)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return 0, err
	}
	if err != nil {
		err = storageErr("next generation", err)
		return 0, err
	}
	return generation, nil
}

// CurrentGeneration returns the root's generation without bumping it.
// Incremental scans stamp entries with this value.
func (s *Store) CurrentGeneration(ctx context.Context, id int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var generation int64
	err := s.db.QueryRowContext(ctx,
		`SELECT generation FROM watched_roots WHERE id = ?`, id).Scan(&generation)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, storageErr("current generation", err)
	}
	return generation, nil
}

// HasIndexedContent reports whether any file entries exist under the
// root. Used as a confirmation gate before cascade deletion.
func (s *Store) HasIndexedContent(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM file_entries WHERE root_id = ? LIMIT 1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("has indexed content", err)
	}
	return true, nil
}
