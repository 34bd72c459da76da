package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"dirindex/internal/logging"
	"dirindex/internal/metrics"
)

// Default timeout for read operations
const defaultTimeout = 5 * time.Second

// SearchLimit is the hard ceiling on search result cardinality.
const SearchLimit = 1000

var (
	// ErrStorage marks index read/write failures. Non-retryable for the
	// current call; the engine itself remains usable.
	ErrStorage = errors.New("index store failure")

	// ErrNotFound is returned when a requested root or entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPaused is returned for writes attempted while the store is
	// paused for a restore swap.
	ErrPaused = errors.New("index store paused")
)

// Store manages the persistent file index. It is the single shared
// mutable resource; all coordination between scanners, watchers and
// readers happens through its transactional guarantees (SQLite WAL).
type Store struct {
	db     *sql.DB
	dbPath string

	// pause gates writers during a restore swap. Writers hold the read
	// side so normal operation is uncontended.
	pauseMu sync.RWMutex
	paused  bool
}

// New opens (or creates) the index database at dbPath. The parent
// directory must already exist and be writable; startup.LoadConfig
// validates that before calling here.
func New(ctx context.Context, dbPath string) (*Store, error) {
	logging.Info("Index database path: %s", dbPath)

	// WAL keeps readers unblocked during batch writes; busy_timeout
	// prevents spurious "database is locked" errors under load.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info("Index store initialized at %s", dbPath)
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	CREATE TABLE IF NOT EXISTS watched_roots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		poll_interval INTEGER NOT NULL DEFAULT 300,
		silent_update INTEGER NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'normal',
		last_sync INTEGER,
		fail_count INTEGER NOT NULL DEFAULT 0,
		generation INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE TABLE IF NOT EXISTS file_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		root_id INTEGER NOT NULL REFERENCES watched_roots(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		parent_path TEXT NOT NULL,
		name TEXT NOT NULL,
		extension TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		mtime INTEGER NOT NULL,
		is_dir INTEGER NOT NULL DEFAULT 0,
		generation INTEGER NOT NULL DEFAULT 0,
		UNIQUE(root_id, path)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_parent ON file_entries(root_id, parent_path);
	CREATE INDEX IF NOT EXISTS idx_entries_name ON file_entries(name COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_entries_generation ON file_entries(root_id, generation);
	CREATE INDEX IF NOT EXISTS idx_entries_extension ON file_entries(extension);

	-- Full-text search over entry names
	CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
		name,
		path,
		content='file_entries',
		content_rowid='id',
		tokenize='trigram'
	);

	CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON file_entries BEGIN
		INSERT INTO entries_fts(rowid, name, path) VALUES (new.id, new.name, new.path);
	END;

	CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON file_entries BEGIN
		INSERT INTO entries_fts(entries_fts, rowid, name, path) VALUES('delete', old.id, old.name, old.path);
	END;

	CREATE TRIGGER IF NOT EXISTS entries_au AFTER UPDATE OF name, path ON file_entries BEGIN
		INSERT INTO entries_fts(entries_fts, rowid, name, path) VALUES('delete', old.id, old.name, old.path);
		INSERT INTO entries_fts(rowid, name, path) VALUES (new.id, new.name, new.path);
	END;

	CREATE TABLE IF NOT EXISTS scan_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		root_id INTEGER NOT NULL REFERENCES watched_roots(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		resolved INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_scan_errors_root ON scan_errors(root_id, resolved);
	`

	_, err = s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Pause blocks until all in-flight writes finish, then rejects new
// writes until Resume. Used by the backup/restore collaborator while it
// swaps the database file.
func (s *Store) Pause() {
	s.pauseMu.Lock()
	s.paused = true
	s.pauseMu.Unlock()
	logging.Info("Index store paused for maintenance")
}

// Resume re-enables writes after a restore swap.
func (s *Store) Resume() {
	s.pauseMu.Lock()
	s.paused = false
	s.pauseMu.Unlock()
	logging.Info("Index store resumed")
}

// Paused reports whether the write gate is closed.
func (s *Store) Paused() bool {
	s.pauseMu.RLock()
	defer s.pauseMu.RUnlock()
	return s.paused
}

// acquireWrite takes the writer side of the pause gate. Callers must
// call the returned release func when the write completes.
func (s *Store) acquireWrite() (release func(), err error) {
	s.pauseMu.RLock()
	if s.paused {
		s.pauseMu.RUnlock()
		return nil, ErrPaused
	}
	return s.pauseMu.RUnlock, nil
}

// beginTx starts a batch transaction and returns it with its start time
// for duration metrics.
func (s *Store) beginTx() (*sql.Tx, time.Time, error) {
	// Transaction lifetime is managed by endTx, not a timeout context.
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return nil, time.Time{}, storageErr("begin transaction", err)
	}
	return tx, time.Now(), nil
}

// endTx commits the transaction, or rolls it back when err is non-nil.
func (s *Store) endTx(tx *sql.Tx, start time.Time, err error) error {
	duration := time.Since(start).Seconds()

	if err != nil {
		metrics.StoreTransactionDuration.WithLabelValues("rollback").Observe(duration)
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.StoreTransactionDuration.WithLabelValues("commit").Observe(duration)
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// Vacuum optimizes the database.
func (s *Store) Vacuum() error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	release, err := s.acquireWrite()
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	_, err = s.db.ExecContext(ctx, "VACUUM")
	if err != nil {
		err = storageErr("vacuum", err)
	}
	return err
}

// RebuildFTS rebuilds the full-text search index from the entries table.
func (s *Store) RebuildFTS() error {
	start := time.Now()
	var err error
	defer func() { recordQuery("rebuild_fts", start, err) }()

	release, err := s.acquireWrite()
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err = s.db.ExecContext(ctx, "INSERT INTO entries_fts(entries_fts) VALUES('rebuild')")
	if err != nil {
		err = storageErr("rebuild fts", err)
	}
	return err
}

// UpdateDBMetrics refreshes connection-pool gauges.
func (s *Store) UpdateDBMetrics() {
	stats := s.db.Stats()
	metrics.StoreConnectionsOpen.Set(float64(stats.OpenConnections))
}

// OpenConnections reports the current connection count for stats.
func (s *Store) OpenConnections() int {
	return s.db.Stats().OpenConnections
}

// storageErr wraps a driver error as a StorageFailure.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// recordQuery records store query metrics.
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StoreQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.StoreQueryDuration.WithLabelValues(operation).Observe(duration)
}
