package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dirindex/internal/filesystem"
	"dirindex/internal/logging"
	"dirindex/internal/memory"
	"dirindex/internal/metrics"
	"dirindex/internal/store"
)

// ErrEnumeration marks a scan aborted because the root itself could
// not be read. No purge happens on this path; the index keeps its last
// known good state.
var ErrEnumeration = errors.New("enumeration error")

// DefaultBatchSize is the number of entries written per transaction.
const DefaultBatchSize = 1000

// Config tunes scan behavior.
type Config struct {
	// BatchSize is the number of entries per write transaction (0 = default).
	BatchSize int
	// Walker configures the parallel enumeration.
	Walker WalkerConfig
	// Monitor, when set, pauses batch writes under memory pressure.
	Monitor *memory.Monitor
}

// Result summarizes one scan run.
type Result struct {
	// Scanned is the number of entries enumerated.
	Scanned int64
	// Upserted is the number of entries written because they were new or
	// their size or mtime changed.
	Upserted int64
	// Unchanged is the number of entries whose stored metadata already
	// matched the filesystem.
	Unchanged int64
	// Deleted is the number of stale entries purged.
	Deleted int64
	// EntryErrors counts per-entry failures recorded and skipped.
	EntryErrors int64
	// Duration is the wall-clock time of the scan.
	Duration time.Duration
}

// Scanner reconciles the persistent index with the filesystem. A full
// scan enumerates a whole root; an incremental scan re-stats specific
// paths reported by a change source.
type Scanner struct {
	store  *store.Store
	config Config
}

// New creates a scanner over the given store.
func New(st *store.Store, config Config) *Scanner {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Walker.NumWorkers <= 0 {
		config.Walker = DefaultWalkerConfig()
	}
	return &Scanner{store: st, config: config}
}

// FullScan enumerates the entire tree under the root and reconciles
// the index with it: new and changed entries are upserted, unchanged
// entries only have their generation stamped, and entries no longer on
// disk are purged. If the root itself is inaccessible the scan aborts
// with ErrEnumeration before any purge.
func (s *Scanner) FullScan(ctx context.Context, root *store.WatchedRoot) (*Result, error) {
	start := time.Now()
	mode := "full"
	metrics.ScansInFlight.Inc()
	defer metrics.ScansInFlight.Dec()

	result, err := s.fullScan(ctx, root)
	if result == nil {
		result = &Result{}
	}
	result.Duration = time.Since(start)

	status := "success"
	switch {
	case errors.Is(err, context.Canceled):
		status = "canceled"
	case err != nil:
		status = "error"
	}
	metrics.ScanRunsTotal.WithLabelValues(mode, status).Inc()
	if err == nil {
		metrics.ScanDuration.WithLabelValues(mode).Observe(result.Duration.Seconds())
		logging.Info("Full scan of %s: %d scanned, %d upserted, %d unchanged, %d deleted, %d errors in %v",
			root.Path, result.Scanned, result.Upserted, result.Unchanged,
			result.Deleted, result.EntryErrors, result.Duration.Round(time.Millisecond))
	}
	return result, err
}

func (s *Scanner) fullScan(ctx context.Context, root *store.WatchedRoot) (*Result, error) {
	if err := s.checkRoot(root); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEnumeration, root.Path, err)
	}

	generation, err := s.store.NextGeneration(ctx, root.ID)
	if err != nil {
		return nil, err
	}

	known, err := s.store.LoadSignatures(ctx, root.ID)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var changed []store.FileEntry
	var unchanged []string
	var flushErr error

	flush := func() {
		if flushErr != nil {
			return
		}
		if s.config.Monitor != nil {
			s.config.Monitor.WaitIfPaused()
		}
		if len(changed) > 0 {
			if flushErr = s.store.UpsertEntries(ctx, changed); flushErr == nil {
				result.Upserted += int64(len(changed))
				changed = changed[:0]
			}
		}
		if flushErr == nil && len(unchanged) > 0 {
			if flushErr = s.store.TouchEntries(ctx, root.ID, generation, unchanged); flushErr == nil {
				result.Unchanged += int64(len(unchanged))
				unchanged = unchanged[:0]
			}
		}
	}

	w := newWalker(root, s.walkerConfigFor(root),
		func(entry store.FileEntry) {
			result.Scanned++
			entry.Generation = generation

			if sig, ok := known[entry.Path]; ok && sameSignature(sig, entry) {
				unchanged = append(unchanged, entry.Path)
				metrics.ScanEntriesSkipped.Inc()
			} else {
				changed = append(changed, entry)
			}

			if len(changed)+len(unchanged) >= s.config.BatchSize {
				flush()
			}
		},
		func(path string, statErr error) {
			result.EntryErrors++
			if recordErr := s.store.InsertScanError(ctx, root.ID, path, statErr.Error()); recordErr != nil {
				logging.Warn("Failed to record scan error for %s: %v", path, recordErr)
			}
		},
	)

	walkErr := w.walk(ctx)
	flush()

	if walkErr != nil {
		// Incomplete enumeration: keep whatever was written, skip the
		// purge so absence is never inferred from a failed walk.
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return result, walkErr
		}
		return result, fmt.Errorf("%w: %s: %v", ErrEnumeration, root.Path, walkErr)
	}
	if flushErr != nil {
		return result, flushErr
	}

	deleted, err := s.store.DeleteMissing(ctx, root.ID, generation)
	if err != nil {
		return result, err
	}
	result.Deleted = deleted
	if deleted > 0 {
		metrics.ScanEntriesPurged.Add(float64(deleted))
	}
	return result, nil
}

// IncrementalScan re-stats the given paths and, for directories, their
// immediate children, and applies the differences. It never purges
// beyond the paths it was asked about.
func (s *Scanner) IncrementalScan(ctx context.Context, root *store.WatchedRoot, paths []string) (*Result, error) {
	start := time.Now()
	metrics.ScansInFlight.Inc()
	defer metrics.ScansInFlight.Dec()

	result, err := s.incrementalScan(ctx, root, paths)
	if result == nil {
		result = &Result{}
	}
	result.Duration = time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ScanRunsTotal.WithLabelValues("incremental", status).Inc()
	if err == nil {
		metrics.ScanDuration.WithLabelValues("incremental").Observe(result.Duration.Seconds())
		logging.Debug("Incremental scan of %d paths under %s: %d upserted, %d deleted",
			len(paths), root.Path, result.Upserted, result.Deleted)
	}
	return result, err
}

func (s *Scanner) incrementalScan(ctx context.Context, root *store.WatchedRoot, paths []string) (*Result, error) {
	generation, err := s.store.CurrentGeneration(ctx, root.ID)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var upserts []store.FileEntry
	var removals []string
	ignore := s.walkerConfigFor(root).Ignore
	networkRetry := root.Kind == store.KindNetwork

	for _, path := range paths {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if ignore.Match(filepath.Base(path)) {
			continue
		}

		info, statErr := s.statPath(path, networkRetry)
		if statErr != nil {
			if os.IsNotExist(statErr) {
				removals = append(removals, path)
				continue
			}
			result.EntryErrors++
			if recordErr := s.store.InsertScanError(ctx, root.ID, path, statErr.Error()); recordErr != nil {
				logging.Warn("Failed to record scan error for %s: %v", path, recordErr)
			}
			continue
		}

		result.Scanned++
		if path != root.Path {
			upserts = append(upserts, buildEntry(root.ID, path, info, generation))
		}

		if info.IsDir() {
			childUpserts, childRemovals, childErr := s.diffChildren(ctx, root, path, ignore, networkRetry, generation)
			if childErr != nil {
				result.EntryErrors++
				if recordErr := s.store.InsertScanError(ctx, root.ID, path, childErr.Error()); recordErr != nil {
					logging.Warn("Failed to record scan error for %s: %v", path, recordErr)
				}
				continue
			}
			result.Scanned += int64(len(childUpserts))
			upserts = append(upserts, childUpserts...)
			removals = append(removals, childRemovals...)
		}
	}

	if err := s.store.UpsertEntries(ctx, upserts); err != nil {
		return result, err
	}
	result.Upserted = int64(len(upserts))

	deleted, err := s.store.DeleteEntries(ctx, root.ID, removals)
	if err != nil {
		return result, err
	}
	result.Deleted = deleted
	return result, nil
}

// diffChildren lists a directory on disk and in the index and returns
// entries to upsert plus indexed children that no longer exist.
func (s *Scanner) diffChildren(ctx context.Context, root *store.WatchedRoot, dir string, ignore IgnoreList, networkRetry bool, generation int64) ([]store.FileEntry, []string, error) {
	var dirents []os.DirEntry
	var err error
	if networkRetry {
		dirents, err = filesystem.ReadDirWithRetry(dir, filesystem.DefaultRetryConfig())
	} else {
		dirents, err = os.ReadDir(dir)
	}
	if err != nil {
		return nil, nil, err
	}

	present := make(map[string]bool, len(dirents))
	var upserts []store.FileEntry
	for _, d := range dirents {
		if ignore.Match(d.Name()) {
			continue
		}
		childPath := filepath.Join(dir, d.Name())
		present[childPath] = true

		info, infoErr := d.Info()
		if infoErr != nil {
			continue
		}
		upserts = append(upserts, buildEntry(root.ID, childPath, info, generation))
	}

	indexed, err := s.store.ListChildren(ctx, root.ID, dir)
	if err != nil {
		return nil, nil, err
	}

	var removals []string
	for _, entry := range indexed {
		if !present[entry.Path] {
			removals = append(removals, entry.Path)
		}
	}
	return upserts, removals, nil
}

func (s *Scanner) checkRoot(root *store.WatchedRoot) error {
	info, err := s.statPath(root.Path, root.Kind == store.KindNetwork)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", root.Path)
	}
	return nil
}

func (s *Scanner) statPath(path string, networkRetry bool) (os.FileInfo, error) {
	if networkRetry {
		return filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	}
	return os.Stat(path)
}

// walkerConfigFor enables network stat retry for network roots while
// keeping local walks on the cheap DirEntry.Info path.
func (s *Scanner) walkerConfigFor(root *store.WatchedRoot) WalkerConfig {
	cfg := s.config.Walker
	cfg.NetworkRetry = root.Kind == store.KindNetwork
	if cfg.NetworkRetry && cfg.NumWorkers > 4 {
		// Network shares degrade under heavy parallel stat load.
		cfg.NumWorkers = 4
	}
	return cfg
}

func buildEntry(rootID int64, path string, info os.FileInfo, generation int64) store.FileEntry {
	entry := store.FileEntry{
		RootID:     rootID,
		Path:       path,
		ParentPath: filepath.Dir(path),
		Name:       info.Name(),
		ModTime:    info.ModTime().Truncate(time.Second),
		IsDir:      info.IsDir(),
		Generation: generation,
	}
	if !info.IsDir() {
		entry.Size = info.Size()
		entry.Extension = normalizeExt(info.Name())
	}
	return entry
}

func normalizeExt(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// sameSignature applies the diff policy: an entry is unchanged when
// size, mtime and kind all match the stored row.
func sameSignature(sig store.EntrySignature, entry store.FileEntry) bool {
	return sig.IsDir == entry.IsDir &&
		sig.Size == entry.Size &&
		sig.MTime == entry.ModTime.Unix()
}
