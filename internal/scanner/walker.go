package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"dirindex/internal/filesystem"
	"dirindex/internal/logging"
	"dirindex/internal/metrics"
	"dirindex/internal/store"
	"dirindex/internal/workers"
)

// WalkerConfig configures the parallel tree walker.
type WalkerConfig struct {
	// NumWorkers is the number of parallel stat workers (0 = auto).
	NumWorkers int
	// ChannelBuffer is the size of the work channel buffer.
	ChannelBuffer int
	// Ignore filters entries by base name before metadata is read.
	Ignore IgnoreList
	// NetworkRetry enables stat retry with backoff for network shares.
	NetworkRetry bool
}

// DefaultWalkerConfig returns sensible defaults based on available
// resources. Modest worker counts stay safe on network mounts.
func DefaultWalkerConfig() WalkerConfig {
	return WalkerConfig{
		NumWorkers:    workers.ForIO(8),
		ChannelBuffer: 1000,
		Ignore:        DefaultIgnorePatterns,
	}
}

// statJob is one enumerated path awaiting metadata.
type statJob struct {
	path string
	d    fs.DirEntry
}

// walker enumerates a directory tree in parallel and emits FileEntry
// values for everything not filtered by the ignore list.
type walker struct {
	config WalkerConfig
	root   *store.WatchedRoot

	jobs chan statJob

	wg sync.WaitGroup

	// mu serializes the emit and error callbacks, which close over
	// unsynchronized scanner state and fire from every worker.
	mu sync.Mutex

	emit    func(store.FileEntry)
	onError func(path string, err error)
}

func newWalker(root *store.WatchedRoot, config WalkerConfig, emit func(store.FileEntry), onError func(string, error)) *walker {
	if config.NumWorkers <= 0 {
		config.NumWorkers = workers.ForIO(8)
	}
	if config.ChannelBuffer <= 0 {
		config.ChannelBuffer = 1000
	}
	return &walker{
		config:  config,
		root:    root,
		jobs:    make(chan statJob, config.ChannelBuffer),
		emit:    emit,
		onError: onError,
	}
}

// walk enumerates the tree. A root-level enumeration failure is
// returned; per-entry failures go through onError and do not abort.
func (w *walker) walk(ctx context.Context) error {
	logging.Debug("Walking %s with %d workers", w.root.Path, w.config.NumWorkers)
	metrics.ScanWalkerWorkers.Set(float64(w.config.NumWorkers))

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.worker(ctx)
	}

	err := w.enumerate(ctx)

	close(w.jobs)
	w.wg.Wait()

	return err
}

func (w *walker) enumerate(ctx context.Context) error {
	rootPath := w.root.Path
	walkErr := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return fs.SkipAll
		default:
		}

		if err != nil {
			if path == rootPath {
				// Root inaccessible: abort so the caller can skip the
				// purge instead of mass-deleting after an outage.
				return err
			}
			w.fail(path, err)
			return nil
		}

		if path == rootPath {
			return nil
		}

		if w.config.Ignore.Match(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		select {
		case w.jobs <- statJob{path: path, d: d}:
		case <-ctx.Done():
			return fs.SkipAll
		}
		return nil
	})

	if walkErr != nil {
		return walkErr
	}
	return ctx.Err()
}

func (w *walker) worker(ctx context.Context) {
	defer w.wg.Done()

	for job := range w.jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		info, err := w.stat(job)
		if err != nil {
			w.fail(job.path, err)
			continue
		}

		entry := buildEntry(w.root.ID, job.path, info, 0)
		metrics.ScanEntriesProcessed.Inc()

		w.mu.Lock()
		w.emit(entry)
		w.mu.Unlock()
	}
}

func (w *walker) stat(job statJob) (os.FileInfo, error) {
	if w.config.NetworkRetry {
		return filesystem.StatWithRetry(job.path, filesystem.DefaultRetryConfig())
	}
	return job.d.Info()
}

func (w *walker) fail(path string, err error) {
	metrics.ScanEntryErrors.Inc()
	if w.onError != nil {
		w.mu.Lock()
		w.onError(path, err)
		w.mu.Unlock()
	}
}
