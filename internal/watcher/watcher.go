// Package watcher delivers local filesystem change notifications for a
// watched root. Events are debounced and coalesced per path, then
// handed to the owner as a batch of dirty paths for incremental
// rescanning. Event delivery is best effort; the periodic full scan
// remains the consistency backstop.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"dirindex/internal/logging"
	"dirindex/internal/metrics"
	"dirindex/internal/store"
)

// ErrSubscription marks a failure to establish or maintain the
// filesystem subscription. The owner falls back to polling cadence and
// retries the subscription with backoff.
var ErrSubscription = errors.New("subscription error")

// DefaultDebounce is the quiet period before coalesced paths are
// flushed. Editors and copies produce event bursts; one flush per
// burst is enough.
const DefaultDebounce = 300 * time.Millisecond

// LocalWatcher watches one root recursively through inotify-style
// notifications.
type LocalWatcher struct {
	root     *store.WatchedRoot
	debounce time.Duration

	// flush receives the coalesced dirty paths after the quiet period.
	flush func(paths []string)
	// onError is invoked when the event stream itself degrades.
	onError func(error)

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	stopped bool

	done chan struct{}
}

// New creates a watcher for the root. Start must be called to attach
// the subscription.
func New(root *store.WatchedRoot, debounce time.Duration, flush func([]string), onError func(error)) *LocalWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &LocalWatcher{
		root:     root,
		debounce: debounce,
		flush:    flush,
		onError:  onError,
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Start attaches recursive watches and begins the event loop. A
// failure to watch the root itself returns ErrSubscription;
// unreadable subdirectories are skipped and counted.
func (w *LocalWatcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSubscription, err)
	}
	w.fsw = fsw

	if err := w.addRecursive(w.root.Path); err != nil {
		fsw.Close()
		return fmt.Errorf("%w: %s: %v", ErrSubscription, w.root.Path, err)
	}

	go w.loop()
	logging.Info("Watching %s for changes", w.root.Path)
	return nil
}

// Stop detaches the subscription and discards pending paths.
func (w *LocalWatcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.fsw.Close()
	<-w.done
}

// addRecursive watches dir and every subdirectory beneath it. An error
// reading dir itself is returned; deeper failures are skipped so one
// bad directory does not take down the subscription.
func (w *LocalWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			metrics.WatcherSubscriptionErrors.Inc()
			logging.Debug("Skipping unwatchable path %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			if path == dir {
				return addErr
			}
			metrics.WatcherSubscriptionErrors.Inc()
			logging.Debug("Cannot watch %s: %v", path, addErr)
			return filepath.SkipDir
		}
		return nil
	})
}

func (w *LocalWatcher) loop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			metrics.WatcherSubscriptionErrors.Inc()
			logging.Warn("Watch error on %s: %v", w.root.Path, err)
			if w.onError != nil {
				w.onError(fmt.Errorf("%w: %v", ErrSubscription, err))
			}
		}
	}
}

func (w *LocalWatcher) handleEvent(event fsnotify.Event) {
	metrics.WatcherEventsTotal.WithLabelValues(opLabel(event.Op)).Inc()

	// A renamed or removed path is marked dirty as-is; the incremental
	// scan discovers the absence. A rename also surfaces the new name
	// as a separate Create event.
	w.markDirty(event.Name)

	// New directories need their own watches before events inside them
	// can be seen. A tree moved in arrives as a single Create.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				metrics.WatcherSubscriptionErrors.Inc()
				logging.Debug("Cannot watch new directory %s: %v", event.Name, err)
			}
		}
	}
}

// markDirty records the path and arms the debounce timer. Further
// events within the quiet period push the flush out.
func (w *LocalWatcher) markDirty(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	w.pending[path] = struct{}{}

	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.flushPending)
	} else {
		w.timer.Reset(w.debounce)
	}
}

func (w *LocalWatcher) flushPending() {
	w.mu.Lock()
	if w.stopped || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := make([]string, 0, len(w.pending))
	for path := range w.pending {
		batch = append(batch, path)
	}
	w.pending = make(map[string]struct{})
	w.timer = nil
	w.mu.Unlock()

	metrics.WatcherFlushesTotal.Inc()
	logging.Debug("Flushing %d dirty paths under %s", len(batch), w.root.Path)
	w.flush(batch)
}

func opLabel(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return "other"
	}
}
