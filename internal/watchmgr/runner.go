package watchmgr

import (
	"context"
	"errors"
	"sync"
	"time"

	"dirindex/internal/logging"
	"dirindex/internal/poller"
	"dirindex/internal/store"
	"dirindex/internal/watcher"
)

const (
	// watchRetryBase is the first delay before re-attempting a failed
	// filesystem subscription.
	watchRetryBase = 10 * time.Second
	// watchRetryMax caps the subscription retry delay.
	watchRetryMax = 5 * time.Minute
	// dirtyBuffer bounds queued incremental batches. Overflow upgrades
	// to a full scan instead of dropping paths.
	dirtyBuffer = 64
)

// runner is the single worker goroutine for one root. Every scan of
// the root flows through it, so full and incremental scans never
// overlap, and a trigger arriving mid-scan collapses into one queued
// follow-up.
type runner struct {
	m    *Manager
	root *store.WatchedRoot

	// statusMu guards the root's health fields, which are updated from
	// the worker goroutine and from change-source callbacks.
	statusMu sync.Mutex

	fullScanCh chan struct{}
	dirtyCh    chan []string

	stopCh chan struct{}
	doneCh chan struct{}

	// watcherCh hands an established subscription from attachWatcher
	// back to the worker goroutine, which is the only writer of the
	// watcher field. The channel is unbuffered so a successful send
	// means the worker is still running and will detach it on exit.
	watcherCh chan *watcher.LocalWatcher
	watcher   *watcher.LocalWatcher
	poller    *poller.NetworkPoller
}

func newRunner(m *Manager, root *store.WatchedRoot) *runner {
	return &runner{
		m:          m,
		root:       root,
		fullScanCh: make(chan struct{}, 1),
		dirtyCh:    make(chan []string, dirtyBuffer),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		watcherCh:  make(chan *watcher.LocalWatcher),
	}
}

// triggerFullScan queues a scan; a trigger already pending absorbs it.
func (r *runner) triggerFullScan() {
	select {
	case r.fullScanCh <- struct{}{}:
	default:
	}
}

func (r *runner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *runner) run(ctx context.Context) {
	defer close(r.doneCh)

	r.attachSource(ctx)
	defer r.detachSource()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case w := <-r.watcherCh:
			r.watcher = w
		case <-r.fullScanCh:
			r.runFullScan(ctx)
		case paths := <-r.dirtyCh:
			// Drain whatever accumulated while the last scan ran.
			for more := true; more; {
				select {
				case extra := <-r.dirtyCh:
					paths = append(paths, extra...)
				default:
					more = false
				}
			}
			r.runIncremental(ctx, paths)
		}
	}
}

// attachSource wires the change detection appropriate for the root
// kind: inotify-style watches locally, fingerprint polling for network
// shares.
func (r *runner) attachSource(ctx context.Context) {
	if r.root.Kind == store.KindNetwork {
		r.poller = poller.New(r.root, poller.Callbacks{
			OnChange: r.triggerFullScan,
			OnStatus: r.pushStatus,
			OnDisable: func() {
				go r.m.disableRoot(r.root.ID)
			},
		})
		r.poller.Start(ctx)
		return
	}

	go r.attachWatcher(ctx)
}

// attachWatcher establishes the local subscription, retrying with
// backoff when it fails. Until it succeeds the root is marked warning;
// the index stays usable from its last scan.
func (r *runner) attachWatcher(ctx context.Context) {
	backoff := watchRetryBase

	for {
		w := watcher.New(r.root, r.m.config.Debounce, r.enqueueDirty, r.onWatchError)
		err := w.Start()
		if err == nil {
			select {
			case r.watcherCh <- w:
			case <-ctx.Done():
				w.Stop()
			case <-r.stopCh:
				// Subscription came up after the runner stopped; close
				// it rather than leak it.
				w.Stop()
			}
			return
		}

		logging.Warn("Cannot watch %s, retrying in %v: %v", r.root.Path, backoff, err)
		r.pushStatus(store.HealthWarning, 0)

		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > watchRetryMax {
			backoff = watchRetryMax
		}
	}
}

func (r *runner) detachSource() {
	if r.watcher != nil {
		r.watcher.Stop()
	}
	if r.poller != nil {
		r.poller.Stop()
	}
}

// enqueueDirty hands a debounced batch to the worker. When the queue
// overflows the batch is dropped in favor of a full scan, which
// subsumes it.
func (r *runner) enqueueDirty(paths []string) {
	select {
	case r.dirtyCh <- paths:
	default:
		logging.Debug("Dirty queue full for %s, upgrading to full scan", r.root.Path)
		r.triggerFullScan()
	}
}

func (r *runner) onWatchError(err error) {
	logging.Warn("Subscription degraded for %s: %v", r.root.Path, err)
	r.pushStatus(store.HealthWarning, 0)
}

func (r *runner) runFullScan(ctx context.Context) {
	result, err := r.m.scanner.FullScan(ctx, r.root)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.onScanFailure(ctx, err)
		return
	}

	changed := result.Upserted > 0 || result.Deleted > 0
	r.onScanSuccess(ctx, changed)

	if r.poller != nil {
		r.poller.Prime(ctx)
	}
}

func (r *runner) runIncremental(ctx context.Context, paths []string) {
	result, err := r.m.scanner.IncrementalScan(ctx, r.root, paths)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logging.Warn("Incremental scan failed for %s, scheduling full scan: %v", r.root.Path, err)
		r.triggerFullScan()
		return
	}
	if result.Upserted > 0 || result.Deleted > 0 {
		r.onScanSuccess(ctx, true)
	}
}

// onScanSuccess records recovery and publishes the transition. Roots
// flagged silent only publish when their health actually changed, not
// on every routine rescan.
func (r *runner) onScanSuccess(ctx context.Context, changed bool) {
	r.statusMu.Lock()
	wasHealthy := r.root.Status == store.HealthNormal && r.root.FailCount == 0
	r.root.Status = store.HealthNormal
	r.root.FailCount = 0
	r.root.LastSync = time.Now()
	lastSync := r.root.LastSync
	r.statusMu.Unlock()

	if err := r.m.store.UpdateRootSync(ctx, r.root.ID, store.HealthNormal, lastSync, 0); err != nil {
		logging.Warn("Failed to record sync for %s: %v", r.root.Path, err)
	}

	silent := r.root.SilentUpdate
	if silent && wasHealthy {
		return
	}
	if !wasHealthy || changed {
		r.publish()
	}
}

func (r *runner) onScanFailure(ctx context.Context, scanErr error) {
	r.statusMu.Lock()
	r.root.FailCount++
	failCount := r.root.FailCount
	status := store.HealthWarning
	if failCount >= 3 {
		status = store.HealthError
	}
	r.root.Status = status
	r.statusMu.Unlock()

	logging.Warn("Scan failed for %s (attempt %d): %v", r.root.Path, failCount, scanErr)
	if err := r.m.store.UpdateRootSync(ctx, r.root.ID, status, time.Time{}, failCount); err != nil {
		logging.Warn("Failed to record sync failure for %s: %v", r.root.Path, err)
	}
	r.publish()
}

// pushStatus persists and publishes a health transition reported by a
// change source.
func (r *runner) pushStatus(status store.Health, failCount int) {
	r.statusMu.Lock()
	r.root.Status = status
	r.root.FailCount = failCount
	r.statusMu.Unlock()

	if err := r.m.store.UpdateRootSync(r.m.ctx, r.root.ID, status, time.Time{}, failCount); err != nil {
		logging.Warn("Failed to record status for %s: %v", r.root.Path, err)
	}
	r.publish()
}

func (r *runner) publish() {
	r.statusMu.Lock()
	event := StatusEvent{
		RootID:    r.root.ID,
		Path:      r.root.Path,
		Status:    r.root.Status,
		FailCount: r.root.FailCount,
	}
	r.statusMu.Unlock()
	r.m.publish(event)
}
