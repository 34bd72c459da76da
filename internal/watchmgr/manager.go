// Package watchmgr owns the lifecycle of watched roots: registration
// with nesting checks, the per-root scan workers, and the attachment
// of change sources (local watcher or network poller). All scans for a
// root are serialized through its worker; triggers arriving during a
// scan coalesce into at most one follow-up run.
package watchmgr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"dirindex/internal/conflict"
	"dirindex/internal/filesystem"
	"dirindex/internal/logging"
	"dirindex/internal/scanner"
	"dirindex/internal/store"
)

var (
	// ErrConflict is returned when a candidate root nests with an
	// existing one and the caller did not ask for a merge.
	ErrConflict = errors.New("root conflict")
	// ErrHasContent is returned when unregistering a root that still
	// has indexed entries without the force flag. The caller is
	// expected to confirm with the user and retry.
	ErrHasContent = errors.New("root has indexed content")
)

// ConflictError carries the full conflict details for the caller to
// present.
type ConflictError struct {
	Result *conflict.Result
}

func (e *ConflictError) Error() string {
	if len(e.Result.Conflicts) > 0 {
		c := e.Result.Conflicts[0]
		return fmt.Sprintf("root conflict: %s (%s)", c.Existing.Path, c.Relation)
	}
	return "root conflict"
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// StatusEvent is pushed to subscribers whenever a root's health
// changes.
type StatusEvent struct {
	RootID    int64        `json:"rootId"`
	Path      string       `json:"path"`
	Status    store.Health `json:"status"`
	FailCount int          `json:"failCount"`
}

// RegisterOptions configures a new watched root.
type RegisterOptions struct {
	// PollInterval overrides the default poll cadence for network roots.
	PollInterval time.Duration
	// SilentUpdate suppresses change notifications for successful
	// background rescans of this root.
	SilentUpdate bool
	// Merge allows registration of an ancestor of existing roots by
	// removing the nested roots first.
	Merge bool
}

// Config tunes the manager.
type Config struct {
	// DefaultPollInterval applies to network roots registered without
	// an explicit interval.
	DefaultPollInterval time.Duration
	// Debounce is the local watcher quiet period.
	Debounce time.Duration
}

// Manager coordinates roots, scans and change sources.
type Manager struct {
	store   *store.Store
	scanner *scanner.Scanner
	config  Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	runners map[int64]*runner

	subMu       sync.Mutex
	subscribers []func(StatusEvent)
}

// New creates a manager. Start must be called to attach existing roots.
func New(st *store.Store, sc *scanner.Scanner, config Config) *Manager {
	if config.DefaultPollInterval <= 0 {
		config.DefaultPollInterval = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:   st,
		scanner: sc,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		runners: make(map[int64]*runner),
	}
}

// Start attaches every enabled root and queues a reconciling full scan
// for each. The filesystem may have changed arbitrarily while the
// process was down; the startup scan brings the index back in line.
func (m *Manager) Start(ctx context.Context) error {
	roots, err := m.store.ListEnabledRoots(ctx)
	if err != nil {
		return err
	}

	for i := range roots {
		root := roots[i]
		m.startRunner(&root, true)
	}
	logging.Info("Watch manager started with %d active roots", len(roots))
	return nil
}

// Stop detaches all change sources and waits for in-flight scans.
func (m *Manager) Stop() {
	m.cancel()

	m.mu.Lock()
	for _, r := range m.runners {
		r.stop()
	}
	m.runners = make(map[int64]*runner)
	m.mu.Unlock()

	m.wg.Wait()
	logging.Info("Watch manager stopped")
}

// Register validates and adds a new watched root, runs its initial
// full scan in the background, and attaches its change source.
func (m *Manager) Register(ctx context.Context, path string, opts RegisterOptions) (*store.WatchedRoot, error) {
	path = conflict.Normalize(path)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("root not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", path)
	}

	existing, err := m.store.ListRoots(ctx)
	if err != nil {
		return nil, err
	}

	result := conflict.Check(path, existing)
	if !result.OK() {
		if !opts.Merge || !result.Mergeable() {
			return nil, &ConflictError{Result: result}
		}
		for _, victim := range result.MergeVictims() {
			logging.Info("Merging nested root %s into %s", victim.Path, path)
			if err := m.Unregister(ctx, victim.ID, true); err != nil {
				return nil, fmt.Errorf("merge failed for %s: %w", victim.Path, err)
			}
		}
	}

	kind := store.KindLocal
	if filesystem.IsNetworkPath(path) {
		kind = store.KindNetwork
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = m.config.DefaultPollInterval
	}

	root := &store.WatchedRoot{
		Path:         path,
		Kind:         kind,
		PollInterval: pollInterval,
		SilentUpdate: opts.SilentUpdate,
		Enabled:      true,
		Status:       store.HealthNormal,
	}
	if err := m.store.CreateRoot(ctx, root); err != nil {
		return nil, err
	}

	logging.Info("Registered %s root %s (id=%d)", kind, path, root.ID)
	m.startRunner(root, true)
	return root, nil
}

// Unregister removes a root and all of its indexed content. Without
// force, a root that still has entries returns ErrHasContent.
func (m *Manager) Unregister(ctx context.Context, id int64, force bool) error {
	if !force {
		has, err := m.store.HasIndexedContent(ctx, id)
		if err != nil {
			return err
		}
		if has {
			return ErrHasContent
		}
	}

	m.stopRunner(id)

	if err := m.store.DeleteRoot(ctx, id); err != nil {
		return err
	}
	logging.Info("Unregistered root %d", id)
	return nil
}

// SetEnabled pauses or resumes watching for a root. Disabling keeps
// the indexed content; re-enabling queues a reconciling full scan.
func (m *Manager) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	if !enabled {
		// Stop first: an in-flight scan finishing during the stop
		// records a healthy status, which must not land on top of the
		// disabled one.
		m.stopRunner(id)
		if err := m.store.SetRootEnabled(ctx, id, false); err != nil {
			return err
		}
		m.notify(ctx, id)
		return nil
	}

	if err := m.store.SetRootEnabled(ctx, id, true); err != nil {
		return err
	}

	root, err := m.store.GetRoot(ctx, id)
	if err != nil {
		return err
	}
	m.startRunner(root, true)
	m.notify(ctx, id)
	return nil
}

// UpdateSettings applies poll interval and silent-update changes. The
// change source is restarted so the new cadence takes effect now
// rather than after the next tick.
func (m *Manager) UpdateSettings(ctx context.Context, id int64, pollInterval time.Duration, silentUpdate bool) error {
	if err := m.store.UpdateRootSettings(ctx, id, pollInterval, silentUpdate); err != nil {
		return err
	}

	m.mu.Lock()
	_, running := m.runners[id]
	m.mu.Unlock()
	if !running {
		return nil
	}

	m.stopRunner(id)
	root, err := m.store.GetRoot(ctx, id)
	if err != nil {
		return err
	}
	m.startRunner(root, false)
	return nil
}

// TriggerRescan queues a full scan for the root. Repeated triggers
// while a scan runs coalesce into a single follow-up.
func (m *Manager) TriggerRescan(id int64) error {
	m.mu.Lock()
	r, ok := m.runners[id]
	m.mu.Unlock()
	if !ok {
		return store.ErrNotFound
	}
	r.triggerFullScan()
	return nil
}

// Status returns the worst health across enabled roots. Disabled
// entries dominate so a dead share is never hidden behind healthy
// siblings.
func (m *Manager) Status(ctx context.Context) (store.Health, []store.WatchedRoot, error) {
	roots, err := m.store.ListRoots(ctx)
	if err != nil {
		return store.HealthError, nil, err
	}

	overall := store.HealthNormal
	for _, root := range roots {
		if !root.Enabled {
			continue
		}
		overall = overall.Worse(root.Status)
	}
	return overall, roots, nil
}

// Subscribe registers a status-change listener. Listeners are invoked
// synchronously from scan and poll goroutines and must not block.
func (m *Manager) Subscribe(fn func(StatusEvent)) {
	m.subMu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.subMu.Unlock()
}

func (m *Manager) publish(event StatusEvent) {
	m.subMu.Lock()
	subs := make([]func(StatusEvent), len(m.subscribers))
	copy(subs, m.subscribers)
	m.subMu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
}

// notify re-reads the root and publishes its current status.
func (m *Manager) notify(ctx context.Context, id int64) {
	root, err := m.store.GetRoot(ctx, id)
	if err != nil {
		return
	}
	m.publish(StatusEvent{
		RootID:    root.ID,
		Path:      root.Path,
		Status:    root.Status,
		FailCount: root.FailCount,
	})
}

func (m *Manager) startRunner(root *store.WatchedRoot, initialScan bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runners[root.ID]; exists {
		return
	}

	r := newRunner(m, root)
	m.runners[root.ID] = r

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		r.run(m.ctx)
	}()

	if initialScan {
		r.triggerFullScan()
	}
}

// disableRoot handles a poller giving up on a root. It runs outside
// the poll goroutine because stopping the runner waits for the poller
// to exit.
func (m *Manager) disableRoot(id int64) {
	m.stopRunner(id)
	if err := m.store.SetRootEnabled(m.ctx, id, false); err != nil {
		logging.Warn("Failed to disable root %d: %v", id, err)
		return
	}
	m.notify(m.ctx, id)
}

func (m *Manager) stopRunner(id int64) {
	m.mu.Lock()
	r, ok := m.runners[id]
	if ok {
		delete(m.runners, id)
	}
	m.mu.Unlock()

	if ok {
		r.stop()
	}
}
