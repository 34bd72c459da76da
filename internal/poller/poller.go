// Package poller drives change detection for roots that cannot deliver
// filesystem notifications, typically network mounts. Each tick runs a
// cheap fingerprint check against the share; a full scan is requested
// only when the fingerprint moves. Consecutive failures back off
// geometrically and eventually disable the root.
package poller

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"dirindex/internal/filesystem"
	"dirindex/internal/logging"
	"dirindex/internal/metrics"
	"dirindex/internal/store"
)

const (
	// BackoffBase is the first retry delay after a failed check.
	BackoffBase = 30 * time.Second
	// BackoffMax caps the retry delay.
	BackoffMax = 30 * time.Minute
	// DisableThreshold is the consecutive-failure count at which the
	// root is disabled rather than retried forever.
	DisableThreshold = 5

	// sampleLimit bounds how many top-level subdirectories contribute
	// their mtime to the fingerprint.
	sampleLimit = 25
)

// fingerprint is a cheap structural summary of a share: root mtime,
// top-level entry count, and a sample of subdirectory mtimes. It is
// deliberately shallow; deep changes are caught by the mtime of the
// directory they happen in or by the next full scan.
type fingerprint struct {
	rootMTime int64
	topCount  int
	subMTimes map[string]int64
}

func (f *fingerprint) equal(other *fingerprint) bool {
	if f == nil || other == nil {
		return false
	}
	if f.rootMTime != other.rootMTime || f.topCount != other.topCount {
		return false
	}
	if len(f.subMTimes) != len(other.subMTimes) {
		return false
	}
	for name, mtime := range f.subMTimes {
		if other.subMTimes[name] != mtime {
			return false
		}
	}
	return true
}

// Callbacks connect the poller to its owner. All callbacks are invoked
// from the poll goroutine.
type Callbacks struct {
	// OnChange is invoked when the fingerprint moved and a full scan
	// should run. The poller reprimes its baseline afterwards.
	OnChange func()
	// OnStatus pushes health transitions immediately, without waiting
	// for the next tick.
	OnStatus func(status store.Health, failCount int)
	// OnDisable is invoked once when the failure threshold is reached.
	OnDisable func()
}

// NetworkPoller checks one root on a fixed cadence.
type NetworkPoller struct {
	root      *store.WatchedRoot
	interval  time.Duration
	callbacks Callbacks

	// mu guards baseline: the scan worker reprimes it through Prime
	// while the poll goroutine reads and replaces it in check.
	mu       sync.Mutex
	baseline *fingerprint

	failCount int
	backoff   time.Duration

	stop chan struct{}
	done chan struct{}
}

// New creates a poller for the root using its configured interval.
func New(root *store.WatchedRoot, callbacks Callbacks) *NetworkPoller {
	interval := root.PollInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &NetworkPoller{
		root:      root,
		interval:  interval,
		callbacks: callbacks,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Prime records the current fingerprint as the baseline so the first
// tick after a completed scan does not rescan an unchanged share.
func (p *NetworkPoller) Prime(ctx context.Context) {
	fp, err := p.fingerprint(ctx)
	if err != nil {
		return
	}
	p.mu.Lock()
	p.baseline = fp
	p.mu.Unlock()
}

// Start launches the poll loop.
func (p *NetworkPoller) Start(ctx context.Context) {
	go p.loop(ctx)
}

// Stop terminates the poll loop and waits for it to exit.
func (p *NetworkPoller) Stop() {
	close(p.stop)
	<-p.done
}

func (p *NetworkPoller) loop(ctx context.Context) {
	defer close(p.done)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		delay := p.tick(ctx)
		if delay == 0 {
			return
		}
		timer.Reset(delay)
	}
}

// tick runs one check and returns the delay until the next one, or 0
// when the root has been disabled.
func (p *NetworkPoller) tick(ctx context.Context) time.Duration {
	start := time.Now()
	changed, err := p.check(ctx)
	metrics.PollerCheckDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		return p.onFailure(err)
	}

	p.onSuccess()

	if changed {
		metrics.PollerChecksTotal.WithLabelValues("changed").Inc()
		logging.Info("Change detected on %s, requesting scan", p.root.Path)
		if p.callbacks.OnChange != nil {
			p.callbacks.OnChange()
		}
		// The scan may take a while; reprime so its own writes do not
		// look like another change next tick.
		p.Prime(ctx)
	} else {
		metrics.PollerChecksTotal.WithLabelValues("unchanged").Inc()
	}

	return p.interval
}

func (p *NetworkPoller) check(ctx context.Context) (bool, error) {
	current, err := p.fingerprint(ctx)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.baseline == nil {
		p.baseline = current
		return false, nil
	}
	if current.equal(p.baseline) {
		return false, nil
	}
	p.baseline = current
	return true, nil
}

// fingerprint stats the root, counts its top-level entries and samples
// subdirectory mtimes. One directory listing plus a handful of stats,
// regardless of tree size.
func (p *NetworkPoller) fingerprint(ctx context.Context) (*fingerprint, error) {
	info, err := filesystem.StatWithRetry(p.root.Path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}

	fp := &fingerprint{
		rootMTime: info.ModTime().Unix(),
		subMTimes: make(map[string]int64),
	}

	entries, err := filesystem.ReadDirWithRetry(p.root.Path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}
	fp.topCount = len(entries)

	sampled := 0
	for _, entry := range entries {
		if !entry.IsDir() || sampled >= sampleLimit {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		subInfo, statErr := os.Stat(filepath.Join(p.root.Path, entry.Name()))
		if statErr != nil {
			continue
		}
		fp.subMTimes[entry.Name()] = subInfo.ModTime().Unix()
		sampled++
	}

	return fp, nil
}

func (p *NetworkPoller) onSuccess() {
	if p.failCount > 0 {
		logging.Info("Root %s recovered after %d failed checks", p.root.Path, p.failCount)
	}
	p.failCount = 0
	p.backoff = 0
	metrics.PollerBackoffSeconds.WithLabelValues(p.rootLabel()).Set(0)
	if p.callbacks.OnStatus != nil {
		p.callbacks.OnStatus(store.HealthNormal, 0)
	}
}

// onFailure advances the backoff schedule and returns the next delay,
// or 0 once the disable threshold is reached.
func (p *NetworkPoller) onFailure(err error) time.Duration {
	p.failCount++
	metrics.PollerChecksTotal.WithLabelValues("error").Inc()
	logging.Warn("Check failed for %s (attempt %d): %v", p.root.Path, p.failCount, err)

	if p.failCount >= DisableThreshold {
		metrics.PollerDisabledTotal.Inc()
		logging.Error("Disabling %s after %d consecutive failures", p.root.Path, p.failCount)
		if p.callbacks.OnStatus != nil {
			p.callbacks.OnStatus(store.HealthDisabled, p.failCount)
		}
		if p.callbacks.OnDisable != nil {
			p.callbacks.OnDisable()
		}
		return 0
	}

	status := store.HealthWarning
	if p.failCount >= 3 {
		status = store.HealthError
	}
	if p.callbacks.OnStatus != nil {
		p.callbacks.OnStatus(status, p.failCount)
	}

	if p.backoff == 0 {
		p.backoff = BackoffBase
	} else {
		p.backoff *= 2
		if p.backoff > BackoffMax {
			p.backoff = BackoffMax
		}
	}
	metrics.PollerBackoffSeconds.WithLabelValues(p.rootLabel()).Set(p.backoff.Seconds())
	return p.backoff
}

func (p *NetworkPoller) rootLabel() string {
	return strconv.FormatInt(p.root.ID, 10)
}
