package store

import "time"

// RootKind distinguishes local disks from network shares. Network roots
// are polled on a timer instead of receiving OS change notifications.
type RootKind string

const (
	KindLocal   RootKind = "local"
	KindNetwork RootKind = "network"
)

// Health is the per-root (and aggregate) health status.
type Health string

const (
	HealthNormal   Health = "normal"
	HealthWarning  Health = "warning"
	HealthError    Health = "error"
	HealthDisabled Health = "disabled"
)

// Severity orders health states for max-severity aggregation.
func (h Health) Severity() int {
	switch h {
	case HealthNormal:
		return 0
	case HealthWarning:
		return 1
	case HealthError:
		return 2
	case HealthDisabled:
		return 3
	default:
		return 0
	}
}

// Worse returns the more severe of two health states.
func (h Health) Worse(other Health) Health {
	if other.Severity() > h.Severity() {
		return other
	}
	return h
}

// WatchedRoot is a top-level path registered for indexing and monitoring.
type WatchedRoot struct {
	ID           int64         `json:"id"`
	Path         string        `json:"path"`
	Kind         RootKind      `json:"kind"`
	PollInterval time.Duration `json:"pollInterval,omitempty"`
	SilentUpdate bool          `json:"silentUpdate"`
	Enabled      bool          `json:"enabled"`
	Status       Health        `json:"status"`
	LastSync     time.Time     `json:"lastSync,omitempty"`
	FailCount    int           `json:"failCount"`
	Generation   int64         `json:"generation"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// FileEntry is one indexed file or directory under a watched root.
type FileEntry struct {
	ID         int64     `json:"id"`
	RootID     int64     `json:"rootId"`
	Path       string    `json:"path"`
	ParentPath string    `json:"parentPath"`
	Name       string    `json:"name"`
	Extension  string    `json:"extension,omitempty"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"modTime"`
	IsDir      bool      `json:"isDir"`
	Generation int64     `json:"-"`
}

// SearchResult is a bounded search response. Truncation at the row
// ceiling is silent except for the flag, so callers can prompt the user
// to refine the query.
type SearchResult struct {
	Items     []FileEntry `json:"items"`
	Truncated bool        `json:"truncated"`
}

// ScanError records a per-entry failure skipped during a scan, kept for
// the on-demand errors view rather than interrupting the scan.
type ScanError struct {
	ID        int64     `json:"id"`
	RootID    int64     `json:"rootId"`
	Path      string    `json:"path"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	Resolved  bool      `json:"resolved"`
}

// IndexStats summarizes the index for the stats endpoint and the
// metrics collector.
type IndexStats struct {
	TotalFiles    int            `json:"totalFiles"`
	TotalDirs     int            `json:"totalDirs"`
	TotalRoots    int            `json:"totalRoots"`
	RootsByStatus map[string]int `json:"rootsByStatus"`
	ErrorCount    int            `json:"errorCount"`
	LastScanAt    time.Time      `json:"lastScanAt,omitempty"`
}

// ExtensionCount is one row of the extension statistics view.
type ExtensionCount struct {
	Extension string `json:"extension"`
	Count     int    `json:"count"`
}
