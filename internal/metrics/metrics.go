package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirindex_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dirindex_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirindex_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Store metrics
var (
	StoreQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirindex_store_queries_total",
			Help: "Total number of index store queries",
		},
		[]string{"operation", "status"},
	)

	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dirindex_store_query_duration_seconds",
			Help:    "Index store query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	StoreTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dirindex_store_transaction_duration_seconds",
			Help:    "Batch transaction duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"}, // "commit", "rollback"
	)

	StoreRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dirindex_store_rows_affected",
			Help:    "Rows affected per mutating store operation",
			Buckets: []float64{1, 10, 100, 500, 1000, 5000, 10000, 50000},
		},
		[]string{"operation"},
	)

	StoreConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirindex_store_connections_open",
			Help: "Number of open database connections",
		},
	)

	StoreEntriesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dirindex_store_entries_total",
			Help: "Number of indexed entries by kind",
		},
		[]string{"kind"}, // "file", "dir"
	)

	StoreRootsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dirindex_store_roots_total",
			Help: "Number of watched roots by health status",
		},
		[]string{"status"},
	)
)

// Scanner metrics
var (
	ScanRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirindex_scan_runs_total",
			Help: "Total number of scans by mode",
		},
		[]string{"mode", "status"}, // mode: "full", "incremental"
	)

	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dirindex_scan_duration_seconds",
			Help:    "Scan duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"mode"},
	)

	ScanEntriesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirindex_scan_entries_processed_total",
			Help: "Total number of filesystem entries examined by the scanner",
		},
	)

	ScanEntriesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirindex_scan_entries_skipped_total",
			Help: "Entries skipped because size and mtime were unchanged",
		},
	)

	ScanEntryErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirindex_scan_entry_errors_total",
			Help: "Per-entry stat or read failures skipped during scans",
		},
	)

	ScanEntriesPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirindex_scan_entries_purged_total",
			Help: "Stale entries removed after completed scan generations",
		},
	)

	ScansInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirindex_scans_in_flight",
			Help: "Number of scans currently running",
		},
	)

	ScanWalkerWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirindex_scan_walker_workers",
			Help: "Number of parallel walker workers configured",
		},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirindex_watcher_events_total",
			Help: "Raw filesystem notifications received by local watchers",
		},
		[]string{"op"}, // "create", "write", "remove", "rename", "chmod"
	)

	WatcherFlushesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirindex_watcher_flushes_total",
			Help: "Debounced event batches handed to the scanner",
		},
	)

	WatcherSubscriptionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirindex_watcher_subscription_errors_total",
			Help: "Failures establishing or maintaining OS notification subscriptions",
		},
	)
)

// Poller metrics
var (
	PollerChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirindex_poller_checks_total",
			Help: "Network poll ticks by outcome",
		},
		[]string{"outcome"}, // "unchanged", "changed", "failed"
	)

	PollerCheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dirindex_poller_check_duration_seconds",
			Help:    "Duration of cheap change-detection checks",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
	)

	PollerBackoffSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dirindex_poller_backoff_seconds",
			Help: "Current retry delay per watched root in backoff",
		},
		[]string{"root"},
	)

	PollerDisabledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirindex_poller_disabled_total",
			Help: "Roots auto-disabled after repeated poll failures",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirindex_fs_retry_attempts_total",
			Help: "Retry attempts for filesystem operations on flaky mounts",
		},
		[]string{"operation"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirindex_fs_retry_success_total",
			Help: "Filesystem operations that succeeded after at least one retry",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirindex_fs_retry_failures_total",
			Help: "Filesystem operations that exhausted all retries",
		},
		[]string{"operation"},
	)
)

// Memory backpressure metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirindex_memory_usage_ratio",
			Help: "Heap usage as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirindex_memory_paused",
			Help: "Whether scan batch producers are paused for memory pressure (0 or 1)",
		},
	)

	MemoryGCForced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirindex_memory_gc_forced_total",
			Help: "Garbage collections forced on entering memory-critical state",
		},
	)
)
