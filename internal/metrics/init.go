package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, op := range []string{
		"initialize_schema", "upsert_batch", "delete_missing", "search",
		"list_children", "export_root", "next_generation", "create_root",
		"update_root", "delete_root", "insert_scan_error", "vacuum",
		"rebuild_fts",
	} {
		StoreQueryTotal.WithLabelValues(op, "success")
		StoreQueryTotal.WithLabelValues(op, "error")
		StoreQueryDuration.WithLabelValues(op)
	}

	for _, outcome := range []string{"commit", "rollback"} {
		StoreTransactionDuration.WithLabelValues(outcome)
	}

	for _, op := range []string{"upsert_batch", "delete_missing", "delete_root"} {
		StoreRowsAffected.WithLabelValues(op)
	}

	for _, kind := range []string{"file", "dir"} {
		StoreEntriesTotal.WithLabelValues(kind)
	}

	for _, status := range []string{"normal", "warning", "error", "disabled"} {
		StoreRootsTotal.WithLabelValues(status)
	}

	for _, mode := range []string{"full", "incremental"} {
		ScanDuration.WithLabelValues(mode)
		ScanRunsTotal.WithLabelValues(mode, "success")
		ScanRunsTotal.WithLabelValues(mode, "error")
	}

	for _, op := range []string{"create", "write", "remove", "rename", "chmod"} {
		WatcherEventsTotal.WithLabelValues(op)
	}

	for _, outcome := range []string{"unchanged", "changed", "error"} {
		PollerChecksTotal.WithLabelValues(outcome)
	}

	for _, op := range []string{"stat", "readdir"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetrySuccess.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}
}
