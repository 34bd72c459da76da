// Package store is the persistent index: SQLite-backed tables for
// watched roots and file entries with a trigram FTS index on names.
// All mutating operations are transactional; readers see pre- or
// post-batch state under WAL snapshot isolation. Storage failures wrap
// ErrStorage and are non-retryable for the current call without being
// fatal to the process.
package store
