// Package scanner reconciles the persistent index with the filesystem.
// Full scans enumerate a whole root through a parallel walker and diff
// against stored signatures; incremental scans re-stat paths reported
// by a change source. Deletion is generation based: only a completed
// full scan may purge, so transient outages never empty an index.
package scanner
