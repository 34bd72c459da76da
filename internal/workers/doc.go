// Package workers sizes worker pools relative to available CPUs,
// honoring container limits and the SCAN_WORKERS override.
package workers
