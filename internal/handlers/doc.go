// Package handlers implements the HTTP API: root management, bounded
// search and browsing, status and health reporting, scan error views
// and store maintenance.
package handlers
