// Package metrics defines the Prometheus collectors for the index engine:
// HTTP traffic, index store queries and transactions, scanner throughput,
// watcher event flow, network poller health, and filesystem retry behavior.
package metrics
