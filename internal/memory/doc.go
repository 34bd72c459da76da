// Package memory configures GOMEMLIMIT from container limits and
// provides heap-pressure backpressure for scan batch producers.
package memory
