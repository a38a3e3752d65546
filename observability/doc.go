// Package observability provides lock-free counters and a per-syscall
// latency tracer for the selector package. It never blocks the selector's
// single-threaded hot path: every recording method is a handful of atomic
// operations, on plain counter fields for Metrics and on a sync.Map entry
// for Tracer.
package observability
