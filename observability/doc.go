// Package observability provides a metrics extension for cadence. The
// MetricsExtension implements lifecycle hooks to record scheduler-wide
// counters for submission, start, completion, retry, failure, cancellation
// and garbage collection of jobs.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
