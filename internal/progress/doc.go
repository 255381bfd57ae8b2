// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces that batch runs use to report progress. The hub batches events on
// a background goroutine and fans them out to pluggable sinks such as logs,
// Prometheus metrics, or the run repository.
package progress
