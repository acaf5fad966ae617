// Package progress provides the event primitives, non-blocking hub, and emitter
// interface that invocations use to report chunk lifecycle milestones. Events
// live only in process memory: the hub batches them on a background goroutine
// and fans them out to sinks such as structured logs or Prometheus metrics.
package progress
