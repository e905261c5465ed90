// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces used to report archive job lifecycle changes. The hub batches
// events on a background goroutine and fans them out to pluggable sinks such
// as Prometheus metrics, structured logs, or an external notification topic.
package progress
