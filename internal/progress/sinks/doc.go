// Package sinks implements concrete progress consumers: Prometheus metrics,
// structured logging, and terminal-event notifications. Each sink satisfies
// progress.Sink and tolerates repeated Consume/Close cycles.
package sinks
