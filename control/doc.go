// Package control holds the metrics registry backpressure wrappers
// record their Stats snapshots into, keyed by connection id. There is
// no hot-reload or dynamic-config surface here: the configuration
// structs (protocol.ConnectionConfig, backpressure.BackpressureConfig)
// are set once at construction and are not re-read at runtime.
package control
