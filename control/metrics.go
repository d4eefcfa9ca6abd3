// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector. Grounded on MetricsRegistry's generic,
// dynamically-keyed map[string]any shape, specialized here to the one
// snapshot type this library actually produces: backpressure.Stats,
// keyed by connection id, so callers get typed fields back instead of
// re-parsing flattened string keys.

package control

import (
	"sync"
	"time"

	"github.com/momentics/wsproto/backpressure"
)

// MetricsRegistry holds the latest backpressure.Stats reported per
// connection.
type MetricsRegistry struct {
	mu      sync.RWMutex
	stats   map[string]backpressure.Stats
	updated map[string]time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		stats:   make(map[string]backpressure.Stats),
		updated: make(map[string]time.Time),
	}
}

// Record stores stats as the latest snapshot for connID, overwriting
// any prior snapshot.
func (mr *MetricsRegistry) Record(connID string, stats backpressure.Stats) {
	mr.mu.Lock()
	mr.stats[connID] = stats
	mr.updated[connID] = time.Now()
	mr.mu.Unlock()
}

// Get returns the latest snapshot recorded for connID, if any.
func (mr *MetricsRegistry) Get(connID string) (backpressure.Stats, bool) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	s, ok := mr.stats[connID]
	return s, ok
}

// Snapshot returns a copy of every connection's latest stats, keyed by
// connection id.
func (mr *MetricsRegistry) Snapshot() map[string]backpressure.Stats {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]backpressure.Stats, len(mr.stats))
	for k, v := range mr.stats {
		out[k] = v
	}
	return out
}
