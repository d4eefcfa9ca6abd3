// File: backpressure/stats.go
// Author: momentics <momentics@gmail.com>
//
// Stats is a cumulative snapshot: a plain value type callers can poll
// or feed into a metrics registry, in the same snapshot-struct style
// as WSConnection.GetStats (protocol/connection.go).

package backpressure

import "time"

// Stats is a point-in-time snapshot of a Wrapper's counters.
type Stats struct {
	BufferedAmount  int64
	PendingMessages int
	State           FlowState

	MessagesSent    int64
	MessagesDropped int64
	BytesSent       int64
	BytesDropped    int64

	TimesPaused           int64
	DrainEvents           int64
	SlowClientDetections  int64
	TotalPausedDuration   time.Duration
	PeakBufferedAmount    int64
}
