// File: backpressure/state.go
// Author: momentics <momentics@gmail.com>
//
// Flowing/Paused/Critical hysteresis state machine, re-evaluated after
// every enqueue/dequeue. FlowState follows the same enum-with-String()
// style as protocol.State in protocol/connection.go.

package backpressure

import "time"

// FlowState is one of the three backpressure states.
type FlowState int

const (
	Flowing FlowState = iota
	Paused
	Critical
)

func (s FlowState) String() string {
	switch s {
	case Flowing:
		return "flowing"
	case Paused:
		return "paused"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// stateMachine tracks FlowState transitions driven by buffered-byte and
// message-count water marks. It is not safe for concurrent use; the
// Wrapper serializes access to it under its own mutex.
type stateMachine struct {
	state FlowState

	highWater   int64
	lowWater    int64
	maxBytes    int64
	maxMessages int

	pausedSince time.Time
	timesPaused int64
	drainEvents int64

	totalPausedDuration time.Duration

	onStateChange func(old, new FlowState)
	onDrain       func()
}

func newStateMachine(highWater, lowWater, maxBytes int64, maxMessages int) *stateMachine {
	return &stateMachine{
		state:       Flowing,
		highWater:   highWater,
		lowWater:    lowWater,
		maxBytes:    maxBytes,
		maxMessages: maxMessages,
	}
}

// reevaluate recomputes state from the current buffered bytes/message
// count and fires onStateChange/onDrain as needed. Called after every
// enqueue/dequeue.
func (m *stateMachine) reevaluate(bufferedBytes int64, count int) {
	old := m.state

	switch m.state {
	case Flowing:
		if bufferedBytes >= m.highWater {
			m.state = Paused
		}
	case Paused:
		switch {
		case bufferedBytes <= m.lowWater:
			m.state = Flowing
		case bufferedBytes >= m.maxBytes || count >= m.maxMessages:
			m.state = Critical
		}
	case Critical:
		switch {
		case bufferedBytes <= m.lowWater:
			m.state = Flowing
		case bufferedBytes < m.highWater:
			m.state = Paused
		}
	}

	if m.state == old {
		return
	}

	now := time.Now()
	if old == Flowing && m.state == Paused {
		m.pausedSince = now
		m.timesPaused++
	}
	if (old == Paused || old == Critical) && m.state == Flowing {
		if !m.pausedSince.IsZero() {
			m.totalPausedDuration += now.Sub(m.pausedSince)
			m.pausedSince = time.Time{}
		}
		m.drainEvents++
		if m.onDrain != nil {
			m.onDrain()
		}
	}

	if m.onStateChange != nil {
		m.onStateChange(old, m.state)
	}
}

// pausedDuration returns the total time spent Paused or Critical so far,
// including any in-progress pause.
func (m *stateMachine) pausedDuration() time.Duration {
	d := m.totalPausedDuration
	if !m.pausedSince.IsZero() {
		d += time.Since(m.pausedSince)
	}
	return d
}
