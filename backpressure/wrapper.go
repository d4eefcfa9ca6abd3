// File: backpressure/wrapper.go
// Author: momentics <momentics@gmail.com>
//
// Wrapper intercepts a Connection's send path with a priority SendBuffer
// and a Flowing/Paused/Critical state machine. It does
// not alter receive semantics beyond calling Drain opportunistically
// after each Receive. Grounded on WSConnection wrapping an api.Transport
// (protocol/connection.go) — here the wrapped thing is a
// *protocol.Connection rather than a raw transport, and the extra layer
// is the outbound queue rather than channel fan-out.

package backpressure

import (
	"sync"
	"time"

	"github.com/momentics/wsproto/api"
	"github.com/momentics/wsproto/protocol"
)

// Wrapper wraps a *protocol.Connection with priority-aware outbound
// buffering and slow-client detection. Its own mutex covers the buffer,
// state machine, and counters; the underlying Connection is still
// expected to be driven by a single task, per the package-level
// concurrency contract.
type Wrapper struct {
	conn *protocol.Connection
	cfg  *BackpressureConfig
	buf  *SendBuffer
	sm   *stateMachine

	mu sync.Mutex

	messagesSent         int64
	bytesSent            int64
	slowClientDetected   bool
	slowClientDetections int64
}

// NewWrapper builds a Wrapper around conn, governed by cfg.
func NewWrapper(conn *protocol.Connection, cfg *BackpressureConfig) *Wrapper {
	buf := NewSendBuffer(cfg.MaxBytes, cfg.MaxMessages, cfg.Mode)
	sm := newStateMachine(cfg.HighWater, cfg.LowWater, cfg.MaxBytes, cfg.MaxMessages)
	sm.onStateChange = cfg.OnStateChange
	sm.onDrain = cfg.OnDrain
	return &Wrapper{conn: conn, cfg: cfg, buf: buf, sm: sm}
}

// SendText enqueues or writes through a Text message at Normal priority.
func (w *Wrapper) SendText(s string) error {
	return w.send(api.MessageText, []byte(s), PriorityNormal)
}

// SendBinary enqueues or writes through a Binary message at Normal
// priority.
func (w *Wrapper) SendBinary(b []byte) error {
	return w.send(api.MessageBinary, b, PriorityNormal)
}

// SendWithPriority enqueues or writes through a message at an
// explicitly chosen priority, for applications that need finer control
// than the Normal default SendText/SendBinary use.
func (w *Wrapper) SendWithPriority(msgType api.MessageType, data []byte, priority Priority) error {
	return w.send(msgType, data, priority)
}

// Ping enqueues or writes through a Ping control frame at Control
// priority, so it can overtake queued data frames.
func (w *Wrapper) Ping(payload []byte) error {
	return w.send(api.MessagePing, payload, PriorityControl)
}

// Pong enqueues or writes through a Pong control frame at Control
// priority.
func (w *Wrapper) Pong(payload []byte) error {
	return w.send(api.MessagePong, payload, PriorityControl)
}

// Receive delegates to the wrapped Connection and drains the outbound
// buffer opportunistically afterward.
func (w *Wrapper) Receive() (api.Message, error) {
	msg, err := w.conn.Receive()
	w.Drain()
	return msg, err
}

// Close flushes Control/High priority items (so a queued Ping or Pong
// can still escape) before closing the underlying connection, which
// sends the Close frame itself.
func (w *Wrapper) Close(code api.CloseCode, reason string) error {
	w.FlushHighPriority()
	return w.conn.Close(code, reason)
}

// Connected reports whether the underlying connection is still usable.
func (w *Wrapper) Connected() bool {
	return w.conn.Connected()
}

// Stats returns a snapshot of the wrapper's cumulative counters.
func (w *Wrapper) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	droppedMessages, droppedBytes := w.buf.DroppedCounters()
	return Stats{
		BufferedAmount:       w.buf.BufferedAmount(),
		PendingMessages:      w.buf.PendingMessages(),
		State:                w.sm.state,
		MessagesSent:         w.messagesSent,
		MessagesDropped:      droppedMessages,
		BytesSent:            w.bytesSent,
		BytesDropped:         droppedBytes,
		TimesPaused:          w.sm.timesPaused,
		DrainEvents:          w.sm.drainEvents,
		SlowClientDetections: w.slowClientDetections,
		TotalPausedDuration:  w.sm.pausedDuration(),
		PeakBufferedAmount:   w.buf.PeakBufferedAmount(),
	}
}

// Drain dequeues items in priority order and writes them through the
// underlying connection until the buffer is empty or a write fails.
// State is re-evaluated after every dequeue.
func (w *Wrapper) Drain() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for {
		item, ok := w.buf.Dequeue()
		if !ok {
			break
		}
		if err := w.writeThrough(item.Type, item.Data); err != nil {
			w.sm.reevaluate(w.buf.BufferedAmount(), w.buf.PendingMessages())
			w.checkSlowClient()
			return err
		}
		w.messagesSent++
		w.bytesSent += item.size()
		w.sm.reevaluate(w.buf.BufferedAmount(), w.buf.PendingMessages())
	}
	w.checkSlowClient()
	return nil
}

// FlushHighPriority dequeues only Control/High priority items, for use
// during close to ensure control frames escape ahead of queued data. In
// OrderingFIFO mode it writes nothing (see SendBuffer.DequeueHighPriority).
func (w *Wrapper) FlushHighPriority() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for {
		item, ok := w.buf.DequeueHighPriority()
		if !ok {
			break
		}
		if err := w.writeThrough(item.Type, item.Data); err != nil {
			w.sm.reevaluate(w.buf.BufferedAmount(), w.buf.PendingMessages())
			return err
		}
		w.messagesSent++
		w.bytesSent += item.size()
		w.sm.reevaluate(w.buf.BufferedAmount(), w.buf.PendingMessages())
	}
	return nil
}

func (w *Wrapper) send(msgType api.MessageType, data []byte, priority Priority) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sm.state == Flowing && w.buf.PendingMessages() == 0 {
		err := w.writeThrough(msgType, data)
		if err == nil {
			w.messagesSent++
			w.bytesSent += int64(len(data))
		}
		return err
	}

	w.buf.Enqueue(data, msgType, priority) // drop outcome observable via Stats().MessagesDropped
	w.sm.reevaluate(w.buf.BufferedAmount(), w.buf.PendingMessages())
	return nil
}

func (w *Wrapper) writeThrough(msgType api.MessageType, data []byte) error {
	switch msgType {
	case api.MessageText:
		return w.conn.SendText(string(data))
	case api.MessageBinary:
		return w.conn.SendBinary(data)
	case api.MessagePing:
		return w.conn.Ping(data)
	case api.MessagePong:
		return w.conn.Pong(data)
	default:
		return api.NewProtocolError("unsupported message type on the send path")
	}
}

// checkSlowClient marks the client slow, at most once, after the state
// machine has spent SlowClientTimeout continuously outside Flowing, and
// dispatches per cfg.SlowClientPolicy.
func (w *Wrapper) checkSlowClient() {
	if w.slowClientDetected || w.sm.state == Flowing {
		return
	}
	if w.sm.pausedSince.IsZero() || time.Since(w.sm.pausedSince) < w.cfg.SlowClientTimeout {
		return
	}

	w.slowClientDetected = true
	w.slowClientDetections++
	if w.cfg.OnSlowClient != nil {
		w.cfg.OnSlowClient()
	}

	switch w.cfg.SlowClientPolicy {
	case Disconnect:
		w.conn.Close(api.ClosePolicyViolation, "slow client")
	case DropMessages:
		w.buf.Clear()
		w.sm.reevaluate(w.buf.BufferedAmount(), w.buf.PendingMessages())
	case LogOnly, Custom:
	}
}
