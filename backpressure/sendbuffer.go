// File: backpressure/sendbuffer.go
// Author: momentics <momentics@gmail.com>
//
// SendBuffer is the priority-aware outbound queue: a mutex-protected
// admission-controlled queue of not-yet-written items,
// with tail-first eviction of Low-priority entries under pressure.
// Grounded on a declared-but-never-imported github.com/eapache/queue
// dependency carried in go.mod — used here as the per-priority FIFO
// ring buffer that backs each of the four priority classes.

package backpressure

import (
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/momentics/wsproto/api"
)

// Item is one not-yet-written entry in a SendBuffer.
type Item struct {
	Data       []byte
	Type       api.MessageType
	Priority   Priority
	EnqueuedAt time.Time
}

func (it *Item) size() int64 { return int64(len(it.Data)) }

// SendBuffer is an ordered, bounded sequence of Items. It is safe for
// concurrent enqueue from one task and concurrent dequeue/drain from
// another; both sides share the same mutex. It is the only data
// structure in this library meant to be touched from more than one
// goroutine.
type SendBuffer struct {
	mu sync.Mutex

	mode        OrderingMode
	maxBytes    int64
	maxMessages int

	// byPriority holds one FIFO queue per Priority class, used when
	// mode == OrderingPriority.
	byPriority [numPriorities]*queue.Queue
	// fifo holds every item in insertion order, used when
	// mode == OrderingFIFO.
	fifo *queue.Queue

	totalBytes int64
	count      int

	messagesDropped int64
	bytesDropped    int64
	peakBuffered    int64
}

// NewSendBuffer constructs an empty SendBuffer bounded by maxBytes and
// maxMessages, ordered per mode.
func NewSendBuffer(maxBytes int64, maxMessages int, mode OrderingMode) *SendBuffer {
	b := &SendBuffer{mode: mode, maxBytes: maxBytes, maxMessages: maxMessages}
	for i := range b.byPriority {
		b.byPriority[i] = queue.New()
	}
	b.fifo = queue.New()
	return b
}

// BufferedAmount returns the total bytes currently queued.
func (b *SendBuffer) BufferedAmount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalBytes
}

// PendingMessages returns the number of items currently queued.
func (b *SendBuffer) PendingMessages() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// PeakBufferedAmount returns the maximum BufferedAmount ever observed.
func (b *SendBuffer) PeakBufferedAmount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peakBuffered
}

// Enqueue applies the admission policy and, if admitted, inserts item
// in the configured order. Returns false when the item was
// dropped outright (priority >= Normal and no room could be made).
func (b *SendBuffer) Enqueue(data []byte, msgType api.MessageType, priority Priority) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	item := &Item{Data: data, Type: msgType, Priority: priority, EnqueuedAt: time.Now()}
	need := item.size()

	if b.totalBytes+need > b.maxBytes || b.count >= b.maxMessages {
		b.evictLowTail(b.totalBytes+need-b.maxBytes, b.count+1-b.maxMessages)

		stillOver := b.totalBytes+need > b.maxBytes || b.count >= b.maxMessages
		if stillOver && priority >= PriorityNormal {
			b.messagesDropped++
			b.bytesDropped += need
			return false
		}
		// priority < Normal: admitted regardless of remaining overshoot.
		// Cap enforcement for sub-Normal priorities is best-effort, not
		// strict.
	}

	b.insert(item)
	b.totalBytes += need
	b.count++
	if b.totalBytes > b.peakBuffered {
		b.peakBuffered = b.totalBytes
	}
	return true
}

func (b *SendBuffer) insert(item *Item) {
	if b.mode == OrderingFIFO {
		b.fifo.Add(item)
		return
	}
	b.byPriority[item.Priority].Add(item)
}

// Dequeue removes and returns the next item per the configured ordering,
// or (nil, false) if the buffer is empty.
func (b *SendBuffer) Dequeue() (*Item, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dequeueLocked()
}

func (b *SendBuffer) dequeueLocked() (*Item, bool) {
	var item *Item
	if b.mode == OrderingFIFO {
		if b.fifo.Length() == 0 {
			return nil, false
		}
		item = b.fifo.Remove().(*Item)
	} else {
		q := b.nextNonEmptyQueue(PriorityLow)
		if q == nil {
			return nil, false
		}
		item = q.Remove().(*Item)
	}
	b.totalBytes -= item.size()
	b.count--
	return item, true
}

// DequeueHighPriority removes and returns the next item whose priority
// is Control or High, or (nil, false) if none is queued. Used by
// Wrapper.FlushHighPriority during close. In OrderingFIFO mode it always
// returns (nil, false), even when Control or High items are queued.
func (b *SendBuffer) DequeueHighPriority() (*Item, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mode == OrderingFIFO {
		return nil, false
	}
	q := b.nextNonEmptyQueue(PriorityHigh)
	if q == nil {
		return nil, false
	}
	item := q.Remove().(*Item)
	b.totalBytes -= item.size()
	b.count--
	return item, true
}

// nextNonEmptyQueue scans priority classes Control..maxPriority in
// ascending order (most urgent first) and returns the first non-empty
// queue, or nil.
func (b *SendBuffer) nextNonEmptyQueue(maxPriority Priority) *queue.Queue {
	for p := PriorityControl; p <= maxPriority; p++ {
		if b.byPriority[p].Length() > 0 {
			return b.byPriority[p]
		}
	}
	return nil
}

// evictLowTail evicts Low-priority entries, most-recently-enqueued
// first, until needBytes and needCount (whichever is still positive)
// are satisfied or the Low queue is exhausted.
func (b *SendBuffer) evictLowTail(needBytes int64, needCount int) {
	q := b.byPriority[PriorityLow]
	if b.mode == OrderingFIFO {
		q = b.fifo
	}

	for needBytes > 0 || needCount > 0 {
		n := q.Length()
		if n == 0 {
			return
		}
		item := b.removeTail(q, n)
		if item == nil {
			return
		}
		b.totalBytes -= item.size()
		b.count--
		b.messagesDropped++
		b.bytesDropped += item.size()
		needBytes -= item.size()
		needCount--
	}
}

// removeTail removes the last Low-priority element of q (length n) by
// draining the queue into a slice, per eapache/queue's front-only Remove
// primitive, and re-adding everything else in order. Returns nil if q
// holds no Low-priority element.
func (b *SendBuffer) removeTail(q *queue.Queue, n int) *Item {
	items := make([]*Item, n)
	tail := -1
	for i := 0; i < n; i++ {
		items[i] = q.Remove().(*Item)
		if items[i].Priority == PriorityLow {
			tail = i
		}
	}
	for i, it := range items {
		if i != tail {
			q.Add(it)
		}
	}
	if tail < 0 {
		return nil
	}
	return items[tail]
}

// Clear empties the buffer, accounting every removed item as dropped.
// Used by the DropMessages slow-client policy.
func (b *SendBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		item, ok := b.dequeueLocked()
		if !ok {
			break
		}
		b.messagesDropped++
		b.bytesDropped += item.size()
	}
}

// DroppedCounters returns the cumulative dropped message/byte counts.
func (b *SendBuffer) DroppedCounters() (messages, bytes int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.messagesDropped, b.bytesDropped
}
