package backpressure

import (
	"testing"

	"github.com/momentics/wsproto/api"
)

func TestPriorityOrderingControlBeforeOthers(t *testing.T) {
	buf := NewSendBuffer(1<<20, 1000, OrderingPriority)

	buf.Enqueue([]byte("low"), api.MessageBinary, PriorityLow)
	buf.Enqueue([]byte("normal"), api.MessageBinary, PriorityNormal)
	buf.Enqueue([]byte("high"), api.MessageBinary, PriorityHigh)
	buf.Enqueue([]byte("control"), api.MessageBinary, PriorityControl)

	order := []string{}
	for {
		item, ok := buf.Dequeue()
		if !ok {
			break
		}
		order = append(order, string(item.Data))
	}

	want := []string{"control", "high", "normal", "low"}
	if len(order) != len(want) {
		t.Fatalf("dequeue order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("dequeue order = %v, want %v", order, want)
		}
	}
}

func TestFIFOWithinSamePriority(t *testing.T) {
	buf := NewSendBuffer(1<<20, 1000, OrderingPriority)
	buf.Enqueue([]byte("first"), api.MessageBinary, PriorityNormal)
	buf.Enqueue([]byte("second"), api.MessageBinary, PriorityNormal)
	buf.Enqueue([]byte("third"), api.MessageBinary, PriorityNormal)

	for _, want := range []string{"first", "second", "third"} {
		item, ok := buf.Dequeue()
		if !ok {
			t.Fatalf("expected an item")
		}
		if string(item.Data) != want {
			t.Fatalf("Dequeue() = %q, want %q", item.Data, want)
		}
	}
}

func TestBufferedAmountMonotonicity(t *testing.T) {
	buf := NewSendBuffer(1<<20, 1000, OrderingPriority)
	sizes := []int{10, 20, 30, 5}
	total := int64(0)
	peak := int64(0)
	for _, n := range sizes {
		buf.Enqueue(make([]byte, n), api.MessageBinary, PriorityNormal)
		total += int64(n)
		if total > peak {
			peak = total
		}
		if got := buf.BufferedAmount(); got != total {
			t.Fatalf("BufferedAmount() = %d, want %d", got, total)
		}
	}

	item, _ := buf.Dequeue()
	total -= item.size()
	if got := buf.BufferedAmount(); got != total {
		t.Fatalf("BufferedAmount() after dequeue = %d, want %d", got, total)
	}
	if got := buf.PeakBufferedAmount(); got != peak {
		t.Fatalf("PeakBufferedAmount() = %d, want %d", got, peak)
	}
}

func TestAdmissionEvictsLowPriorityUnderPressure(t *testing.T) {
	buf := NewSendBuffer(100, 1000, OrderingPriority)
	buf.Enqueue(make([]byte, 60), api.MessageBinary, PriorityLow)
	buf.Enqueue(make([]byte, 30), api.MessageBinary, PriorityLow)

	if !buf.Enqueue(make([]byte, 50), api.MessageBinary, PriorityNormal) {
		t.Fatalf("Normal-priority item should have evicted enough Low entries to be admitted")
	}
	if got := buf.BufferedAmount(); got > 100 {
		t.Fatalf("BufferedAmount() = %d, want <= 100 after eviction", got)
	}
	msgs, bytes := buf.DroppedCounters()
	if msgs == 0 || bytes == 0 {
		t.Fatalf("expected evicted Low entries to be counted as dropped, got msgs=%d bytes=%d", msgs, bytes)
	}
}

func TestAdmissionRejectsNormalWhenNoRoom(t *testing.T) {
	buf := NewSendBuffer(50, 1000, OrderingPriority)
	buf.Enqueue(make([]byte, 50), api.MessageBinary, PriorityNormal)

	if buf.Enqueue(make([]byte, 10), api.MessageBinary, PriorityNormal) {
		t.Fatalf("expected the second Normal-priority item to be dropped")
	}
}

func TestHysteresisTransitions(t *testing.T) {
	sm := newStateMachine(750, 250, 1000, 1000)

	sm.reevaluate(800, 1)
	if sm.state != Paused {
		t.Fatalf("state = %v, want Paused after crossing high water", sm.state)
	}

	sm.reevaluate(500, 1)
	if sm.state != Paused {
		t.Fatalf("state = %v, want still Paused below high water but above low water", sm.state)
	}

	sm.reevaluate(200, 1)
	if sm.state != Flowing {
		t.Fatalf("state = %v, want Flowing after crossing low water", sm.state)
	}
}

// TestBackpressureDrainScenario reproduces the concrete end-to-end
// scenario: max=1000, high=750, low=250; 8 Normal messages of 100 bytes
// each, then drain 6.
func TestBackpressureDrainScenario(t *testing.T) {
	buf := NewSendBuffer(1000, 1000, OrderingPriority)
	sm := newStateMachine(750, 250, 1000, 1000)

	drainEvents := 0
	sm.onDrain = func() { drainEvents++ }

	for i := 0; i < 8; i++ {
		buf.Enqueue(make([]byte, 100), api.MessageBinary, PriorityNormal)
		sm.reevaluate(buf.BufferedAmount(), buf.PendingMessages())
	}

	if sm.state != Paused {
		t.Fatalf("state = %v, want Paused after 8 enqueues", sm.state)
	}
	if sm.timesPaused != 1 {
		t.Fatalf("timesPaused = %d, want 1", sm.timesPaused)
	}

	for i := 0; i < 6; i++ {
		if _, ok := buf.Dequeue(); !ok {
			t.Fatalf("expected an item to dequeue")
		}
		sm.reevaluate(buf.BufferedAmount(), buf.PendingMessages())
	}

	if sm.state != Flowing {
		t.Fatalf("state = %v, want Flowing after draining to 200 bytes", sm.state)
	}
	if got := buf.BufferedAmount(); got != 200 {
		t.Fatalf("BufferedAmount() = %d, want 200", got)
	}
	if drainEvents != 1 {
		t.Fatalf("drainEvents = %d, want 1", drainEvents)
	}
	if sm.drainEvents != 1 {
		t.Fatalf("sm.drainEvents = %d, want 1", sm.drainEvents)
	}
}
