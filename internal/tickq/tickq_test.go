package tickq

import (
	"testing"

	"github.com/shopspring/decimal"

	"tibcore/internal/model"
)

func tick(seq uint64) model.Tick {
	return model.Tick{
		Instrument: "BTCUSDT",
		Price:      decimal.NewFromInt(100),
		Seq:        seq,
	}
}

func TestQueue_DropOldest(t *testing.T) {
	q := New(3, DropOldest)

	for i := uint64(1); i <= 5; i++ {
		q.Push(tick(i))
	}

	if q.Dropped() != 2 {
		t.Errorf("expected 2 dropped, got %d", q.Dropped())
	}
	if q.Len() != 3 {
		t.Errorf("expected depth 3, got %d", q.Len())
	}

	// Ticks 1 and 2 were evicted; 3, 4, 5 remain in order.
	for want := uint64(3); want <= 5; want++ {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("queue empty at seq %d", want)
		}
		if got.Seq != want {
			t.Errorf("expected seq %d, got %d", want, got.Seq)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("queue should be empty")
	}
}

func TestQueue_DropNewest(t *testing.T) {
	q := New(3, DropNewest)

	for i := uint64(1); i <= 5; i++ {
		q.Push(tick(i))
	}

	if q.Dropped() != 2 {
		t.Errorf("expected 2 dropped, got %d", q.Dropped())
	}

	// Incoming ticks 4 and 5 were rejected; 1, 2, 3 remain.
	for want := uint64(1); want <= 3; want++ {
		got, _ := q.Pop()
		if got.Seq != want {
			t.Errorf("expected seq %d, got %d", want, got.Seq)
		}
	}
}

func TestQueue_PushReturnValue(t *testing.T) {
	q := New(2, DropOldest)
	if !q.Push(tick(1)) || !q.Push(tick(2)) {
		t.Error("push below capacity reported a drop")
	}
	if q.Push(tick(3)) {
		t.Error("push at capacity did not report a drop")
	}
}

func TestQueue_NotifyCoalesces(t *testing.T) {
	q := New(10, DropOldest)

	q.Push(tick(1))
	q.Push(tick(2))
	q.Push(tick(3))

	// One buffered signal regardless of push count; the consumer drains.
	select {
	case <-q.Notify():
	default:
		t.Fatal("no wakeup after pushes")
	}
	select {
	case <-q.Notify():
		t.Fatal("wakeup signals not coalesced")
	default:
	}

	drained := 0
	for {
		if _, ok := q.Pop(); !ok {
			break
		}
		drained++
	}
	if drained != 3 {
		t.Errorf("drained %d ticks, want 3", drained)
	}
}

func TestParsePolicy(t *testing.T) {
	if ParsePolicy("newest") != DropNewest {
		t.Error("newest not parsed")
	}
	if ParsePolicy("oldest") != DropOldest {
		t.Error("oldest not parsed")
	}
	if ParsePolicy("") != DropOldest {
		t.Error("default policy is drop-oldest")
	}
}
