// Package tickq implements the bounded inbound tick queue that sits between
// the feed-facing PushTick call and an instrument's pipeline goroutine.
//
// Push never blocks: when the queue is full one tick is dropped according to
// the configured policy and counted, so backpressure loss is reported rather
// than silent.
package tickq

import (
	"sync"
	"sync/atomic"

	"tibcore/internal/model"
)

// DropPolicy selects which tick is sacrificed when the queue is full.
type DropPolicy int

const (
	// DropOldest evicts the oldest queued tick to make room for the new
	// one. Default: a stale tick is less valuable than continuity.
	DropOldest DropPolicy = iota
	// DropNewest rejects the incoming tick.
	DropNewest
)

// ParsePolicy maps a config string to a DropPolicy. Unknown values fall
// back to DropOldest.
func ParsePolicy(s string) DropPolicy {
	if s == "newest" {
		return DropNewest
	}
	return DropOldest
}

// Queue is a bounded FIFO of ticks for one instrument. Push is called by the
// feed side, Pop by the single pipeline goroutine.
type Queue struct {
	mu      sync.Mutex
	buf     []model.Tick
	head    int // index of oldest element
	size    int
	policy  DropPolicy
	dropped atomic.Uint64

	notify chan struct{}
}

// New creates a queue with the given capacity and drop policy.
func New(capacity int, policy DropPolicy) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		buf:    make([]model.Tick, capacity),
		policy: policy,
		notify: make(chan struct{}, 1),
	}
}

// Push enqueues a tick without blocking. Returns false when a tick was
// dropped (either the incoming one or the evicted oldest, per policy).
func (q *Queue) Push(t model.Tick) bool {
	q.mu.Lock()
	ok := true
	if q.size == len(q.buf) {
		q.dropped.Add(1)
		ok = false
		if q.policy == DropNewest {
			q.mu.Unlock()
			q.wake()
			return false
		}
		// Evict oldest, then append.
		q.head = (q.head + 1) % len(q.buf)
		q.size--
	}
	q.buf[(q.head+q.size)%len(q.buf)] = t
	q.size++
	q.mu.Unlock()
	q.wake()
	return ok
}

// Pop dequeues the oldest tick. Returns false when empty.
func (q *Queue) Pop() (model.Tick, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return model.Tick{}, false
	}
	t := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return t, true
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return len(q.buf) }

// Dropped returns the total number of ticks lost to backpressure.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Notify returns a channel that receives a signal after each Push. The
// consumer drains the queue on each signal; coalesced signals are fine.
func (q *Queue) Notify() <-chan struct{} { return q.notify }

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
