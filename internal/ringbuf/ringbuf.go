// Package ringbuf provides a fixed-capacity ring that keeps the most recent
// values, overwriting the oldest once full. It backs the per-timeframe
// closed-candle history and the recent pattern/alert windows.
package ringbuf

// Ring is a bounded most-recent-N buffer. Not safe for concurrent use; each
// instance is owned by a single pipeline goroutine.
type Ring[T any] struct {
	buf  []T
	head int // next write position
	size int
}

// New creates a ring with the given capacity. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends a value, evicting the oldest when full.
func (r *Ring[T]) Push(v T) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// Len returns the number of stored values.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// At returns the i-th stored value, 0 being the oldest.
func (r *Ring[T]) At(i int) T {
	start := r.head - r.size
	if start < 0 {
		start += len(r.buf)
	}
	return r.buf[(start+i)%len(r.buf)]
}

// Latest returns the most recently pushed value.
func (r *Ring[T]) Latest() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	idx := r.head - 1
	if idx < 0 {
		idx += len(r.buf)
	}
	return r.buf[idx], true
}

// Last copies out the n most recent values in oldest-first order. Returns
// fewer than n when the ring holds fewer.
func (r *Ring[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.At(r.size - n + i)
	}
	return out
}
