// Package ringbuf provides a fixed-capacity circular history of model.Candle
// for one (symbol, timeframe) pair. One writer appends or replaces the newest
// bar; any number of readers take copies. When full, the oldest bar is
// overwritten.
package ringbuf

import (
	"sync"
	"sync/atomic"

	"trading-signalsv1/internal/model"
)

// Ring is a circular candle history. Size is a power of two so positions
// wrap with a bitwise mask.
type Ring struct {
	mu   sync.RWMutex
	buf  []model.Candle
	mask uint64
	head uint64 // total bars ever appended

	// Bars overwritten because the window was full (atomic, for metrics).
	overflow atomic.Uint64
}

// New creates a ring. capacity is rounded up to the next power of two.
// Minimum capacity is 2.
func New(capacity int) *Ring {
	cap := nextPow2(capacity)
	if cap < 2 {
		cap = 2
	}
	return &Ring{
		buf:  make([]model.Candle, cap),
		mask: uint64(cap - 1),
	}
}

// UpsertResult reports what Upsert did.
type UpsertResult int

const (
	Ignored  UpsertResult = iota // older than the newest bar
	Replaced                     // same timestamp as the newest bar
	Appended                     // newer bar
)

// Upsert records c. A bar with the newest timestamp replaces it (the bar was
// still forming), a newer bar is appended and an older one is ignored.
func (r *Ring) Upsert(c model.Candle) UpsertResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.head > 0 {
		lastIdx := (r.head - 1) & r.mask
		last := r.buf[lastIdx].Timestamp
		switch {
		case c.Timestamp.Equal(last):
			r.buf[lastIdx] = c
			return Replaced
		case c.Timestamp.Before(last):
			return Ignored
		}
	}
	if r.head >= uint64(len(r.buf)) {
		r.overflow.Add(1)
	}
	r.buf[r.head&r.mask] = c
	r.head++
	return Appended
}

// Snapshot returns the retained bars, oldest first. The slice is a copy.
func (r *Ring) Snapshot() []model.Candle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.lenLocked()
	out := make([]model.Candle, n)
	start := r.head - uint64(n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+uint64(i))&r.mask]
	}
	return out
}

// Last returns the newest bar.
func (r *Ring) Last() (model.Candle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.head == 0 {
		return model.Candle{}, false
	}
	return r.buf[(r.head-1)&r.mask], true
}

// Len returns the number of retained bars.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lenLocked()
}

func (r *Ring) lenLocked() int {
	return int(min(r.head, uint64(len(r.buf))))
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Overflow returns the total number of bars overwritten.
func (r *Ring) Overflow() uint64 {
	return r.overflow.Load()
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
