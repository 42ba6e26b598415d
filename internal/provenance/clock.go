package provenance

import (
	"sync/atomic"
	"time"
)

// Sequencer hands out strictly increasing sequence numbers.
type Sequencer interface {
	Next() int64
}

// Clock is a monotonic logical clock for event ordering.
//
// All events are stamped with a strictly increasing seq number from this
// clock. Ordering never depends on wall-clock time, so a replay produces
// the same order.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// WallClock supplies wall-clock readings for timestamps.
type WallClock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
