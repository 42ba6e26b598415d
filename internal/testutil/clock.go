package testutil

import (
	"sync"
	"sync/atomic"
	"time"
)

// DeterministicClock is a resettable provenance.Sequencer. Next returns
// 1, 2, 3, ... from a fresh or reset clock.
type DeterministicClock struct {
	seq atomic.Int64
}

// NewDeterministicClock returns a clock whose first Next is 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock and returns the new sequence number.
func (c *DeterministicClock) Next() int64 { return c.seq.Add(1) }

// Current returns the last number Next handed out, 0 before the first call.
func (c *DeterministicClock) Current() int64 { return c.seq.Load() }

// Reset rewinds the clock so a scenario can be rerun with the same seqs.
func (c *DeterministicClock) Reset() { c.seq.Store(0) }

// Epoch is the first reading of the step clocks used across the tests.
var Epoch = time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)

// StepClock is a provenance.WallClock that moves forward by step on every
// reading, making recorded timestamps and task durations reproducible.
type StepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStepClock returns a clock whose first reading is start.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{now: start, step: step}
}

// Now returns the current reading and advances the clock by step.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = t.Add(c.step)
	return t
}
