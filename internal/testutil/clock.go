package testutil

import "sync"

// DeterministicClock is a resettable sequencer for dispatch records.
//
// It satisfies engine.Sequencer. Unlike engine.Clock it can be rewound, so
// one scenario run twice stamps identical seq values.
type DeterministicClock struct {
	mu    sync.Mutex
	start int64
	seq   int64
}

// NewDeterministicClock creates a clock whose first Next returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// NewDeterministicClockAt creates a clock whose first Next returns start+1.
// Reset returns it to start.
func NewDeterministicClockAt(start int64) *DeterministicClock {
	return &DeterministicClock{start: start, seq: start}
}

// Next increments and returns the next sequence number.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last issued sequence number.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Issued reports how many numbers were handed out since the last reset.
func (c *DeterministicClock) Issued() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq - c.start
}

// Reset rewinds the clock to its starting point.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = c.start
}
