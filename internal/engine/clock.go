package engine

import "sync/atomic"

// Sequencer hands out strictly increasing record sequence numbers.
type Sequencer interface {
	Next() int64
}

// Clock is a monotonic logical clock for dispatch records.
//
// Every record is stamped with a strictly increasing seq. Wall-clock time is
// never used for ordering, so replays produce the same sequence.
//
// Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number.
// Used to continue a journaled instance.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
