package engine

import "sync/atomic"

// Clock is a monotonic logical clock. Every processed event is stamped
// with a strictly increasing seq number so traces have a deterministic
// order independent of wall-clock jitter.
//
// Thread-safety: safe for concurrent use (atomic operations), though the
// engine's single-writer loop is normally the only caller of Next().
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
