package domain

import "time"

// Cursor is the stream watermark: the highest block number already
// emitted and the wall-clock time it last advanced. A zero Cursor is
// uninitialized; the streaming loop initializes it on the first
// successful poll and is the only writer afterwards.
type Cursor struct {
	LastBlock     uint64
	LastBlockTime time.Time
	Initialized   bool
}

// Advance moves the watermark to block number n at time now.
// LastBlock is monotonically non-decreasing over the cursor's lifetime.
func (c *Cursor) Advance(n uint64, now time.Time) {
	c.LastBlock = n
	c.LastBlockTime = now
	c.Initialized = true
}
