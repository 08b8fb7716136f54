package worker

import (
	"sync/atomic"
)

// Counters are the worker's running totals.
type Counters struct {
	Received     atomic.Uint64
	Decoded      atomic.Uint64
	DecodeErrors atomic.Uint64
	Filtered     atomic.Uint64
	Published    atomic.Uint64
	Batches      atomic.Uint64
}

// Stats is a point-in-time copy of Counters.
type Stats struct {
	Received     uint64
	Decoded      uint64
	DecodeErrors uint64
	Filtered     uint64
	Published    uint64
	Batches      uint64
}

func (c *Counters) Snapshot() Stats {
	return Stats{
		Received:     c.Received.Load(),
		Decoded:      c.Decoded.Load(),
		DecodeErrors: c.DecodeErrors.Load(),
		Filtered:     c.Filtered.Load(),
		Published:    c.Published.Load(),
		Batches:      c.Batches.Load(),
	}
}

// Reset resets all counters to zero.
func (c *Counters) Reset() {
	c.Received.Store(0)
	c.Decoded.Store(0)
	c.DecodeErrors.Store(0)
	c.Filtered.Store(0)
	c.Published.Store(0)
	c.Batches.Store(0)
}
