package obs

import (
	"sync/atomic"
	"time"
)

// TraceGenerator hands out monotonically increasing event sequence
// numbers. A zero seed falls back to the current wall clock in
// nanoseconds, which keeps sequences increasing across process
// restarts without any persisted state.
type TraceGenerator struct {
	next atomic.Uint64
}

// NewTraceGenerator returns a generator starting after seed.
func NewTraceGenerator(seed uint64) *TraceGenerator {
	if seed == 0 {
		seed = uint64(time.Now().UTC().UnixNano())
	}
	g := &TraceGenerator{}
	g.next.Store(seed)
	return g
}

// Next returns the next sequence number. Safe for concurrent use.
func (g *TraceGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return g.next.Add(1)
}
