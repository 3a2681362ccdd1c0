package ledger

import (
	"sort"
	"time"

	"main/internal/schema"
)

// orphanFill is a fill whose order is not yet known, parked until the
// order shows up or the fill ages out.
type orphanFill struct {
	fill    schema.Fill
	recvSeq uint64
	at      time.Time
}

// orphanBuffer bounds parked fills by count and age. Nothing is ever
// dropped silently: evicted and expired fills are handed back for
// diagnostic reporting.
type orphanBuffer struct {
	limit int
	ttl   time.Duration
	fills []orphanFill
}

func newOrphanBuffer(limit int, ttl time.Duration) *orphanBuffer {
	return &orphanBuffer{limit: limit, ttl: ttl}
}

// add parks a fill. When the buffer is over capacity the oldest
// entries are evicted and returned.
func (b *orphanBuffer) add(o orphanFill) []schema.Fill {
	b.fills = append(b.fills, o)
	if len(b.fills) <= b.limit {
		return nil
	}
	n := len(b.fills) - b.limit
	evicted := make([]schema.Fill, 0, n)
	for _, e := range b.fills[:n] {
		evicted = append(evicted, e.fill)
	}
	b.fills = append(b.fills[:0], b.fills[n:]...)
	return evicted
}

// take removes and returns every parked fill for one order, ordered
// by broker fill id, then local receipt order.
func (b *orphanBuffer) take(orderID uint64) []orphanFill {
	var taken []orphanFill
	kept := b.fills[:0]
	for _, e := range b.fills {
		if e.fill.OrderID == orderID {
			taken = append(taken, e)
		} else {
			kept = append(kept, e)
		}
	}
	b.fills = kept
	if len(taken) > 1 {
		sort.Slice(taken, func(i, j int) bool {
			if taken[i].fill.FillID != taken[j].fill.FillID {
				return taken[i].fill.FillID < taken[j].fill.FillID
			}
			return taken[i].recvSeq < taken[j].recvSeq
		})
	}
	return taken
}

// expire removes and returns fills older than the ttl.
func (b *orphanBuffer) expire(now time.Time) []schema.Fill {
	if b.ttl <= 0 {
		return nil
	}
	cutoff := now.Add(-b.ttl)
	var expired []schema.Fill
	kept := b.fills[:0]
	for _, e := range b.fills {
		if e.at.Before(cutoff) {
			expired = append(expired, e.fill)
		} else {
			kept = append(kept, e)
		}
	}
	b.fills = kept
	return expired
}

func (b *orphanBuffer) len() int {
	return len(b.fills)
}
