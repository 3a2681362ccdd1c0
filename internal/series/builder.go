package series

import "main/internal/schema"

// Builder consolidates trade ticks into bars for one series key. The
// current bucket accumulates until a tick lands in a later bucket,
// which closes it. Stale ticks (before the current bucket) are
// counted and otherwise ignored; the series log rejects out-of-order
// appends and genuine reordering must stay diagnosable.
type Builder struct {
	key   schema.SeriesKey
	cur   schema.Bar
	open  bool
	stale uint64
}

// NewBuilder creates a builder for one series key.
func NewBuilder(key schema.SeriesKey) *Builder {
	return &Builder{key: key}
}

// Apply folds a trade tick into the current bucket. When the tick
// opens a new bucket, the previous bar is returned finalized.
func (b *Builder) Apply(tick schema.Tick, tsEvent int64) (closed schema.Bar, hasClosed bool) {
	if tick.Kind != schema.TickTrade || uint32(b.key.Symbol) != tick.SymbolID {
		return schema.Bar{}, false
	}
	bucket := b.key.Resolution.Bucket(tsEvent)

	if !b.open {
		b.start(bucket, tick)
		return schema.Bar{}, false
	}

	switch {
	case bucket == b.cur.OpenTime:
		b.accumulate(tick)
		return schema.Bar{}, false
	case bucket > b.cur.OpenTime:
		closed = b.cur
		closed.Flags |= schema.BarFlagFinal
		b.start(bucket, tick)
		return closed, true
	default:
		b.stale++
		return schema.Bar{}, false
	}
}

// Current returns the still-accumulating bucket, if any.
func (b *Builder) Current() (schema.Bar, bool) {
	return b.cur, b.open
}

// Flush closes and returns the current bucket, if any.
func (b *Builder) Flush() (schema.Bar, bool) {
	if !b.open {
		return schema.Bar{}, false
	}
	closed := b.cur
	closed.Flags |= schema.BarFlagFinal
	b.open = false
	return closed, true
}

// StaleTicks reports how many ticks arrived for already-closed
// buckets.
func (b *Builder) StaleTicks() uint64 {
	return b.stale
}

func (b *Builder) start(bucket int64, tick schema.Tick) {
	b.cur = schema.Bar{
		SymbolID:   tick.SymbolID,
		Resolution: b.key.Resolution,
		OpenTime:   bucket,
		Open:       tick.Price,
		High:       tick.Price,
		Low:        tick.Price,
		Close:      tick.Price,
		Volume:     tick.Size,
	}
	b.open = true
}

func (b *Builder) accumulate(tick schema.Tick) {
	if tick.Price > b.cur.High {
		b.cur.High = tick.Price
	}
	if tick.Price < b.cur.Low {
		b.cur.Low = tick.Price
	}
	b.cur.Close = tick.Price
	b.cur.Volume += tick.Size
}
