package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func trade(sym uint32, px, sz int64) schema.Tick {
	return schema.Tick{
		SymbolID: sym,
		Kind:     schema.TickTrade,
		Price:    schema.Price(px),
		Size:     schema.Quantity(sz),
	}
}

func TestBuilderAggregatesBucket(t *testing.T) {
	key := testKey()
	b := NewBuilder(key)
	base := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC).UnixNano()

	_, closed := b.Apply(trade(7, 100_0000, 1_0000), base)
	assert.False(t, closed)
	_, closed = b.Apply(trade(7, 100_5000, 2_0000), base+10*int64(time.Second))
	assert.False(t, closed)
	_, closed = b.Apply(trade(7, 99_8000, 1_0000), base+20*int64(time.Second))
	assert.False(t, closed)

	cur, ok := b.Current()
	require.True(t, ok)
	assert.Equal(t, base, cur.OpenTime)
	assert.Equal(t, schema.Price(100_0000), cur.Open)
	assert.Equal(t, schema.Price(100_5000), cur.High)
	assert.Equal(t, schema.Price(99_8000), cur.Low)
	assert.Equal(t, schema.Price(99_8000), cur.Close)
	assert.Equal(t, schema.Quantity(4_0000), cur.Volume)
	assert.False(t, cur.Final())
}

func TestBuilderRollsOnNewBucket(t *testing.T) {
	key := testKey()
	b := NewBuilder(key)
	base := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC).UnixNano()
	step := key.Resolution.Duration().Nanoseconds()

	b.Apply(trade(7, 100_0000, 1_0000), base)
	b.Apply(trade(7, 101_0000, 1_0000), base+30*int64(time.Second))

	bar, closed := b.Apply(trade(7, 102_0000, 3_0000), base+step)
	require.True(t, closed)
	assert.True(t, bar.Final())
	assert.Equal(t, base, bar.OpenTime)
	assert.Equal(t, schema.Price(101_0000), bar.Close)
	assert.Equal(t, schema.Quantity(2_0000), bar.Volume)

	cur, ok := b.Current()
	require.True(t, ok)
	assert.Equal(t, base+step, cur.OpenTime)
	assert.Equal(t, schema.Price(102_0000), cur.Open)
}

func TestBuilderIgnoresNonTrades(t *testing.T) {
	b := NewBuilder(testKey())
	quote := schema.Tick{SymbolID: 7, Kind: schema.TickQuote, BidPrice: 99_0000, AskPrice: 101_0000}
	_, closed := b.Apply(quote, time.Now().UnixNano())
	assert.False(t, closed)
	_, ok := b.Current()
	assert.False(t, ok)

	// Wrong symbol is dropped too.
	_, closed = b.Apply(trade(8, 100_0000, 1_0000), time.Now().UnixNano())
	assert.False(t, closed)
	_, ok = b.Current()
	assert.False(t, ok)
}

func TestBuilderCountsStaleTicks(t *testing.T) {
	key := testKey()
	b := NewBuilder(key)
	base := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC).UnixNano()
	step := key.Resolution.Duration().Nanoseconds()

	b.Apply(trade(7, 100_0000, 1_0000), base+step)
	_, closed := b.Apply(trade(7, 99_0000, 1_0000), base)
	assert.False(t, closed)
	assert.Equal(t, uint64(1), b.StaleTicks())

	cur, _ := b.Current()
	assert.Equal(t, schema.Quantity(1_0000), cur.Volume)
}

func TestBuilderFlush(t *testing.T) {
	key := testKey()
	b := NewBuilder(key)
	base := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC).UnixNano()

	_, ok := b.Flush()
	assert.False(t, ok)

	b.Apply(trade(7, 100_0000, 1_0000), base)
	bar, ok := b.Flush()
	require.True(t, ok)
	assert.True(t, bar.Final())
	assert.Equal(t, base, bar.OpenTime)

	_, ok = b.Current()
	assert.False(t, ok)
}
