package series

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func testKey() schema.SeriesKey {
	return schema.SeriesKey{Symbol: 7, Resolution: schema.Minutes(1)}
}

func finalBar(key schema.SeriesKey, openTime, px int64) schema.Bar {
	return schema.Bar{
		SymbolID:   uint32(key.Symbol),
		Resolution: key.Resolution,
		Flags:      schema.BarFlagFinal,
		OpenTime:   openTime,
		Open:       schema.Price(px),
		High:       schema.Price(px + 50),
		Low:        schema.Price(px - 50),
		Close:      schema.Price(px + 10),
		Volume:     schema.Quantity(1_0000_0000),
	}
}

func TestAppendReadRange(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	key := testKey()
	s, err := store.Series(key)
	require.NoError(t, err)

	w, err := s.AcquireWriter()
	require.NoError(t, err)
	defer w.Close()

	step := key.Resolution.Duration().Nanoseconds()
	base := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC).UnixNano()
	for i := int64(0); i < 10; i++ {
		require.NoError(t, w.Append(finalBar(key, base+i*step, 100_2500+i)))
	}
	assert.Equal(t, 10, s.Len())

	cur, err := s.ReadRange(base+2*step, base+5*step)
	require.NoError(t, err)
	defer cur.Close()

	var got []schema.Bar
	for {
		bar, ok := cur.Next()
		if !ok {
			break
		}
		got = append(got, bar)
	}
	require.NoError(t, cur.Err())
	require.Len(t, got, 4)
	assert.Equal(t, base+2*step, got[0].OpenTime)
	assert.Equal(t, base+5*step, got[3].OpenTime)
	assert.Equal(t, schema.Price(100_2502), got[0].Open)
}

func TestAppendOutOfOrder(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	key := testKey()
	s, err := store.Series(key)
	require.NoError(t, err)
	w, err := s.AcquireWriter()
	require.NoError(t, err)
	defer w.Close()

	step := key.Resolution.Duration().Nanoseconds()
	base := int64(1_700_000_000) * int64(time.Second)
	require.NoError(t, w.Append(finalBar(key, base, 100_0000)))
	require.NoError(t, w.Append(finalBar(key, base+step, 101_0000)))

	err = w.Append(finalBar(key, base, 99_0000))
	assert.ErrorIs(t, err, ErrOutOfOrderAppend)

	err = w.Append(finalBar(key, base+step, 99_0000))
	assert.ErrorIs(t, err, ErrOutOfOrderAppend)
}

func TestWriterExclusive(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	s, err := store.Series(testKey())
	require.NoError(t, err)

	w1, err := s.AcquireWriter()
	require.NoError(t, err)

	_, err = s.AcquireWriter()
	assert.ErrorIs(t, err, ErrWriterHeld)

	w1.Close()
	w2, err := s.AcquireWriter()
	require.NoError(t, err)
	w2.Close()
}

func TestOpenBucketInvisibleUntilFinal(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	key := testKey()
	s, err := store.Series(key)
	require.NoError(t, err)
	w, err := s.AcquireWriter()
	require.NoError(t, err)
	defer w.Close()

	base := int64(1_700_000_000) * int64(time.Second)
	open := finalBar(key, base, 100_0000)
	open.Flags = 0
	require.NoError(t, w.Append(open))
	assert.Equal(t, 0, s.Len())

	// Rewrite the staged bucket in place.
	open.Close = schema.Price(100_1200)
	open.Volume += schema.Quantity(5000_0000)
	require.NoError(t, w.Append(open))
	assert.Equal(t, 0, s.Len())

	cur, ok := w.Current()
	require.True(t, ok)
	assert.Equal(t, schema.Price(100_1200), cur.Close)

	require.NoError(t, w.Finalize())
	assert.Equal(t, 1, s.Len())

	rc, err := s.ReadRange(0, 0)
	require.NoError(t, err)
	defer rc.Close()
	bar, ok := rc.Next()
	require.True(t, ok)
	assert.True(t, bar.Final())
	assert.Equal(t, schema.Price(100_1200), bar.Close)
}

func TestLaterBucketFinalizesStaged(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	key := testKey()
	s, err := store.Series(key)
	require.NoError(t, err)
	w, err := s.AcquireWriter()
	require.NoError(t, err)
	defer w.Close()

	step := key.Resolution.Duration().Nanoseconds()
	base := int64(1_700_000_000) * int64(time.Second)

	open := finalBar(key, base, 100_0000)
	open.Flags = 0
	require.NoError(t, w.Append(open))

	next := finalBar(key, base+step, 101_0000)
	next.Flags = 0
	require.NoError(t, w.Append(next))

	// First bucket is now committed as final, second is staged.
	assert.Equal(t, 1, s.Len())
	cur, ok := w.Current()
	require.True(t, ok)
	assert.Equal(t, base+step, cur.OpenTime)
}

func TestReopenRecoversCommitted(t *testing.T) {
	dir := t.TempDir()
	key := testKey()
	step := key.Resolution.Duration().Nanoseconds()
	base := int64(1_700_000_000) * int64(time.Second)

	store, err := Open(dir)
	require.NoError(t, err)
	s, err := store.Series(key)
	require.NoError(t, err)
	w, err := s.AcquireWriter()
	require.NoError(t, err)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, w.Append(finalBar(key, base+i*step, 100_0000+i)))
	}
	// The staged bucket must come back staged, not committed.
	open := finalBar(key, base+5*step, 200_0000)
	open.Flags = 0
	require.NoError(t, w.Append(open))
	w.Close()
	require.NoError(t, store.Close())

	store2, err := Open(dir)
	require.NoError(t, err)
	defer store2.Close()
	s2, err := store2.Series(key)
	require.NoError(t, err)
	assert.Equal(t, 5, s2.Len())

	// The next writer picks up the recovered bucket and keeps
	// accumulating it in place.
	w2, err := s2.AcquireWriter()
	require.NoError(t, err)
	defer w2.Close()
	cur, ok := w2.Current()
	require.True(t, ok)
	assert.Equal(t, base+5*step, cur.OpenTime)
	assert.Equal(t, schema.Price(200_0000), cur.Open)

	open.Close = schema.Price(200_3000)
	require.NoError(t, w2.Append(open))
	assert.Equal(t, 5, s2.Len())

	require.NoError(t, w2.Finalize())
	assert.Equal(t, 6, s2.Len())
}

func TestReopenTruncatesTornTail(t *testing.T) {
	dir := t.TempDir()
	key := testKey()
	step := key.Resolution.Duration().Nanoseconds()
	base := int64(1_700_000_000) * int64(time.Second)

	store, err := Open(dir)
	require.NoError(t, err)
	s, err := store.Series(key)
	require.NoError(t, err)
	w, err := s.AcquireWriter()
	require.NoError(t, err)
	for i := int64(0); i < 3; i++ {
		require.NoError(t, w.Append(finalBar(key, base+i*step, 100_0000+i)))
	}
	w.Close()
	require.NoError(t, store.Close())

	// Simulate a torn write: a record header with a corrupted body at
	// the tail of the committed region.
	path := filepath.Join(dir, key.String()+fileExt)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	torn := make([]byte, barRecordSize)
	n := encodeBarRecord(torn, finalBar(key, base+3*step, 104_0000))
	require.Equal(t, barRecordSize, n)
	torn = torn[:barRecordSize/2]
	for i := recordHeaderSize; i < len(torn); i++ {
		torn[i] ^= 0xFF
	}
	off := int64(fileHeaderSize) + 3*barRecordSize
	_, err = f.WriteAt(torn, off)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	store2, err := Open(dir)
	require.NoError(t, err)
	defer store2.Close()
	s2, err := store2.Series(key)
	require.NoError(t, err)
	assert.Equal(t, 3, s2.Len())

	// The recovered series accepts new appends over the torn region.
	w2, err := s2.AcquireWriter()
	require.NoError(t, err)
	defer w2.Close()
	require.NoError(t, w2.Append(finalBar(key, base+3*step, 105_0000)))
	assert.Equal(t, 4, s2.Len())
}

func TestFollowObservesConcurrentAppends(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	key := testKey()
	s, err := store.Series(key)
	require.NoError(t, err)
	w, err := s.AcquireWriter()
	require.NoError(t, err)
	defer w.Close()

	step := key.Resolution.Duration().Nanoseconds()
	base := int64(1_700_000_000) * int64(time.Second)
	const total = 200

	go func() {
		for i := int64(0); i < total; i++ {
			if err := w.Append(finalBar(key, base+i*step, 100_0000+i)); err != nil {
				return
			}
		}
	}()

	f := s.Follow(0)
	defer f.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := int64(0); i < total; i++ {
		bar, err := f.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, base+i*step, bar.OpenTime)
	}
}

func TestFollowCancel(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	s, err := store.Series(testKey())
	require.NoError(t, err)

	f := s.Follow(0)
	defer f.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = f.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSeriesKeyMismatch(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	key := testKey()
	s, err := store.Series(key)
	require.NoError(t, err)
	w, err := s.AcquireWriter()
	require.NoError(t, err)
	defer w.Close()

	bar := finalBar(key, int64(1_700_000_000)*int64(time.Second), 100_0000)
	bar.SymbolID = 99
	assert.ErrorIs(t, w.Append(bar), ErrSeriesMismatch)

	bar = finalBar(key, int64(1_700_000_000)*int64(time.Second), 100_0000)
	bar.Resolution = schema.Seconds(5)
	assert.ErrorIs(t, w.Append(bar), ErrSeriesMismatch)
}
