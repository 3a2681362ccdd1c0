package journal

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/codec"
	"main/internal/ledger"
	"main/internal/schema"
)

func writeEvents(t *testing.T, dir string, events []appendRequest) {
	t.Helper()
	w, err := NewWriter(Config{Dir: dir})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	for _, e := range events {
		require.NoError(t, w.Append(ctx, e.header, e.payload))
	}
	require.NoError(t, w.Close())
}

func collect(t *testing.T, dir string, torn bool) []schema.EventHeader {
	t.Helper()
	pb, err := NewPlayback(PlaybackConfig{Dir: dir, TolerateTornTail: torn})
	require.NoError(t, err)
	var headers []schema.EventHeader
	err = pb.Run(context.Background(), func(h schema.EventHeader, _ []byte) error {
		headers = append(headers, h)
		return nil
	})
	require.NoError(t, err)
	return headers
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tick := schema.Tick{SymbolID: 7, Kind: schema.TickTrade, Price: 100_2500, Size: 1_0000}
	payload := codec.EncodeTick(nil, tick)

	var events []appendRequest
	for seq := uint64(1); seq <= 5; seq++ {
		events = append(events, appendRequest{
			header:  schema.EventHeader{Type: schema.EventTick, Seq: seq, TsEvent: int64(seq) * 1000},
			payload: payload,
		})
	}
	writeEvents(t, dir, events)

	pb, err := NewPlayback(PlaybackConfig{Dir: dir})
	require.NoError(t, err)
	var got []schema.Tick
	err = pb.Run(context.Background(), func(h schema.EventHeader, p []byte) error {
		decoded, err := codec.DecodeTick(p)
		if err != nil {
			return err
		}
		got = append(got, decoded)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, tick, got[0])
}

func TestTornTailToleratedDuringRecovery(t *testing.T) {
	dir := t.TempDir()
	payload := codec.EncodeTick(nil, schema.Tick{SymbolID: 1, Kind: schema.TickTrade, Price: 1, Size: 1})
	var events []appendRequest
	for seq := uint64(1); seq <= 3; seq++ {
		events = append(events, appendRequest{
			header:  schema.EventHeader{Type: schema.EventTick, Seq: seq},
			payload: payload,
		})
	}
	writeEvents(t, dir, events)

	files, err := Segments(dir, "")
	require.NoError(t, err)
	require.Len(t, files, 1)

	// Truncate mid-record to simulate an interrupted append.
	info, err := os.Stat(files[0])
	require.NoError(t, err)
	require.NoError(t, os.Truncate(files[0], info.Size()-10))

	headers := collect(t, dir, true)
	assert.Len(t, headers, 2)

	// Without tolerance the same tail is an error.
	pb, err := NewPlayback(PlaybackConfig{Dir: dir})
	require.NoError(t, err)
	err = pb.Run(context.Background(), func(schema.EventHeader, []byte) error { return nil })
	assert.Error(t, err)
}

func TestPlaybackPacing(t *testing.T) {
	dir := t.TempDir()
	var events []appendRequest
	for seq := uint64(1); seq <= 3; seq++ {
		events = append(events, appendRequest{
			header: schema.EventHeader{
				Type:    schema.EventTick,
				Seq:     seq,
				TsEvent: int64(seq) * int64(time.Second),
			},
			payload: codec.EncodeTick(nil, schema.Tick{SymbolID: 1, Kind: schema.TickTrade, Price: 1, Size: 1}),
		})
	}
	writeEvents(t, dir, events)

	var slept []time.Duration
	fake := clockFunc(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})
	pb, err := NewPlayback(PlaybackConfig{Dir: dir, Speed: 2})
	require.NoError(t, err)
	pb = pb.WithClock(fake)

	require.NoError(t, pb.Run(context.Background(), func(schema.EventHeader, []byte) error { return nil }))
	// 1s gaps at 2x speed pace to 500ms each.
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, slept)
}

type clockFunc func(ctx context.Context, d time.Duration) error

func (f clockFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

func TestRecoverLedgerReplaysFromSnapshot(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "snapshot.json")
	ctx := context.Background()

	// Live session: submit, partially fill, snapshot, then fill more.
	live := ledger.New(1, ledger.Config{})
	w, err := NewWriter(Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	seq := uint64(0)
	record := func(eventType schema.EventType, payload []byte) {
		seq++
		require.NoError(t, w.Append(ctx, schema.EventHeader{Type: eventType, Seq: seq}, payload))
	}

	intent := schema.OrderIntent{
		OrderID: 1, AccountID: 1, SymbolID: 7,
		Side: schema.OrderSideBuy, Type: schema.OrderTypeLimit,
		TimeInForce: schema.TimeInForceGTC,
		Price:       100_0000, Qty: 10_0000,
	}
	_, err = live.Submit(intent)
	require.NoError(t, err)
	record(schema.EventOrderIntent, codec.EncodeOrderIntent(nil, intent))

	f1 := schema.Fill{FillID: 101, OrderID: 1, AccountID: 1, SymbolID: 7, Side: schema.OrderSideBuy, Price: 100_0000, Qty: 4_0000}
	_, err = live.ApplyFill(f1)
	require.NoError(t, err)
	record(schema.EventFill, codec.EncodeFill(nil, f1))

	snap := live.Snapshot()
	snap.LastSeq = seq
	require.NoError(t, ledger.WriteSnapshot(snapPath, snap))

	f2 := schema.Fill{FillID: 102, OrderID: 1, AccountID: 1, SymbolID: 7, Side: schema.OrderSideBuy, Price: 102_0000, Qty: 6_0000}
	_, err = live.ApplyFill(f2)
	require.NoError(t, err)
	record(schema.EventFill, codec.EncodeFill(nil, f2))
	require.NoError(t, w.Close())

	// Restart: snapshot + journal tail must rebuild the same state.
	recovered := ledger.New(1, ledger.Config{})
	result, err := RecoverLedger(ctx, recovered, dir, snapPath)
	require.NoError(t, err)
	assert.True(t, result.SnapshotLoaded)
	assert.Equal(t, uint64(1), result.Replayed)
	assert.Equal(t, uint64(2), result.Skipped)
	assert.Equal(t, uint64(3), result.LastSeq)

	require.NoError(t, ledger.CompareSnapshots(live.Snapshot(), recovered.Snapshot()))
	o, ok := recovered.Order(1)
	require.True(t, ok)
	assert.Equal(t, ledger.OrderStateFilled, o.State)
}

func TestRecoverLedgerColdStart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	w, err := NewWriter(Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	intent := schema.OrderIntent{
		OrderID: 1, AccountID: 1, SymbolID: 7,
		Side: schema.OrderSideBuy, Type: schema.OrderTypeMarket,
		TimeInForce: schema.TimeInForceIOC,
		Qty:         10_0000,
	}
	require.NoError(t, w.Append(ctx, schema.EventHeader{Type: schema.EventOrderIntent, Seq: 1}, codec.EncodeOrderIntent(nil, intent)))
	fill := schema.Fill{FillID: 101, OrderID: 1, AccountID: 1, SymbolID: 7, Side: schema.OrderSideBuy, Price: 100_2500, Qty: 10_0000}
	require.NoError(t, w.Append(ctx, schema.EventHeader{Type: schema.EventFill, Seq: 2}, codec.EncodeFill(nil, fill)))
	require.NoError(t, w.Close())

	led := ledger.New(1, ledger.Config{})
	result, err := RecoverLedger(ctx, led, dir, filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.False(t, result.SnapshotLoaded)
	assert.Equal(t, uint64(2), result.Replayed)
	assert.Equal(t, uint64(2), result.LastSeq)

	pos, ok := led.Position(7)
	require.True(t, ok)
	assert.Equal(t, int64(10_0000), pos.Qty)
	assert.Equal(t, schema.Price(100_2500), pos.AvgCost)
}

func TestWriterLifecycle(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{Dir: dir})
	require.NoError(t, err)

	err = w.Append(context.Background(), schema.EventHeader{Type: schema.EventTick}, nil)
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, w.Start(context.Background()))
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, w.Close())

	err = w.Append(context.Background(), schema.EventHeader{Type: schema.EventTick}, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentAppendAndClose(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{Dir: dir})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, w.Start(ctx))

	payload := codec.EncodeTick(nil, schema.Tick{SymbolID: 7, Kind: schema.TickTrade, Price: 100_2500, Size: 1_0000})
	var accepted atomic.Uint64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for seq := uint64(1); ; seq++ {
			header := schema.EventHeader{Type: schema.EventTick, Seq: seq, TsEvent: int64(seq)}
			if err := w.Append(ctx, header, payload); err != nil {
				assert.ErrorIs(t, err, ErrClosed)
				return
			}
			accepted.Add(1)
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, w.Close())
	<-done

	// Every accepted append survived the close.
	headers := collect(t, dir, false)
	assert.Equal(t, int(accepted.Load()), len(headers))
}
