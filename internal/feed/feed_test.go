package feed

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/decimal"

	"main/internal/channel"
	"main/internal/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	ex, err := reg.AddExchange("sim")
	require.NoError(t, err)
	_, err = reg.AddInstrument(schema.Instrument{
		ExchangeID:    ex,
		Symbol:        "BTCUSD",
		QuoteCurrency: "USD",
		TickSize:      schema.Price(100),
		Scale:         schema.ScaleSpec{PriceScale: 4, QuantityScale: 4},
	})
	require.NoError(t, err)
	return reg
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := Dec(s)
	require.NoError(t, err)
	return d
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("one")))
	require.NoError(t, WriteFrame(&buf, []byte("two")))

	frame, err := ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), frame)

	frame, err = ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), frame)
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("0123456789")))
	_, err := ReadFrame(&buf, 4)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestIsHeartbeat(t *testing.T) {
	frame, err := Heartbeat(time.Now())
	require.NoError(t, err)
	assert.True(t, IsHeartbeat(frame))

	assert.False(t, IsHeartbeat([]byte(`{"type":"trade","symbol":"sim/BTCUSD"}`)))
	assert.False(t, IsHeartbeat([]byte(`not json`)))
}

func TestEncoderControlFrames(t *testing.T) {
	var enc Encoder
	frame, err := enc.EncodeSubscribe("ticks/sim/BTCUSD")
	require.NoError(t, err)

	var msg ControlMessage
	require.NoError(t, sonic.Unmarshal(frame, &msg))
	assert.Equal(t, TypeSubscribe, msg.Type)
	assert.Equal(t, "ticks/sim/BTCUSD", msg.Topic)

	frame, err = enc.EncodeUnsubscribe("ticks/sim/BTCUSD")
	require.NoError(t, err)
	require.NoError(t, sonic.Unmarshal(frame, &msg))
	assert.Equal(t, TypeUnsubscribe, msg.Type)
}

func TestDecodeTrade(t *testing.T) {
	d := NewDecoder(testRegistry(t))
	frame := []byte(`{"type":"trade","symbol":"sim/BTCUSD","seq":7,"ts":1000,"price":"100.25","size":"3"}`)

	recv := time.Now()
	tick, header, err := d.DecodeTick(frame, recv)
	require.NoError(t, err)

	assert.Equal(t, schema.TickTrade, tick.Kind)
	assert.Equal(t, uint32(1), tick.SymbolID)
	assert.Equal(t, schema.Price(100_2500), tick.Price)
	assert.Equal(t, schema.Quantity(3_0000), tick.Size)
	assert.Equal(t, schema.EventTick, header.Type)
	assert.Equal(t, uint64(7), header.Seq)
	assert.Equal(t, int64(1000), header.TsEvent)
	assert.Equal(t, recv.UnixNano(), header.TsRecv)
}

func TestDecodeQuote(t *testing.T) {
	d := NewDecoder(testRegistry(t))
	frame := []byte(`{"type":"quote","symbol":"sim/BTCUSD","seq":8,"ts":2000,"bid":"100.2","bidSize":"1","ask":"100.3","askSize":"2"}`)

	tick, _, err := d.DecodeTick(frame, time.Now())
	require.NoError(t, err)

	assert.Equal(t, schema.TickQuote, tick.Kind)
	assert.Equal(t, schema.Price(100_2000), tick.BidPrice)
	assert.Equal(t, schema.Price(100_3000), tick.AskPrice)
	assert.Equal(t, schema.Quantity(1_0000), tick.BidSize)
	assert.Equal(t, schema.Quantity(2_0000), tick.AskSize)
}

func TestDecodeUnknownSymbol(t *testing.T) {
	d := NewDecoder(testRegistry(t))
	frame := []byte(`{"type":"trade","symbol":"sim/DOGE","price":"1","size":"1"}`)
	_, _, err := d.DecodeTick(frame, time.Now())
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestDecodeWrongType(t *testing.T) {
	d := NewDecoder(testRegistry(t))
	_, _, err := d.DecodeTick([]byte(`{"type":"heartbeat"}`), time.Now())
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestServerStreamsSubscribedTicks(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "feed.sock")
	srv, err := NewServer(socket, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx))
	defer srv.Close()

	transport, err := NewTransport(socket)
	require.NoError(t, err)
	conn, err := transport.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()

	var enc Encoder
	sub, err := enc.EncodeSubscribe(TickTopic("sim/BTCUSD"))
	require.NoError(t, err)
	require.NoError(t, conn.Send(ctx, sub))

	msg := TickMessage{
		Type:   TypeTrade,
		Symbol: "sim/BTCUSD",
		Seq:    1,
		Ts:     time.Now().UnixNano(),
		Price:  dec(t, "100.25"),
		Size:   dec(t, "2"),
	}

	// The subscribe frame races the first publish; keep publishing
	// until one comes back.
	frames := make(chan []byte, 1)
	go func() {
		recvCtx, recvCancel := context.WithTimeout(ctx, 5*time.Second)
		defer recvCancel()
		frame, err := conn.Receive(recvCtx)
		if err == nil {
			frames <- frame
		}
	}()

	deadline := time.After(5 * time.Second)
	for {
		require.NoError(t, srv.Publish(msg))
		select {
		case frame := <-frames:
			tick, header, err := NewDecoder(testRegistry(t)).DecodeTick(frame, time.Now())
			require.NoError(t, err)
			assert.Equal(t, schema.Price(100_2500), tick.Price)
			assert.Equal(t, uint64(1), header.Seq)
			return
		case <-deadline:
			t.Fatal("no tick received")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestServerHeartbeats(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "feed.sock")
	srv, err := NewServer(socket, 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx))
	defer srv.Close()

	transport, err := NewTransport(socket)
	require.NoError(t, err)
	conn, err := transport.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()

	recvCtx, recvCancel := context.WithTimeout(ctx, 5*time.Second)
	defer recvCancel()
	frame, err := conn.Receive(recvCtx)
	require.NoError(t, err)
	assert.True(t, IsHeartbeat(frame))
}

func TestChannelOverSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "feed.sock")
	srv, err := NewServer(socket, 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx))
	defer srv.Close()

	transport, err := NewTransport(socket)
	require.NoError(t, err)

	var mu sync.Mutex
	var got [][]byte
	ch, err := channel.New(channel.Config{
		Transport:         transport,
		Encoder:           Encoder{},
		Backoff:           channel.Backoff{Min: 10 * time.Millisecond, Max: 50 * time.Millisecond, Factor: 2},
		HeartbeatInterval: 100 * time.Millisecond,
		HeartbeatGrace:    100 * time.Millisecond,
		IsHeartbeat:       IsHeartbeat,
		OnFrame: func(frame []byte) {
			mu.Lock()
			got = append(got, append([]byte(nil), frame...))
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	require.NoError(t, ch.Subscribe(ctx, TickTopic("sim/BTCUSD")))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ch.Run(ctx)
	}()
	defer func() {
		ch.Close()
		cancel()
		<-done
	}()

	msg := TickMessage{
		Type:   TypeTrade,
		Symbol: "sim/BTCUSD",
		Seq:    1,
		Ts:     time.Now().UnixNano(),
		Price:  dec(t, "100.25"),
		Size:   dec(t, "1"),
	}

	deadline := time.After(5 * time.Second)
	for {
		require.NoError(t, srv.Publish(msg))
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no frame delivered through channel")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	tick, _, err := NewDecoder(testRegistry(t)).DecodeTick(got[0], time.Now())
	require.NoError(t, err)
	assert.Equal(t, schema.Price(100_2500), tick.Price)
}
