package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func tickEvent(sym schema.SymbolID, seq uint64) Event {
	return Event{
		Topic:  TickTopic(sym),
		Header: schema.EventHeader{Type: schema.EventTick, Seq: seq},
	}
}

func TestPublishFanOut(t *testing.T) {
	b := New()
	defer b.Close()

	s1, err := b.Subscribe(TickTopic(1), 8, OverflowBlock)
	require.NoError(t, err)
	s2, err := b.Subscribe(TickTopic(1), 8, OverflowBlock)
	require.NoError(t, err)
	other, err := b.Subscribe(TickTopic(2), 8, OverflowBlock)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, tickEvent(1, 42)))

	for _, sub := range []*Subscription{s1, s2} {
		e, err := sub.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(42), e.Header.Seq)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = other.Next(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDropOldestKeepsNewest(t *testing.T) {
	b := New()
	defer b.Close()

	sub, err := b.Subscribe(TickTopic(1), 10, OverflowDropOldest)
	require.NoError(t, err)

	ctx := context.Background()
	for seq := uint64(1); seq <= 1000; seq++ {
		require.NoError(t, b.Publish(ctx, tickEvent(1, seq)))
	}
	assert.Equal(t, uint64(990), sub.Dropped())

	for want := uint64(991); want <= 1000; want++ {
		e, err := sub.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, e.Header.Seq)
	}
}

func TestBlockDeliversContiguous(t *testing.T) {
	b := New()
	defer b.Close()

	sub, err := b.Subscribe(TickTopic(1), 4, OverflowBlock)
	require.NoError(t, err)

	const total = 500
	ctx := context.Background()
	errCh := make(chan error, 1)
	go func() {
		for seq := uint64(1); seq <= total; seq++ {
			if err := b.Publish(ctx, tickEvent(1, seq)); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	for want := uint64(1); want <= total; want++ {
		e, err := sub.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, want, e.Header.Seq)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, uint64(0), sub.Dropped())
}

func TestBlockRespectsPublishContext(t *testing.T) {
	b := New()
	defer b.Close()

	_, err := b.Subscribe(TickTopic(1), 1, OverflowBlock)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, tickEvent(1, 1)))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err = b.Publish(short, tickEvent(1, 2))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCancelDiscardsQueued(t *testing.T) {
	b := New()
	defer b.Close()

	sub, err := b.Subscribe(TickTopic(1), 8, OverflowBlock)
	require.NoError(t, err)

	ctx := context.Background()
	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, b.Publish(ctx, tickEvent(1, seq)))
	}

	sub.Cancel()

	// Publishing after cancel no longer reaches the subscription.
	require.NoError(t, b.Publish(ctx, tickEvent(1, 4)))

	// Events queued before the cancel are gone too.
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, ErrSubscriptionCancelled)
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, ErrSubscriptionCancelled)
}

func TestCancelUnblocksPublisher(t *testing.T) {
	b := New()
	defer b.Close()

	sub, err := b.Subscribe(TickTopic(1), 1, OverflowBlock)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, tickEvent(1, 1)))

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Publish(ctx, tickEvent(1, 2))
	}()

	time.Sleep(10 * time.Millisecond)
	sub.Cancel()
	require.NoError(t, <-errCh)
}

func TestClosedBusRejects(t *testing.T) {
	b := New()
	sub, err := b.Subscribe(TickTopic(1), 2, OverflowBlock)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, tickEvent(1, 7)))

	b.Close()

	assert.ErrorIs(t, b.Publish(ctx, tickEvent(1, 8)), ErrBusClosed)
	_, err = b.Subscribe(TickTopic(1), 1, OverflowBlock)
	assert.ErrorIs(t, err, ErrBusClosed)

	// Close is graceful: the queued event is still delivered before
	// the closed error surfaces.
	e, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), e.Header.Seq)
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestTopicString(t *testing.T) {
	assert.Equal(t, "ticks/5", TickTopic(5).String())
	assert.Equal(t, "bars/5/m1", BarTopic(5, schema.Minutes(1)).String())
	assert.Equal(t, "account/9", AccountTopic(9).String())
}
