// Package bus is the in-process fan-out layer between the market data
// path and strategy consumers. Every subscription owns a bounded queue
// and an overflow policy, so a stalled consumer only affects itself
// unless it explicitly asked to apply backpressure.
package bus

import (
	"context"
	"errors"
	"sync"

	"main/internal/schema"
)

var (
	// ErrBusClosed is returned after Close for any publish or subscribe.
	ErrBusClosed = errors.New("bus: closed")
	// ErrSubscriptionCancelled is returned by Next after Cancel.
	ErrSubscriptionCancelled = errors.New("bus: subscription cancelled")
)

// OverflowPolicy defines subscription queue behavior when full.
type OverflowPolicy uint8

const (
	// OverflowBlock applies backpressure to the publisher.
	OverflowBlock OverflowPolicy = iota
	// OverflowDropOldest evicts the oldest queued event to make room.
	OverflowDropOldest
)

// Event is the unit passed through the bus. Payload is the encoded
// wire form; subscribers that need the typed value decode it.
type Event struct {
	Topic   Topic
	Header  schema.EventHeader
	Payload []byte
}

// Bus fans events out to per-topic subscriber sets.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]*Subscription
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic][]*Subscription)}
}

// Subscribe registers a consumer on a topic with a bounded queue.
func (b *Bus) Subscribe(topic Topic, capacity int, policy OverflowPolicy) (*Subscription, error) {
	if capacity <= 0 {
		capacity = 1
	}
	sub := &Subscription{
		bus:    b,
		topic:  topic,
		queue:  make(chan Event, capacity),
		policy: policy,
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	b.subs[topic] = append(b.subs[topic], sub)
	return sub, nil
}

// Publish delivers an event to every subscriber of its topic. A
// blocking subscriber holds the publisher until it drains or the
// context is cancelled.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	subs := b.subs[e.Topic]
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.deliver(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Close cancels every subscription and rejects further publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.subs = make(map[Topic][]*Subscription)
	b.mu.Unlock()

	for _, sub := range all {
		sub.finish(ErrBusClosed)
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[sub.topic]
	for i, s := range subs {
		if s == sub {
			b.subs[sub.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.topic]) == 0 {
		delete(b.subs, sub.topic)
	}
}
