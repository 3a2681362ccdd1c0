package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

// Subscription is one consumer's bounded view of a topic.
type Subscription struct {
	bus    *Bus
	topic  Topic
	queue  chan Event
	policy OverflowPolicy

	dropped  atomic.Uint64
	doneOnce sync.Once
	done     chan struct{}
	reason   error
}

// Topic returns the topic this subscription was registered on.
func (s *Subscription) Topic() Topic {
	return s.topic
}

// Dropped reports how many events were evicted under OverflowDropOldest.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Next blocks for the next event. After Cancel it returns
// ErrSubscriptionCancelled immediately; after the bus closes it drains
// what was queued, then returns ErrBusClosed.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	select {
	case <-s.done:
		return s.drainOrFail()
	default:
	}
	select {
	case e := <-s.queue:
		return e, nil
	case <-s.done:
		return s.drainOrFail()
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// drainOrFail resolves a finished subscription. A bus close is
// graceful, so queued events still reach the consumer; a cancel
// discards them.
func (s *Subscription) drainOrFail() (Event, error) {
	if s.reason == ErrBusClosed {
		select {
		case e := <-s.queue:
			return e, nil
		default:
		}
	}
	return Event{}, s.reason
}

// Cancel detaches the subscription from the bus and discards anything
// still queued.
func (s *Subscription) Cancel() {
	s.bus.unsubscribe(s)
	s.finish(ErrSubscriptionCancelled)
	for {
		select {
		case <-s.queue:
		default:
			return
		}
	}
}

// finish ends the subscription with a reason. The reason is written
// before done closes, so any goroutine that observes done sees it.
func (s *Subscription) finish(reason error) {
	s.doneOnce.Do(func() {
		s.reason = reason
		close(s.done)
	})
}

func (s *Subscription) deliver(ctx context.Context, e Event) error {
	switch s.policy {
	case OverflowDropOldest:
		for {
			select {
			case s.queue <- e:
				return nil
			case <-s.done:
				return nil
			default:
				select {
				case <-s.queue:
					s.dropped.Add(1)
				default:
				}
			}
		}
	default:
		select {
		case s.queue <- e:
			return nil
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
