// Package channel owns the lifecycle of one upstream connection: dial
// with bounded exponential backoff, reassert subscriptions before
// reporting the link usable, watch the heartbeat, and tear down and
// retry when the upstream goes quiet. Protocol specifics stay in the
// transport adapter.
package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrClosed is returned once the channel reached its terminal state.
	ErrClosed = errors.New("channel: closed")
	// ErrRetryBudgetExhausted reports that reconnecting was abandoned
	// after the configured number of consecutive failures.
	ErrRetryBudgetExhausted = errors.New("channel: retry budget exhausted")
	// ErrNotConnected is returned when sending without a live connection.
	ErrNotConnected = errors.New("channel: not connected")
	// ErrBadConfig reports a channel built without a transport.
	ErrBadConfig = errors.New("channel: invalid config")

	errHeartbeatLost = errors.New("channel: heartbeat lost")
)

// State is the connection lifecycle state visible to dependents.
type State uint8

const (
	Disconnected State = iota
	Connecting
	Connected
	Degraded
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config defines the channel runtime configuration.
type Config struct {
	Transport Transport
	Encoder   ControlEncoder
	Backoff   Backoff
	// HeartbeatInterval is how long the link may stay silent before it
	// is reported Degraded. Zero disables heartbeat supervision.
	HeartbeatInterval time.Duration
	// HeartbeatGrace is how long a Degraded link may stay silent before
	// the connection is torn down and redialed.
	HeartbeatGrace time.Duration
	// RetryBudget caps consecutive failed connect attempts. Zero means
	// retry forever.
	RetryBudget int
	// IsHeartbeat classifies an inbound frame as a protocol heartbeat.
	// Heartbeat frames refresh liveness and are not handed to OnFrame.
	IsHeartbeat func(frame []byte) bool
	// OnFrame receives every inbound data frame, in arrival order.
	OnFrame func(frame []byte)
	// OnState observes every state transition.
	OnState func(state State)
}

// Channel is a self-healing connection to one upstream.
type Channel struct {
	cfg   Config
	state atomic.Uint32

	mu      sync.Mutex
	conn    Conn
	desired map[string]struct{}

	lastBeat atomic.Int64

	closeOnce sync.Once
	closeCh   chan struct{}
}

// New validates config and builds a channel.
func New(cfg Config) (*Channel, error) {
	if cfg.Transport == nil {
		return nil, ErrBadConfig
	}
	if cfg.Backoff.zero() {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.HeartbeatInterval > 0 && cfg.HeartbeatGrace <= 0 {
		cfg.HeartbeatGrace = cfg.HeartbeatInterval
	}
	return &Channel{
		cfg:     cfg,
		desired: make(map[string]struct{}),
		closeCh: make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	return State(c.state.Load())
}

// Subscribe records a desired upstream subscription and asserts it
// immediately when the link is up. It survives reconnects.
func (c *Channel) Subscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	if _, ok := c.desired[topic]; ok {
		c.mu.Unlock()
		return nil
	}
	c.desired[topic] = struct{}{}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || c.cfg.Encoder == nil {
		return nil
	}
	frame, err := c.cfg.Encoder.EncodeSubscribe(topic)
	if err != nil {
		return err
	}
	return conn.Send(ctx, frame)
}

// Unsubscribe drops a desired subscription and releases it upstream
// when the link is up.
func (c *Channel) Unsubscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	if _, ok := c.desired[topic]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.desired, topic)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || c.cfg.Encoder == nil {
		return nil
	}
	frame, err := c.cfg.Encoder.EncodeUnsubscribe(topic)
	if err != nil {
		return err
	}
	return conn.Send(ctx, frame)
}

// Send writes one frame on the live connection.
func (c *Channel) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(ctx, frame)
}

// Heartbeat marks the link alive. Adapters that learn liveness out of
// band (transport-level pings) call this instead of IsHeartbeat.
func (c *Channel) Heartbeat() {
	c.lastBeat.Store(time.Now().UnixNano())
}

// Close moves the channel to its terminal state and stops Run.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.closeCh) })
}

// Run drives the connect/supervise/reconnect loop until the context
// is done, Close is called, or the retry budget runs out.
func (c *Channel) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := c.checkDone(ctx); err != nil {
			return err
		}
		c.setState(Connecting)

		conn, err := c.cfg.Transport.Dial(ctx)
		if err != nil {
			if err := c.checkDone(ctx); err != nil {
				return err
			}
			attempt++
			if c.budgetExhausted(attempt) {
				c.setState(Closed)
				return ErrRetryBudgetExhausted
			}
			c.setState(Disconnected)
			c.sleepBackoff(ctx, attempt)
			continue
		}

		// Reassert subscriptions before dependents see Connected, so
		// nobody observes a live link that is silently missing streams.
		if err := c.resubscribe(ctx, conn); err != nil {
			_ = conn.Close()
			if err := c.checkDone(ctx); err != nil {
				return err
			}
			attempt++
			if c.budgetExhausted(attempt) {
				c.setState(Closed)
				return ErrRetryBudgetExhausted
			}
			c.setState(Disconnected)
			c.sleepBackoff(ctx, attempt)
			continue
		}

		attempt = 0
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.Heartbeat()
		c.setState(Connected)

		err = c.runSession(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()

		if dErr := c.checkDone(ctx); dErr != nil {
			return dErr
		}
		c.setState(Disconnected)
		attempt++
		if c.budgetExhausted(attempt) {
			c.setState(Closed)
			return ErrRetryBudgetExhausted
		}
		c.sleepBackoff(ctx, attempt)
	}
}

func (c *Channel) checkDone(ctx context.Context) error {
	select {
	case <-c.closeCh:
		c.setState(Closed)
		return ErrClosed
	default:
	}
	if ctx.Err() != nil {
		c.setState(Closed)
		return ctx.Err()
	}
	return nil
}

func (c *Channel) budgetExhausted(attempt int) bool {
	return c.cfg.RetryBudget > 0 && attempt >= c.cfg.RetryBudget
}

func (c *Channel) resubscribe(ctx context.Context, conn Conn) error {
	if c.cfg.Encoder == nil {
		return nil
	}
	c.mu.Lock()
	topics := make([]string, 0, len(c.desired))
	for topic := range c.desired {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	for _, topic := range topics {
		frame, err := c.cfg.Encoder.EncodeSubscribe(topic)
		if err != nil {
			return err
		}
		if err := conn.Send(ctx, frame); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) setState(s State) {
	old := State(c.state.Swap(uint32(s)))
	if old != s && c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
}

func (c *Channel) sleepBackoff(ctx context.Context, attempt int) {
	t := time.NewTimer(c.cfg.Backoff.Next(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-c.closeCh:
	case <-t.C:
	}
}
