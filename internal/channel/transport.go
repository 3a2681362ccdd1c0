package channel

import "context"

// Transport dials one upstream endpoint. Adapters own framing,
// authentication and protocol translation; the channel only sees
// opaque frames.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is one live connection produced by a Transport.
type Conn interface {
	// Send writes one frame. Safe to call concurrently with Receive.
	Send(ctx context.Context, frame []byte) error
	// Receive blocks for the next inbound frame. The returned slice is
	// only valid until the next Receive call.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// ControlEncoder produces the protocol frames that assert or release
// a subscription on the upstream.
type ControlEncoder interface {
	EncodeSubscribe(topic string) ([]byte, error)
	EncodeUnsubscribe(topic string) ([]byte, error)
}
