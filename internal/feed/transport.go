package feed

import (
	"context"
	"net"
	"time"

	"main/internal/channel"
	"main/pkg/uds"
)

// Transport dials the feed socket and frames messages for the channel
// layer.
type Transport struct {
	client   *uds.Client
	maxFrame int
}

// NewTransport creates a transport for the given socket path.
func NewTransport(socketPath string) (*Transport, error) {
	client, err := uds.NewClient(socketPath)
	if err != nil {
		return nil, err
	}
	return &Transport{client: client, maxFrame: DefaultMaxFrameSize}, nil
}

// Dial opens one connection, bounded by ctx.
func (t *Transport) Dial(ctx context.Context) (channel.Conn, error) {
	c, err := t.client.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return &transportConn{conn: c, maxFrame: t.maxFrame}, nil
}

type transportConn struct {
	conn     *net.UnixConn
	maxFrame int
}

func (c *transportConn) Send(ctx context.Context, frame []byte) error {
	if err := applyDeadline(ctx, c.conn.SetWriteDeadline); err != nil {
		return err
	}
	return WriteFrame(c.conn, frame)
}

func (c *transportConn) Receive(ctx context.Context) ([]byte, error) {
	if err := applyDeadline(ctx, c.conn.SetReadDeadline); err != nil {
		return nil, err
	}
	return ReadFrame(c.conn, c.maxFrame)
}

func (c *transportConn) Close() error {
	return c.conn.Close()
}

func applyDeadline(ctx context.Context, set func(time.Time) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	return set(deadline)
}
