// Package uds wraps Unix domain socket dialing and listening for the
// local feed path.
package uds

import (
	"context"
	"net"

	"main/pkg/exception"
)

const network = "unix"

// Client dials a fixed Unix domain socket path.
type Client struct {
	addr net.UnixAddr
}

// NewClient creates a client for the provided socket path.
func NewClient(path string) (*Client, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	return &Client{addr: net.UnixAddr{Name: path, Net: network}}, nil
}

// Path returns the configured socket path.
func (c *Client) Path() string {
	if c == nil {
		return ""
	}
	return c.addr.Name
}

// Dial opens a connection, honoring the context's deadline and
// cancellation while connecting.
func (c *Client) Dial(ctx context.Context) (*net.UnixConn, error) {
	if c == nil {
		return nil, exception.ErrNilClientUDS
	}
	if c.addr.Name == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, c.addr.Name)
	if err != nil {
		return nil, err
	}
	return conn.(*net.UnixConn), nil
}
