package channel

import (
	"context"
	"time"
)

// runSession pumps inbound frames and supervises the heartbeat until
// the connection dies or the channel stops.
func (c *Channel) runSession(ctx context.Context, conn Conn) error {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- c.readLoop(sessCtx, conn) }()

	if c.cfg.HeartbeatInterval <= 0 {
		select {
		case err := <-errCh:
			return err
		case <-c.closeCh:
			return ErrClosed
		case <-sessCtx.Done():
			return sessCtx.Err()
		}
	}

	check := c.cfg.HeartbeatInterval / 4
	if check < 5*time.Millisecond {
		check = 5 * time.Millisecond
	}
	ticker := time.NewTicker(check)
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			return err
		case <-c.closeCh:
			return ErrClosed
		case <-sessCtx.Done():
			return sessCtx.Err()
		case <-ticker.C:
			silent := time.Since(time.Unix(0, c.lastBeat.Load()))
			switch {
			case silent > c.cfg.HeartbeatInterval+c.cfg.HeartbeatGrace:
				return errHeartbeatLost
			case silent > c.cfg.HeartbeatInterval:
				if c.State() == Connected {
					c.setState(Degraded)
				}
			default:
				if c.State() == Degraded {
					c.setState(Connected)
				}
			}
		}
	}
}

// readLoop forwards inbound frames. Any inbound traffic refreshes
// liveness; frames the adapter classifies as heartbeats are consumed
// here and never reach OnFrame.
func (c *Channel) readLoop(ctx context.Context, conn Conn) error {
	for {
		frame, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		c.Heartbeat()
		if c.cfg.IsHeartbeat != nil && c.cfg.IsHeartbeat(frame) {
			continue
		}
		if c.cfg.OnFrame != nil {
			c.cfg.OnFrame(frame)
		}
	}
}
