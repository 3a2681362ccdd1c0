package feed

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"

	"main/pkg/uds"
)

// TickTopic is the wire topic for an instrument's ticks.
func TickTopic(symbol string) string {
	return "ticks/" + symbol
}

// Server streams feed messages to subscribed clients over a Unix
// domain socket. It backs the simulator and the package tests.
type Server struct {
	srv            *uds.Server
	heartbeatEvery time.Duration

	mu    sync.Mutex
	conns map[*serverConn]struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

type serverConn struct {
	conn *net.UnixConn

	mu     sync.Mutex
	topics map[string]struct{}
}

// NewServer creates a server bound to socketPath. heartbeatEvery of
// zero disables heartbeats.
func NewServer(socketPath string, heartbeatEvery time.Duration) (*Server, error) {
	srv, err := uds.NewServer(socketPath)
	if err != nil {
		return nil, err
	}
	return &Server{
		srv:            srv,
		heartbeatEvery: heartbeatEvery,
		conns:          make(map[*serverConn]struct{}),
	}, nil
}

// Start listens and accepts connections until ctx is cancelled or
// Close is called.
func (s *Server) Start(ctx context.Context) error {
	if err := s.srv.Listen(); err != nil {
		return err
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		_ = s.srv.Close()
	}()

	if s.heartbeatEvery > 0 {
		s.wg.Add(1)
		go s.heartbeatLoop(ctx)
	}

	s.wg.Add(1)
	go s.acceptLoop(ctx)
	return nil
}

// Close stops the listener and drops all connections.
func (s *Server) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	for c := range s.conns {
		_ = c.conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Publish sends a tick to every client subscribed to its symbol.
func (s *Server) Publish(msg TickMessage) error {
	frame, err := sonic.ConfigFastest.Marshal(msg)
	if err != nil {
		return err
	}
	topic := TickTopic(msg.Symbol)

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		if !c.subscribed(topic) {
			continue
		}
		if err := c.write(frame); err != nil {
			_ = c.conn.Close()
		}
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.srv.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logs.Errorf("feed accept: %v", err)
			continue
		}
		c := &serverConn{conn: conn, topics: make(map[string]struct{})}
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(ctx, c)
	}
}

func (s *Server) serveConn(ctx context.Context, c *serverConn) {
	defer s.wg.Done()
	defer func() {
		_ = c.conn.Close()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()

	for {
		frame, err := ReadFrame(c.conn, DefaultMaxFrameSize)
		if err != nil {
			return
		}
		var msg ControlMessage
		if err := sonic.ConfigFastest.Unmarshal(frame, &msg); err != nil {
			logs.Errorf("feed control decode: %v", err)
			continue
		}
		switch msg.Type {
		case TypeSubscribe:
			c.mu.Lock()
			c.topics[msg.Topic] = struct{}{}
			c.mu.Unlock()
		case TypeUnsubscribe:
			c.mu.Lock()
			delete(c.topics, msg.Topic)
			c.mu.Unlock()
		default:
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Server) heartbeatLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			frame, err := Heartbeat(now)
			if err != nil {
				continue
			}
			s.mu.Lock()
			for c := range s.conns {
				if err := c.write(frame); err != nil {
					_ = c.conn.Close()
				}
			}
			s.mu.Unlock()
		}
	}
}

func (c *serverConn) subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.topics[topic]
	return ok
}

func (c *serverConn) write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return WriteFrame(c.conn, frame)
}
