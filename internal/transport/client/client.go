package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/deskline/deskline-messenger/internal/lib/logger/sl"
	"github.com/deskline/deskline-messenger/internal/protocol"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	ErrNotConnected     = errors.New("transport: not connected")
	ErrAlreadyConnected = errors.New("transport: already connected")
)

// Client holds one persistent TCP connection to the broker. A dedicated
// worker goroutine owns all reads; everything it learns comes back over
// the bounded Events channel, drained on the owner's scheduling turn.
// Send is safe from any goroutine: it is a single buffered write under a
// mutex, relying on TCP for ordering. There is no automatic reconnect;
// once disconnected the client is terminal.
type Client struct {
	addr   string
	userID int64
	log    *slog.Logger

	mu    sync.Mutex
	state State
	conn  net.Conn

	events    chan protocol.Frame
	dropped   int
	closeOnce sync.Once
}

func New(addr string, userID int64, eventQueue int, log *slog.Logger) *Client {
	if eventQueue <= 0 {
		eventQueue = 256
	}

	return &Client{
		addr:   addr,
		userID: userID,
		log:    log.With(slog.String("component", "transport")),
		events: make(chan protocol.Frame, eventQueue),
	}
}

// Connect dials the broker, registers interest in the given chats and
// starts the receive worker.
func (c *Client) Connect(ctx context.Context, chatIDs []int64) error {
	const op = "transport.client.Connect"

	c.mu.Lock()
	if c.state != StateDisconnected || c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.mu.Unlock()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("%s: dial %s: %w", op, c.addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	if err := c.Register(chatIDs); err != nil {
		_ = c.Disconnect()
		return fmt.Errorf("%s: %w", op, err)
	}

	go c.receiveLoop(conn)

	c.log.Info("connected to broker", slog.String("addr", c.addr))

	return nil
}

// Register (re)announces which chats this connection cares about. The
// broker replaces the previous set, so it also serves membership changes.
func (c *Client) Register(chatIDs []int64) error {
	return c.Send(protocol.NewRegisterFrame(c.userID, chatIDs))
}

// Send serializes the frame and writes it whole. Callable from any
// goroutine; returns ErrNotConnected instead of silently dropping so the
// caller can log the lost publish.
func (c *Client) Send(f protocol.Frame) error {
	const op = "transport.client.Send"

	b, err := f.Marshal()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected || c.conn == nil {
		return ErrNotConnected
	}

	if _, err := c.conn.Write(b); err != nil {
		return fmt.Errorf("%s: write: %w", op, err)
	}

	return nil
}

// Events is the worker-to-owner hand-off. The channel is closed when the
// connection is gone for good.
func (c *Client) Events() <-chan protocol.Frame {
	return c.events
}

// Disconnect is idempotent from any state.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	return conn.Close()
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// receiveLoop is the only reader of the socket. It blocks on the socket,
// splits lines, and hands parsed frames to the owner; it never touches
// owner state directly.
func (c *Client) receiveLoop(conn net.Conn) {
	defer c.closeOnce.Do(func() { close(c.events) })
	defer c.Disconnect()

	var dec protocol.LineDecoder
	buf := make([]byte, 4096)

	for {
		n, err := conn.Read(buf)

		if n > 0 {
			for _, f := range dec.Feed(buf[:n]) {
				select {
				case c.events <- f:
				default:
					// Owner is not draining; shedding beats blocking
					// the read loop.
					c.dropEvent(f)
				}
			}
		}

		if err != nil {
			if c.State() == StateConnected {
				c.log.Error("broker connection lost", sl.Err(err))
			}
			return
		}
	}
}

func (c *Client) dropEvent(f protocol.Frame) {
	c.mu.Lock()
	c.dropped++
	n := c.dropped
	c.mu.Unlock()

	c.log.Warn("event queue full, dropping frame",
		slog.String("type", f.Type),
		slog.Int64("chat_id", f.ChatID),
		slog.Int("dropped_total", n),
	)
}
