package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/deskline/deskline-messenger/internal/lib/logger/sl"
	"github.com/deskline/deskline-messenger/internal/protocol"
)

// Server accepts broker connections and feeds the hub. One goroutine per
// connection reads frames; the hub goroutine owns all shared state.
type Server struct {
	addr         string
	hub          *Hub
	writeTimeout time.Duration
	sendQueue    int
	log          *slog.Logger
}

func NewServer(addr string, hub *Hub, writeTimeout time.Duration, sendQueue int, log *slog.Logger) *Server {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	return &Server{
		addr:         addr,
		hub:          hub,
		writeTimeout: writeTimeout,
		sendQueue:    sendQueue,
		log:          log.With(slog.String("component", "broker")),
	}
}

// Listen blocks until ctx is cancelled or the listener fails.
func (s *Server) Listen(ctx context.Context) error {
	const op = "broker.server.Listen"

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%s: listen %s: %w", op, s.addr, err)
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.log.Info("broker listening", slog.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%s: accept: %w", op, err)
		}

		go s.handle(conn)
	}
}

// ListenOn is Listen on a pre-bound listener; tests use it to grab a free
// port before connecting clients.
func (s *Server) ListenOn(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	log := s.log.With(slog.String("remote", conn.RemoteAddr().String()))

	c := NewConnection(conn, s.sendQueue)
	s.hub.Register(c)
	go c.writePump(s.writeTimeout)

	defer s.hub.Unregister(c)

	var dec protocol.LineDecoder
	buf := make([]byte, 4096)

	for {
		n, err := conn.Read(buf)

		if n > 0 {
			for _, f := range dec.Feed(buf[:n]) {
				s.dispatch(c, f, log)
			}
		}

		if err != nil {
			log.Debug("connection closed", sl.Err(err))
			return
		}
	}
}

func (s *Server) dispatch(c *Connection, f protocol.Frame, log *slog.Logger) {
	switch f.Type {
	case protocol.FrameRegister:
		s.hub.Subscribe(c, f.UserID, f.ChatIDs)
		log.Info("client registered",
			slog.Int64("user_id", f.UserID),
			slog.Int("chats", len(f.ChatIDs)),
		)

	case protocol.FrameMessage:
		out, err := protocol.NewNewMessageFrame(f.ChatID, f.Payload).Marshal()
		if err != nil {
			log.Error("marshal fan-out frame", sl.Err(err))
			return
		}
		s.hub.Broadcast(f.ChatID, out, c)

	default:
		log.Debug("unknown frame type", slog.String("type", f.Type))
	}
}
