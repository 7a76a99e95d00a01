package broker

import (
	"context"
	"net"
	"sync"
	"time"
)

// Connection is one registered client. The hub goroutine owns chatIDs;
// the write pump is the only writer of the socket.
type Connection struct {
	conn      net.Conn
	send      chan []byte
	chatIDs   map[int64]struct{}
	userID    int64
	closeOnce sync.Once
}

func (c *Connection) UserID() int64 { return c.userID }

type subscribeCmd struct {
	c       *Connection
	userID  int64
	chatIDs []int64
}

type broadcastCmd struct {
	ChatID  int64
	Payload []byte
	Exclude *Connection
}

type Stats struct {
	Connections int `json:"connections"`
	Chats       int `json:"chats"`
}

// Hub is the connection registry: {connection -> user, chat-id set} plus a
// chat -> connections index. All state lives inside Run's loop; everything
// else talks to it over command channels.
type Hub struct {
	register   chan *Connection
	unregister chan *Connection
	subscribe  chan subscribeCmd
	broadcast  chan broadcastCmd
	stats      chan chan Stats

	conns map[*Connection]struct{}
	chats map[int64]map[*Connection]struct{}
}

func NewConnection(conn net.Conn, sendQueue int) *Connection {
	if sendQueue <= 0 {
		sendQueue = 128
	}

	return &Connection{
		conn:    conn,
		send:    make(chan []byte, sendQueue),
		chatIDs: make(map[int64]struct{}),
	}
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Connection, 64),
		unregister: make(chan *Connection, 64),
		subscribe:  make(chan subscribeCmd, 64),
		broadcast:  make(chan broadcastCmd, 256),
		stats:      make(chan chan Stats),
		conns:      make(map[*Connection]struct{}),
		chats:      make(map[int64]map[*Connection]struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.conns {
				c.CloseSend()
			}
			return

		case c := <-h.register:
			h.conns[c] = struct{}{}

		case c := <-h.unregister:
			h.drop(c)

		case cmd := <-h.subscribe:
			h.resubscribe(cmd)

		case b := <-h.broadcast:
			room := h.chats[b.ChatID]
			if room == nil {
				continue
			}

			for c := range room {
				if c == b.Exclude {
					continue
				}
				c.Send(b.Payload)
			}

		case reply := <-h.stats:
			reply <- Stats{
				Connections: len(h.conns),
				Chats:       len(h.chats),
			}
		}
	}
}

// resubscribe replaces the connection's chat-id set; re-sending a register
// frame is how clients follow membership changes.
func (h *Hub) resubscribe(cmd subscribeCmd) {
	c := cmd.c
	c.userID = cmd.userID

	for chatID := range c.chatIDs {
		h.leaveRoom(c, chatID)
	}
	c.chatIDs = make(map[int64]struct{}, len(cmd.chatIDs))

	for _, chatID := range cmd.chatIDs {
		room := h.chats[chatID]
		if room == nil {
			room = make(map[*Connection]struct{})
			h.chats[chatID] = room
		}
		room[c] = struct{}{}
		c.chatIDs[chatID] = struct{}{}
	}
}

func (h *Hub) drop(c *Connection) {
	for chatID := range c.chatIDs {
		h.leaveRoom(c, chatID)
	}
	delete(h.conns, c)
	c.CloseSend()
}

func (h *Hub) leaveRoom(c *Connection, chatID int64) {
	room := h.chats[chatID]
	if room == nil {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.chats, chatID)
	}
}

func (h *Hub) Register(c *Connection) {
	h.register <- c
}

func (h *Hub) Unregister(c *Connection) {
	h.unregister <- c
}

func (h *Hub) Subscribe(c *Connection, userID int64, chatIDs []int64) {
	h.subscribe <- subscribeCmd{c: c, userID: userID, chatIDs: chatIDs}
}

// Broadcast fans the payload out to every connection registered for the
// chat except the originating one.
func (h *Hub) Broadcast(chatID int64, payload []byte, exclude *Connection) {
	h.broadcast <- broadcastCmd{ChatID: chatID, Payload: payload, Exclude: exclude}
}

func (h *Hub) Stats() Stats {
	reply := make(chan Stats, 1)
	h.stats <- reply
	return <-reply
}

// Send queues the payload for the write pump; a full queue means a stalled
// consumer, which is dropped rather than allowed to block the hub.
func (c *Connection) Send(b []byte) {
	select {
	case c.send <- b:
	default:
	}
}

func (c *Connection) CloseSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// writePump is the single writer of the socket.
func (c *Connection) writePump(timeout time.Duration) {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if _, err := c.conn.Write(msg); err != nil {
			return
		}
	}
}
