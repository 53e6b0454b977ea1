package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds one write; a peer that cannot take a message in
	// this time is considered gone.
	writeWait = 10 * time.Second

	// pongWait is how long the read side waits for any traffic (a pong or
	// an application heartbeat) before giving up on the peer.
	pongWait = 90 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = 30 * time.Second

	// maxMessageSize caps inbound frames. Clients only ever send heartbeats.
	maxMessageSize = 4096

	sendBufferSize = 64
)

// Client is one WebSocket connection.
//
// Two goroutines serve it: ReadPump reads client messages, WritePump
// drains send onto the socket. gorilla/websocket allows one concurrent
// reader and one concurrent writer, so all writes go through WritePump
// (and writeMessage, which holds mu).
type Client struct {
	id         string // per connection, for logs
	hub        *Hub
	conn       *websocket.Conn
	userID     string
	send       chan []byte
	registered chan struct{} // closed by the hub once the client is live
	mu         sync.Mutex
	logger     *slog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, userID string, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:         id,
		hub:        hub,
		conn:       conn,
		userID:     userID,
		send:       make(chan []byte, sendBufferSize),
		registered: make(chan struct{}),
		logger:     logger.With(slog.String("conn", id)),
	}
}

// ReadPump reads until the connection fails or closes. It blocks; the
// caller unregisters the client when it returns.
func (c *Client) ReadPump() {
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("unexpected close", slog.String("uid", c.userID), slog.String("error", err.Error()))
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.logger.Debug("invalid message", slog.String("uid", c.userID), slog.String("error", err.Error()))
			continue
		}
		c.handleEvent(ev)
	}
}

func (c *Client) handleEvent(ev Event) {
	switch ev.Op {
	case OpHeartbeat:
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}
		c.hub.sendTo(c, Event{Op: OpHeartbeatAck})
	default:
		c.logger.Debug("unknown op", slog.String("uid", c.userID), slog.String("op", ev.Op))
	}
}

// WritePump writes queued messages and pings until send is closed.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.writeMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.writeMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
