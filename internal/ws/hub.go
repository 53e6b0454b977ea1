package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sakif/rakshak/internal/metrics"
)

// ErrNoClients means the user has no open connection to deliver to.
var ErrNoClients = errors.New("ws: no open connections for user")

// Hub tracks every open connection, grouped by uid (one user may have the
// dashboard open in several tabs).
//
// Connections join and leave through the register and unregister channels,
// which only Run reads. Sends take the read lock, so many can run at once;
// closing a client's send channel takes the write lock, so a send never
// races a close.
type Hub struct {
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	seq atomic.Int64

	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		metrics:    m,
		logger:     logger,
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled, after
// closing every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.addClient(c)
			close(c.registered)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

// Register adds c and returns once events sent to its uid reach it. It
// reports false when the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
	case <-h.done:
		return false
	}
	select {
	case <-c.registered:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes c and closes its send channel. Safe to call more than
// once and after the hub has stopped.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// SendToUser delivers ev to every connection of uid. It returns
// ErrNoClients when there is none. Slow clients whose buffer is full are
// disconnected instead of blocking the sender.
func (h *Hub) SendToUser(uid string, ev Event) error {
	data, err := h.encode(ev)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.clients[uid]
	if len(clients) == 0 {
		return ErrNoClients
	}
	for c := range clients {
		h.deliver(c, data)
	}
	return nil
}

// sendTo delivers ev to one connection, if it is still registered.
func (h *Hub) sendTo(c *Client, ev Event) {
	data, err := h.encode(ev)
	if err != nil {
		h.logger.Error("encoding event failed", slog.String("op", ev.Op), slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[c.userID][c] {
		h.deliver(c, data)
	}
}

// deliver must be called with h.mu held.
func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn("send buffer full, dropping connection", slog.String("uid", c.userID))
		go h.Unregister(c)
	}
}

func (h *Hub) encode(ev Event) ([]byte, error) {
	ev.Seq = h.seq.Add(1)
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("ws: encoding %s event: %w", ev.Op, err)
	}
	return data, nil
}

// Connections returns how many connections uid has open.
func (h *Hub) Connections(uid string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[uid])
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*Client]bool)
	}
	h.clients[c.userID][c] = true
	h.metrics.WSConnected()

	h.logger.Info("client connected",
		slog.String("uid", c.userID),
		slog.String("conn", c.id),
		slog.Int("connections", len(h.clients[c.userID])),
	)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[c.userID]
	if !clients[c] {
		return
	}
	delete(clients, c)
	close(c.send)
	h.metrics.WSDisconnected()

	if len(clients) == 0 {
		delete(h.clients, c.userID)
	}
	h.logger.Info("client disconnected",
		slog.String("uid", c.userID),
		slog.String("conn", c.id),
		slog.Int("remaining", len(clients)),
	)
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for c := range clients {
			close(c.send)
			h.metrics.WSDisconnected()
		}
	}
	h.clients = make(map[string]map[*Client]bool)
	h.logger.Info("hub stopped, all connections closed")
}
