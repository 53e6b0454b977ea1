package ws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sakif/rakshak/internal/auth"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/service"
)

// HistorySource streams a user's SOS history. *service.SOSService
// satisfies it.
type HistorySource interface {
	SubscribeHistory(ctx context.Context, uid string, limit int, fn func([]model.SOSEvent)) (*service.Subscription, error)
}

// Handler upgrades /ws requests.
//
// Browsers cannot set headers on the handshake, so the token comes from
// the session cookie or a "token" query parameter:
//
//	ws://host/ws?token=JWT
type Handler struct {
	hub      *Hub
	tokens   *auth.TokenService
	history  HistorySource
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler builds the /ws handler. checkOrigin may be nil to accept any
// origin.
func NewHandler(hub *Hub, tokens *auth.TokenService, history HistorySource, checkOrigin func(*http.Request) bool, logger *slog.Logger) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		hub:     hub,
		tokens:  tokens,
		history: history,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// ServeHTTP authenticates, upgrades, and serves the connection until it
// closes. The connection's history subscription lives exactly as long.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, err := auth.SubjectFromRequest(r, h.tokens)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("uid", sub.UserID), slog.String("error", err.Error()))
		return
	}

	client := newClient(h.hub, conn, sub.UserID, h.logger)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}
	defer h.hub.Unregister(client)

	go client.WritePump()

	if h.history != nil {
		hist, err := h.history.SubscribeHistory(r.Context(), sub.UserID, 0, func(events []model.SOSEvent) {
			h.hub.sendTo(client, Event{Op: OpSOSHistory, Data: SOSHistoryData{Events: events}})
		})
		if err != nil {
			h.logger.Error("subscribing to SOS history failed", slog.String("uid", sub.UserID), slog.String("error", err.Error()))
		} else {
			defer hist.Close()
		}
	}

	client.ReadPump()
}
