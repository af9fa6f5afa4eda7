package ws

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tommypritchett/shotgun-formation-2025-sub000/internal/app"
)

// Handler handles WebSocket connections
type Handler struct {
	hub       *app.GameHub
	upgrader  websocket.Upgrader
	rateLimit rate.Limit
	rateBurst int
	logger    *slog.Logger
}

// NewHandler creates a new WebSocket handler. Each connection may send
// rateLimit messages per second with bursts of up to rateBurst.
func NewHandler(hub *app.GameHub, rateLimit float64, rateBurst int, logger *slog.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Players open the game from phones on whatever host serves the page
				return true
			},
		},
		rateLimit: rate.Limit(rateLimit),
		rateBurst: rateBurst,
		logger:    logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests. The connection joins a room
// later, through a createRoom or joinRoom message.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	connectionID := uuid.New().String()
	client := NewClient(conn, h.hub, connectionID, rate.NewLimiter(h.rateLimit, h.rateBurst), h.logger)

	h.logger.Info("websocket connected", "connectionID", connectionID, "remote", r.RemoteAddr)

	client.Run()
}
