package ws

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"susmarket/internal/app"
)

// Handler upgrades spectator connections for a match
type Handler struct {
	hub      *app.MatchHub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *app.MatchHub, logger *slog.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Spectator UIs are served from anywhere
				return true
			},
		},
		logger: logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	matchCode := strings.ToUpper(r.URL.Query().Get("matchCode"))
	if matchCode == "" {
		http.Error(w, "matchCode is required", http.StatusBadRequest)
		return
	}

	session, err := h.hub.GetSession(matchCode)
	if err != nil {
		http.Error(w, "Match not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	clientID := uuid.NewString()
	client := NewClient(conn, session, clientID, h.logger)

	// connected goes out before any broadcast can reach this client
	client.sendConnected()
	session.RegisterClient(client)

	h.logger.Info("spectator connected",
		"matchCode", matchCode,
		"clientID", clientID,
	)

	client.Run()
}
