package handlers

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	ws "github.com/welldanyogia/webrana-helpdesk-backend/internal/websocket"
)

// WSHandler upgrades HTTP connections for live ticket event streaming
type WSHandler struct {
	hub    *ws.Hub
	logger *slog.Logger
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(hub *ws.Hub, logger *slog.Logger) *WSHandler {
	return &WSHandler{hub: hub, logger: logger}
}

// Connect handles GET /ws. Clients subscribe to desks over the socket.
func (h *WSHandler) Connect(c echo.Context) error {
	upgrader := ws.NewSecureUpgrader(h.logger)
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		return nil
	}

	client := ws.NewClient(h.hub, conn, h.logger)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	return nil
}
