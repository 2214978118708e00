package handlers

import (
	"log/slog"

	"chat-relay/internal/websocket"

	"github.com/gin-gonic/gin"
)

type WSHandler struct {
	hub *websocket.Hub
}

func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// RegisterRoutes maps HTTP methods to handler functions
func (h *WSHandler) RegisterRoutes(r gin.IRoutes, middlewares ...gin.HandlerFunc) {
	r.GET("/ws", append(middlewares, h.HandleWebSocket)...)
}

// HandleWebSocket upgrades the request. Identity arrives later in join events,
// so nothing is required on the query string.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	clientIP := c.ClientIP()
	slog.Debug("WebSocket connection request", "remoteAddr", clientIP, "userAgent", c.Request.UserAgent())

	websocket.ServeWS(h.hub, c.Writer, c.Request, clientIP)
}
