package handlers

import (
	"context"
	"net/http"
	"time"

	"chat-relay/internal/websocket"

	"github.com/gin-gonic/gin"
)

// PresenceReader is the read side of presence tracking
type PresenceReader interface {
	UserStatus(ctx context.Context, userID string) (map[string]string, error)
	GetOnlineUsers(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

type StatusHandler struct {
	hub      *websocket.Hub
	presence PresenceReader
}

// NewStatusHandler builds the status endpoints. presence may be nil when Redis is not configured.
func NewStatusHandler(hub *websocket.Hub, presence PresenceReader) *StatusHandler {
	return &StatusHandler{hub: hub, presence: presence}
}

func (h *StatusHandler) Banner(c *gin.Context) {
	c.String(http.StatusOK, "Chat relay server is running")
}

// Health reports 503 when the presence store is configured but unreachable
func (h *StatusHandler) Health(c *gin.Context) {
	if h.presence == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "presence": false})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.presence.Ping(ctx); err != nil {
		c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "presence": true, "redis": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "presence": true, "redis": "ok"})
}

func (h *StatusHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}

func (h *StatusHandler) OnlineUsers(c *gin.Context) {
	if h.presence == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "presence tracking is disabled"})
		return
	}

	users, err := h.presence.GetOnlineUsers(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read presence"})
		return
	}
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"online_users": users, "count": len(users)})
}

// Presence returns the stored status hash for a user
func (h *StatusHandler) Presence(c *gin.Context) {
	if h.presence == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "presence tracking is disabled"})
		return
	}

	userID := c.Param("userId")
	status, err := h.presence.UserStatus(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read presence"})
		return
	}

	if len(status) == 0 {
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "status": "offline"})
		return
	}

	response := gin.H{"user_id": userID}
	for field, value := range status {
		response[field] = value
	}
	c.JSON(http.StatusOK, response)
}
