package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is satisfied by services.RedisService
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type RateLimitMiddleware struct {
	limiter RateLimiter
}

// NewRateLimitMiddleware returns a middleware set that lets every request
// through when limiter is nil
func NewRateLimitMiddleware(limiter RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

// WebSocketRateLimit caps new socket connections per client IP
func (rm *RateLimitMiddleware) WebSocketRateLimit(requests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rm.limiter == nil || requests <= 0 {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		key := fmt.Sprintf("rate_limit:websocket:%s", clientIP)

		allowed, err := rm.limiter.CheckRateLimit(c.Request.Context(), key, requests, window)
		if err != nil {
			// Fail open
			slog.Error("Rate limit check failed", "remoteAddr", clientIP, "error", err)
			c.Next()
			return
		}

		if !allowed {
			slog.Warn("WebSocket connection rate limit exceeded", "remoteAddr", clientIP, "limit", requests)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "WebSocket connection rate limit exceeded",
				"message": fmt.Sprintf("Too many connections. Limit: %d per %v", requests, window),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
