package routes

import (
	"time"

	"chat-relay/internal/api/handlers"
	"chat-relay/internal/api/middleware"
	"chat-relay/internal/config"
	"chat-relay/internal/services"
	"chat-relay/internal/websocket"

	"github.com/gin-gonic/gin"
)

type Router struct {
	engine        *gin.Engine
	wsHandler     *handlers.WSHandler
	statusHandler *handlers.StatusHandler
	rateLimitMW   *middleware.RateLimitMiddleware
	wsRateLimit   int
}

// NewRouter wires the HTTP surface. redisService may be nil, which disables
// presence endpoints and connection rate limiting.
func NewRouter(hub *websocket.Hub, redisService *services.RedisService, cfg *config.Config) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	// Add middlewares
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(cfg.WebSocket.AllowedOrigins))
	engine.Use(middleware.LogApi("/healthz"))

	var (
		presence handlers.PresenceReader
		limiter  middleware.RateLimiter
	)
	// Avoid typed-nil interfaces
	if redisService != nil {
		presence = redisService
		limiter = redisService
	}

	return &Router{
		engine:        engine,
		wsHandler:     handlers.NewWSHandler(hub),
		statusHandler: handlers.NewStatusHandler(hub, presence),
		rateLimitMW:   middleware.NewRateLimitMiddleware(limiter),
		wsRateLimit:   cfg.WebSocket.RateLimit,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/", r.statusHandler.Banner)
	r.engine.GET("/healthz", r.statusHandler.Health)

	wsLimit := r.rateLimitMW.WebSocketRateLimit(r.wsRateLimit, time.Minute)

	// Clients may connect at /ws or /api/v1/ws
	r.wsHandler.RegisterRoutes(r.engine, wsLimit)

	api := r.engine.Group("/api/v1")
	{
		r.wsHandler.RegisterRoutes(api, wsLimit)
		api.GET("/stats", r.statusHandler.Stats)
		api.GET("/presence", r.statusHandler.OnlineUsers)
		api.GET("/presence/:userId", r.statusHandler.Presence)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
