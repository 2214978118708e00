package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"chat-relay/internal/api/routes"
	"chat-relay/internal/config"
	"chat-relay/internal/database"
	"chat-relay/internal/services"
	"chat-relay/internal/websocket"
	"chat-relay/pkg/logger"

	gfshutdown "github.com/gelmium/graceful-shutdown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	// Initialize logger
	appLogger := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(appLogger.Logger)
	slog.Info("Starting chat relay", "apiBaseURL", cfg.API.BaseURL, "redis", cfg.Redis.Enabled())

	// Redis is optional: without it presence and rate limiting are off
	var (
		redisClient  *database.RedisClient
		redisService *services.RedisService
		presence     websocket.PresenceTracker
	)
	if cfg.Redis.Enabled() {
		redisClient, err = database.NewRedisConnection(&cfg.Redis, appLogger)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		redisService = services.NewRedisService(redisClient)
		presence = websocket.NewPresenceBreaker(redisService, 3, 30*time.Second)
	}

	// The HTTP client timeout sits above the dispatch deadline so the
	// dispatcher reports the timeout itself
	messageService := services.NewMessageService(cfg.API.BaseURL, cfg.API.UserAgent, cfg.API.Timeout+time.Second)

	// Initialize WebSocket hub
	registry := websocket.NewRegistry()
	dispatcher := websocket.NewDispatcher(registry, messageService, cfg.API.Timeout, websocket.NewDispatchMetrics(cfg.API.Timeout/2), appLogger)
	hub := websocket.NewHub(registry, dispatcher, presence, websocket.HubOptions{
		SendBuffer:     cfg.WebSocket.SendBuffer,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
	}, appLogger)
	go hub.Run()

	router := routes.NewRouter(hub, redisService, cfg)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				slog.Info("Server shutting down...")
				return server.Shutdown(ctx)
			},
			"websocket-hub": func(ctx context.Context) error {
				if err := hub.Shutdown(ctx); err != nil {
					return err
				}
				if redisClient != nil {
					return redisClient.Close()
				}
				return nil
			},
		},
	)

	exitCode := <-wait
	slog.Info("Server stopped", "exitCode", exitCode)
	os.Exit(exitCode)
}
