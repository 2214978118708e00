package websocket

import (
	"context"
	"sync"
	"time"

	"chat-relay/internal/models"
	"chat-relay/pkg/logger"

	"github.com/gorilla/websocket"
)

// PresenceTracker records which users currently hold a socket
type PresenceTracker interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
}

type HubOptions struct {
	SendBuffer     int
	MaxMessageSize int64
	AllowedOrigins []string
}

type presenceUpdate struct {
	userID models.ID
	online bool
}

// Hub owns every live client. Register, unregister and inbound events are
// handled one at a time by Run; only persistence calls run beside it.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	registry   *Registry
	dispatcher *Dispatcher
	presence   PresenceTracker

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Handle messages from clients
	handleMessage chan *ClientMessage

	presenceUpdates chan presenceUpdate

	// In-flight sendMessage dispatches
	dispatches sync.WaitGroup

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu sync.RWMutex

	upgrader websocket.Upgrader
	options  HubOptions
	logger   *logger.Logger
}

func NewHub(registry *Registry, dispatcher *Dispatcher, presence PresenceTracker, opts HubOptions, log *logger.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}
	if log == nil {
		log = logger.Default()
	}

	return &Hub{
		clients:         make(map[*Client]bool),
		registry:        registry,
		dispatcher:      dispatcher,
		presence:        presence,
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		handleMessage:   make(chan *ClientMessage),
		presenceUpdates: make(chan presenceUpdate, 256),
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
		upgrader:        NewUpgrader(opts.AllowedOrigins),
		options:         opts,
		logger:          log.With("component", "hub"),
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) Run() {
	defer close(h.done)

	if h.presence != nil {
		go h.runPresence()
	}

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case clientMsg := <-h.handleMessage:
			h.handleClientMessage(clientMsg)

		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			h.disconnectAll()
			return
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()
}

// Shutdown stops the event loop and waits for in-flight dispatches
func (h *Hub) Shutdown(ctx context.Context) error {
	h.cancel()

	finished := make(chan struct{})
	go func() {
		<-h.done
		h.dispatches.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Client registered", "clientID", client.id, "remoteAddr", client.remoteAddr, "clients", count)
}

// unregisterClient is the disconnect sweeper. Close and error paths may both
// reach it, so it must tolerate clients that are already gone.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	client.close()
	client.closeSendChannel()
	prev := h.sweep(client)

	if ok {
		h.logger.Info("Client unregistered", "clientID", client.id, "membership", prev.String())
	}
}

// sweep removes every association of conn and marks its user offline when no
// other socket carries it
func (h *Hub) sweep(conn Connection) Membership {
	userID, hadUser := h.registry.UserOf(conn)
	prev := h.registry.LeaveAll(conn)

	if hadUser && !h.registry.HasUser(userID) {
		h.queuePresence(userID, false)
	}
	return prev
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
		client.closeSendChannel()
		h.registry.LeaveAll(client)
	}
}

func (h *Hub) queuePresence(userID models.ID, online bool) {
	if h.presence == nil {
		return
	}
	select {
	case h.presenceUpdates <- presenceUpdate{userID: userID, online: online}:
	default:
		h.logger.Warn("Presence queue full, dropping update", "userID", userID.String(), "online", online)
	}
}

// runPresence applies presence updates in order, off the event loop
func (h *Hub) runPresence() {
	for {
		select {
		case update := <-h.presenceUpdates:
			ctx, cancel := context.WithTimeout(h.ctx, 3*time.Second)
			var err error
			if update.online {
				err = h.presence.SetUserOnline(ctx, update.userID.String())
			} else {
				err = h.presence.SetUserOffline(ctx, update.userID.String())
			}
			cancel()
			if err != nil {
				h.logger.Error("Failed to update presence", "userID", update.userID.String(), "online", update.online, "error", err)
			}
		case <-h.ctx.Done():
			return
		}
	}
}

// HubStats is served by the stats endpoint
type HubStats struct {
	Connections int                   `json:"connections"`
	Registry    RegistryStats         `json:"registry"`
	Dispatch    DispatchSnapshot      `json:"dispatch"`
	Presence    *PresenceBreakerStats `json:"presence,omitempty"`
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	connections := len(h.clients)
	h.mu.RUnlock()

	stats := HubStats{
		Connections: connections,
		Registry:    h.registry.Stats(),
		Dispatch:    h.dispatcher.Metrics().Snapshot(),
	}
	if breaker, ok := h.presence.(*PresenceBreaker); ok {
		presence := breaker.Stats()
		stats.Presence = &presence
	}
	return stats
}
