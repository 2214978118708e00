package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	defaultSendBuffer     = 256
	defaultMaxMessageSize = 64 * 1024
)

type ClientMessage struct {
	Client *Client
	Event  InboundEvent
}

type Client struct {
	id         string
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string

	// Connection state management
	ctx        context.Context
	cancel     context.CancelFunc
	closed     int32 // atomic flag, set once the client is disconnected
	sendMu     sync.Mutex
	sendClosed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		id:         uuid.New().String(),
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, hub.options.SendBuffer),
		remoteAddr: remoteAddr,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (c *Client) GetID() string {
	return c.id
}

// IsClosed returns true once the client has been disconnected
func (c *Client) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// close marks the client as closed and cancels the context
func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.cancel()
		slog.Debug("Client marked as closed", "clientID", c.id)
	}
}

// closeSendChannel lets writePump send a close frame and exit
func (c *Client) closeSendChannel() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
		slog.Debug("Send channel closed", "clientID", c.id)
	}
}

// SendMessage queues message for writePump. A full queue disconnects the client.
func (c *Client) SendMessage(message *Message) error {
	if c.IsClosed() {
		return ErrClientDisconnected
	}

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return ErrClientDisconnected
	}

	select {
	case c.send <- data:
		return nil
	default:
		slog.Warn("Send buffer full, closing client", "clientID", c.id)
		c.close()
		c.sendClosed = true
		close(c.send)
		return ErrClientDisconnected
	}
}

func (c *Client) sendError(err error) {
	if sendErr := c.SendMessage(errorReply(err)); sendErr != nil {
		slog.Debug("Failed to send error reply", "clientID", c.id, "error", sendErr)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.close()

		select {
		case c.hub.unregister <- c:
			slog.Debug("Client unregister request sent", "clientID", c.id)
		case <-c.hub.ctx.Done():
		case <-time.After(5 * time.Second):
			slog.Warn("Timeout sending unregister request", "clientID", c.id)
		}

		if err := c.conn.Close(); err != nil {
			slog.Debug("Error closing connection", "clientID", c.id, "error", err)
		}
	}()

	c.conn.SetReadLimit(c.hub.options.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.IsClosed() {
			return websocket.ErrCloseSent
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "clientID", c.id, "remoteAddr", c.remoteAddr, "error", err)
			} else {
				slog.Info("WebSocket connection closed", "clientID", c.id, "remoteAddr", c.remoteAddr)
			}
			return
		}

		slog.Debug("Received message", "clientID", c.id, "message", string(frame))

		event, err := ParseEvent(frame)
		if err != nil {
			slog.Warn("Rejected inbound event", "clientID", c.id, "remoteAddr", c.remoteAddr, "error", err)
			c.sendError(err)
			continue
		}

		select {
		case c.hub.handleMessage <- &ClientMessage{Client: c, Event: event}:
		case <-time.After(5 * time.Second):
			slog.Warn("Timeout sending message to hub", "clientID", c.id)
		case <-c.ctx.Done():
			return
		case <-c.hub.ctx.Done():
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// readPump owns closing the connection
		slog.Debug("WritePump finished", "clientID", c.id)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON document per frame
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("Error writing message", "clientID", c.id, "error", err)
				c.close()
				return
			}

		case <-ticker.C:
			if c.IsClosed() {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Error sending ping", "clientID", c.id, "error", err)
				return
			}
		}
	}
}

// ServeWS upgrades the request and hands the socket to the hub
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, remoteAddr string) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "remoteAddr", remoteAddr, "error", err)
		return
	}

	client := NewClient(hub, conn, remoteAddr)
	slog.Info("New WebSocket connection established", "clientID", client.id, "remoteAddr", remoteAddr)

	select {
	case hub.register <- client:
	case <-hub.ctx.Done():
		conn.Close()
		return
	case <-time.After(5 * time.Second):
		slog.Error("Timeout sending registration request", "clientID", client.id)
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
