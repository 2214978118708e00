package websocket

import (
	"context"
)

// handleClientMessage runs on the hub loop. Events from a disconnected client are dropped.
func (h *Hub) handleClientMessage(cm *ClientMessage) {
	client := cm.Client
	if client.IsClosed() {
		h.logger.Debug("Dropping event from closed client", "clientID", client.id, "event", cm.Event.Type().String())
		return
	}

	h.mu.RLock()
	registered := h.clients[client]
	h.mu.RUnlock()
	if !registered {
		h.logger.Debug("Dropping event from unregistered client", "clientID", client.id)
		return
	}

	h.handleEvent(client, cm.Event)
}

// handleEvent applies one membership transition or starts a dispatch.
// Every join leaves the current room or lobby first.
func (h *Hub) handleEvent(conn Connection, event InboundEvent) {
	switch ev := event.(type) {
	case JoinConversationEvent:
		h.joinConversation(conn, ev)
	case JoinLobbyEvent:
		h.joinLobby(conn, ev)
	case SendMessageEvent:
		h.sendMessage(conn, ev)
	default:
		h.reply(conn, errorReply(ErrUnrecognizedEvent))
	}
}

func (h *Hub) joinConversation(conn Connection, ev JoinConversationEvent) {
	if err := h.registry.JoinRoom(conn, ev.ConversationID, ev.UserID); err != nil {
		h.logger.Warn("Rejected conversation join", "clientID", conn.GetID(), "error", err)
		h.reply(conn, errorReply(err))
		return
	}

	h.logger.Info("Client joined conversation",
		"clientID", conn.GetID(),
		"userID", ev.UserID.GoString(),
		"conversationID", ev.ConversationID.GoString(),
		"members", len(h.registry.MembersOf(ev.ConversationID)))

	h.queuePresence(ev.UserID, true)
	h.reply(conn, NewJoinedConversationMessage(ev.ConversationID))
}

func (h *Hub) joinLobby(conn Connection, ev JoinLobbyEvent) {
	h.registry.JoinLobby(conn, ev.UserID)

	h.logger.Info("Client joined lobby",
		"clientID", conn.GetID(),
		"userID", ev.UserID.GoString(),
		"lobby", h.registry.Stats().Lobby)

	h.queuePresence(ev.UserID, true)
	h.reply(conn, NewJoinedLobbyMessage())
}

// sendMessage runs the dispatch beside the event loop. It is not cancelled when
// the sender disconnects or the hub stops; Shutdown waits for it instead.
func (h *Hub) sendMessage(conn Connection, ev SendMessageEvent) {
	ctx := context.WithoutCancel(h.ctx)

	h.dispatches.Add(1)
	go func() {
		defer h.dispatches.Done()
		if err := h.dispatcher.DispatchSend(ctx, conn, ev.Data); err != nil {
			h.logger.Debug("Dispatch finished with error", "clientID", conn.GetID(), "error", err)
		}
	}()
}

func (h *Hub) reply(conn Connection, message *Message) {
	if err := conn.SendMessage(message); err != nil {
		h.logger.Debug("Failed to reply", "clientID", conn.GetID(), "event", message.Event.String(), "error", err)
	}
}
