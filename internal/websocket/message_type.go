package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"chat-relay/internal/models"

	"github.com/go-playground/validator/v10"
)

// EventType names both inbound and outbound socket events
type EventType string

// Inbound events
const (
	EventJoinConversation EventType = "joinConversation"
	EventJoinLobby        EventType = "joinLobby"
	EventSendMessage      EventType = "sendMessage"
)

// Outbound events
const (
	EventJoinedConversation      EventType = "joinedConversation"
	EventJoinConversationError   EventType = "joinConversationError"
	EventJoinedLobby             EventType = "joinedLobby"
	EventNewMessage              EventType = "newMessage"
	EventConversationListUpdated EventType = "conversationListUpdated"
	EventSendMessageError        EventType = "sendMessageError"
	EventError                   EventType = "error"
)

func (et EventType) String() string {
	return string(et)
}

// Message is an outbound frame
type Message struct {
	Event   EventType `json:"event"`
	Data    any       `json:"data,omitempty"`
	Message string    `json:"message,omitempty"`
}

func NewJoinedConversationMessage(conversationID models.ID) *Message {
	return &Message{Event: EventJoinedConversation, Data: conversationID}
}

func NewJoinedLobbyMessage() *Message {
	return &Message{Event: EventJoinedLobby, Message: "You are now subscribed to conversation updates."}
}

// NewChatMessage wraps a saved message exactly as the backend returned it
func NewChatMessage(saved json.RawMessage) *Message {
	return &Message{Event: EventNewMessage, Data: saved}
}

type ConversationUpdatedData struct {
	ConversationID models.ID `json:"conversationId"`
}

func NewConversationListUpdatedMessage(conversationID models.ID) *Message {
	return &Message{
		Event: EventConversationListUpdated,
		Data:  ConversationUpdatedData{ConversationID: conversationID},
	}
}

func NewErrorReply(event EventType, message string) *Message {
	return &Message{Event: event, Message: message}
}

// =============================================================================
// Inbound events
// =============================================================================

// InboundEvent is one of JoinConversationEvent, JoinLobbyEvent or SendMessageEvent
type InboundEvent interface {
	Type() EventType
}

type JoinConversationEvent struct {
	ConversationID models.ID
	UserID         models.ID
}

func (JoinConversationEvent) Type() EventType { return EventJoinConversation }

type JoinLobbyEvent struct {
	UserID models.ID
}

func (JoinLobbyEvent) Type() EventType { return EventJoinLobby }

type SendMessageEvent struct {
	Data SendMessageData
}

func (SendMessageEvent) Type() EventType { return EventSendMessage }

// SendMessageData is the payload of a sendMessage event
type SendMessageData struct {
	Token          string          `json:"token" validate:"required"`
	ConversationID models.ID       `json:"conversationId" validate:"required"`
	SenderID       models.ID       `json:"senderId" validate:"required"`
	Content        string          `json:"content"`
	Type           string          `json:"type"`
	MediaURL       *string         `json:"media_url,omitempty"`
	ThumbnailURL   *string         `json:"thumbnail_url,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// An absent ID validates like a nil value so `required` rejects it
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if id, ok := field.Interface().(models.ID); ok && id.Valid() {
			return id.String()
		}
		return nil
	}, models.ID{})
	return v
}

func (d *SendMessageData) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// CreateRequest builds the body sent to the message API
func (d *SendMessageData) CreateRequest() models.CreateMessageRequest {
	msgType := d.Type
	if msgType == "" {
		msgType = models.DefaultMessageType
	}
	return models.CreateMessageRequest{
		ConversationID: d.ConversationID,
		UserID:         d.SenderID,
		Content:        d.Content,
		Type:           msgType,
		MediaURL:       d.MediaURL,
		ThumbnailURL:   d.ThumbnailURL,
		Metadata:       d.Metadata,
	}
}

type envelope struct {
	Event  EventType       `json:"event"`
	Data   json.RawMessage `json:"data"`
	UserID json.RawMessage `json:"userId"`
}

// ParseEvent decodes and validates one inbound frame
func ParseEvent(frame []byte) (InboundEvent, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Event {
	case EventJoinConversation:
		userID, err := requireUserID(env.UserID)
		if err != nil {
			return nil, err
		}
		conversationID, err := models.ParseID(env.Data)
		if err != nil || !conversationID.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRoomID, bytes.TrimSpace(env.Data))
		}
		return JoinConversationEvent{ConversationID: conversationID, UserID: userID}, nil

	case EventJoinLobby:
		userID, err := requireUserID(env.UserID)
		if err != nil {
			return nil, err
		}
		return JoinLobbyEvent{UserID: userID}, nil

	case EventSendMessage:
		var data SendMessageData
		if len(env.Data) == 0 {
			return nil, fmt.Errorf("%w: no data", ErrInvalidPayload)
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if err := data.Validate(); err != nil {
			return nil, err
		}
		return SendMessageEvent{Data: data}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedEvent, env.Event)
	}
}

// requireUserID accepts 0 as a user id. Absent and empty ids are rejected.
func requireUserID(raw json.RawMessage) (models.ID, error) {
	id, err := models.ParseID(raw)
	if err != nil || !id.Valid() {
		return models.ID{}, ErrMissingUserID
	}
	return id, nil
}
