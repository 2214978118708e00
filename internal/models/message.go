package models

import "encoding/json"

// DefaultMessageType is used when the client does not name one
const DefaultMessageType = "text"

// CreateMessageRequest is the body posted to the backend's /messages endpoint
type CreateMessageRequest struct {
	ConversationID ID              `json:"conversation_id"`
	UserID         ID              `json:"user_id"`
	Content        string          `json:"content"`
	Type           string          `json:"type"`
	MediaURL       *string         `json:"media_url,omitempty"`
	ThumbnailURL   *string         `json:"thumbnail_url,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// SavedMessage is the backend's view of a persisted message.
// Data is forwarded to room members untouched.
type SavedMessage struct {
	Data               json.RawMessage
	ParticipantUserIDs []ID
}
