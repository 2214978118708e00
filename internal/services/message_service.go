package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chat-relay/internal/models"
)

// Upstream bodies larger than this are truncated before decoding
const maxResponseBytes = 1 << 20

var ErrMalformedResponse = errors.New("malformed response from message API")

// APIError is a non-2xx answer from the message API
type APIError struct {
	StatusCode int
	Message    string
	Errors     json.RawMessage
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Errors) > 0 && !bytes.Equal(e.Errors, []byte("null")) {
		return string(e.Errors)
	}
	return fmt.Sprintf("unknown error from message API (status %d)", e.StatusCode)
}

// MessageService persists chat messages through the backend's REST API
type MessageService struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

func NewMessageService(baseURL, userAgent string, timeout time.Duration) *MessageService {
	return &MessageService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type apiEnvelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
}

// CreateMessage posts req to {baseURL}/messages with token as bearer credential.
// A non-2xx status is returned as *APIError.
func (s *MessageService) CreateMessage(ctx context.Context, token string, req models.CreateMessageRequest) (*models.SavedMessage, error) {
	if req.Type == "" {
		req.Type = models.DefaultMessageType
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if s.userAgent != "" {
		httpReq.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("message API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read message API response: %w", err)
	}

	var envelope apiEnvelope
	decodeErr := json.Unmarshal(raw, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Message = envelope.Message
			apiErr.Errors = envelope.Errors
		}
		slog.Error("Message API rejected message",
			"status", resp.StatusCode, "conversationID", req.ConversationID.GoString(), "error", apiErr)
		return nil, apiErr
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, decodeErr)
	}
	if len(envelope.Data) == 0 || bytes.Equal(envelope.Data, []byte("null")) {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedResponse)
	}

	return &models.SavedMessage{
		Data:               envelope.Data,
		ParticipantUserIDs: participantIDs(envelope.Data, req.ConversationID),
	}, nil
}

// participantIDs reads participant_user_ids from a saved message. Entries that
// are not ids are dropped; a value that is not an array yields no participants.
func participantIDs(data json.RawMessage, conversationID models.ID) []models.ID {
	var fields struct {
		ParticipantUserIDs json.RawMessage `json:"participant_user_ids"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		slog.Warn("Saved message is not a JSON object", "conversationID", conversationID.GoString(), "error", err)
		return []models.ID{}
	}
	if len(fields.ParticipantUserIDs) == 0 || bytes.Equal(fields.ParticipantUserIDs, []byte("null")) {
		return []models.ID{}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(fields.ParticipantUserIDs, &entries); err != nil {
		slog.Warn("participant_user_ids is not an array",
			"conversationID", conversationID.GoString(), "value", string(fields.ParticipantUserIDs))
		return []models.ID{}
	}

	ids := make([]models.ID, 0, len(entries))
	for _, entry := range entries {
		id, err := models.ParseID(entry)
		if err != nil {
			slog.Warn("Skipping participant id", "conversationID", conversationID.GoString(), "value", string(entry))
			continue
		}
		if id.Valid() {
			ids = append(ids, id)
		}
	}
	return ids
}
