package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"chat-relay/internal/models"

	"github.com/stretchr/testify/require"
)

// mockConnection records outbound messages instead of writing to a socket
type mockConnection struct {
	id       string
	mu       sync.Mutex
	messages []*Message
	closed   bool
}

func newMockConnection(id string) *mockConnection {
	return &mockConnection{id: id}
}

func (m *mockConnection) GetID() string {
	return m.id
}

func (m *mockConnection) SendMessage(message *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClientDisconnected
	}
	m.messages = append(m.messages, message)
	return nil
}

func (m *mockConnection) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConnection) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockConnection) Messages() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*Message, len(m.messages))
	copy(result, m.messages)
	return result
}

func (m *mockConnection) Events() []EventType {
	events := make([]EventType, 0)
	for _, msg := range m.Messages() {
		events = append(events, msg.Event)
	}
	return events
}

func (m *mockConnection) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

type storeCall struct {
	token string
	req   models.CreateMessageRequest
}

// fakeStore stands in for the message API
type fakeStore struct {
	mu    sync.Mutex
	calls []storeCall

	saved *models.SavedMessage
	err   error

	// runs while the "request" is in flight
	onCreate func(ctx context.Context) error
}

func (f *fakeStore) CreateMessage(ctx context.Context, token string, req models.CreateMessageRequest) (*models.SavedMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, storeCall{token: token, req: req})
	f.mu.Unlock()

	if f.onCreate != nil {
		if err := f.onCreate(ctx); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.saved, nil
}

func (f *fakeStore) Calls() []storeCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]storeCall, len(f.calls))
	copy(result, f.calls)
	return result
}

func savedMessage(data string, participants ...models.ID) *models.SavedMessage {
	return &models.SavedMessage{
		Data:               json.RawMessage(data),
		ParticipantUserIDs: participants,
	}
}

func validSendData(conversationID models.ID) SendMessageData {
	return SendMessageData{
		Token:          "token-1",
		ConversationID: conversationID,
		SenderID:       models.IntID(1),
		Content:        "hello",
	}
}

func newTestHub(store MessageStore, presence PresenceTracker) *Hub {
	registry := NewRegistry()
	dispatcher := NewDispatcher(registry, store, time.Second, nil, nil)
	return NewHub(registry, dispatcher, presence, HubOptions{}, nil)
}

// marshalled returns the JSON frame a client would receive
func marshalled(t *testing.T, msg *Message) string {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return string(data)
}
