package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"chat-relay/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type presenceCall struct {
	userID string
	online bool
}

type fakePresence struct {
	mu    sync.Mutex
	calls []presenceCall
}

func (f *fakePresence) SetUserOnline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, presenceCall{userID: userID, online: true})
	return nil
}

func (f *fakePresence) SetUserOffline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, presenceCall{userID: userID, online: false})
	return nil
}

func (f *fakePresence) Calls() []presenceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]presenceCall, len(f.calls))
	copy(result, f.calls)
	return result
}

func TestHandleEventJoinTransitions(t *testing.T) {
	hub := newTestHub(&fakeStore{}, nil)
	conn := newMockConnection("a")

	hub.handleEvent(conn, JoinConversationEvent{ConversationID: models.StringID("42"), UserID: models.IntID(1)})
	hub.handleEvent(conn, JoinLobbyEvent{UserID: models.IntID(1)})
	hub.handleEvent(conn, JoinConversationEvent{ConversationID: models.IntID(9), UserID: models.IntID(1)})

	assert.Equal(t, []EventType{EventJoinedConversation, EventJoinedLobby, EventJoinedConversation}, conn.Events())
	assert.JSONEq(t, `{"event":"joinedConversation","data":"42"}`, marshalled(t, conn.Messages()[0]))
	assert.Equal(t, EventJoinedLobby, conn.Messages()[1].Event)

	assert.Equal(t, Membership{Room: models.IntID(9)}, hub.Registry().Membership(conn))
	assert.Equal(t, RegistryStats{Rooms: 1, RoomMembers: 1, Lobby: 0, Users: 1}, hub.Registry().Stats())
}

func TestHandleEventInvalidRoomKeepsMembership(t *testing.T) {
	hub := newTestHub(&fakeStore{}, nil)
	conn := newMockConnection("a")

	hub.handleEvent(conn, JoinLobbyEvent{UserID: models.IntID(1)})
	conn.Reset()

	hub.handleEvent(conn, JoinConversationEvent{ConversationID: models.StringID(""), UserID: models.IntID(1)})

	msgs := conn.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, EventJoinConversationError, msgs[0].Event)
	assert.Equal(t, "Invalid conversation id.", msgs[0].Message)
	assert.True(t, hub.Registry().Membership(conn).Lobby)
}

func TestHandleEventSendMessageRunsDispatch(t *testing.T) {
	store := &fakeStore{saved: savedMessage(`{"id":1}`)}
	hub := newTestHub(store, nil)
	conn := newMockConnection("a")

	hub.handleEvent(conn, JoinConversationEvent{ConversationID: models.IntID(5), UserID: models.IntID(1)})
	hub.handleEvent(conn, SendMessageEvent{Data: validSendData(models.IntID(5))})
	hub.dispatches.Wait()

	assert.Equal(t, []EventType{EventJoinedConversation, EventNewMessage}, conn.Events())
	assert.Len(t, store.Calls(), 1)
	assert.Equal(t, 1, hub.Stats().Dispatch.TotalDispatches)
}

func TestUnregisterClientIsIdempotent(t *testing.T) {
	hub := newTestHub(&fakeStore{}, nil)
	client := NewClient(hub, nil, "test")
	hub.registerClient(client)
	require.NoError(t, hub.Registry().JoinRoom(client, models.IntID(1), models.IntID(1)))

	assert.NotPanics(t, func() {
		hub.unregisterClient(client)
		hub.unregisterClient(client)
	})

	assert.True(t, client.IsClosed())
	assert.Equal(t, 0, hub.Stats().Connections)
	assert.Equal(t, RegistryStats{}, hub.Registry().Stats())
	assert.ErrorIs(t, client.SendMessage(NewJoinedLobbyMessage()), ErrClientDisconnected)
}

func TestSweepLeavesOtherMembersInPlace(t *testing.T) {
	hub := newTestHub(&fakeStore{}, nil)
	leaving := newMockConnection("leaving")
	others := []*mockConnection{newMockConnection("b"), newMockConnection("c")}

	require.NoError(t, hub.Registry().JoinRoom(leaving, models.StringID("7"), models.IntID(1)))
	for i, conn := range others {
		require.NoError(t, hub.Registry().JoinRoom(conn, models.StringID("7"), models.IntID(int64(i+2))))
	}

	prev := hub.sweep(leaving)
	assert.Equal(t, Membership{Room: models.StringID("7")}, prev)
	assert.ElementsMatch(t, []Connection{others[0], others[1]}, hub.Registry().MembersOf(models.StringID("7")))

	_, ok := hub.Registry().UserOf(leaving)
	assert.False(t, ok)
}

func TestPresenceFollowsUserSockets(t *testing.T) {
	presence := &fakePresence{}
	hub := newTestHub(&fakeStore{}, presence)
	go hub.runPresence()
	defer hub.Stop()

	first := newMockConnection("first")
	second := newMockConnection("second")
	hub.handleEvent(first, JoinLobbyEvent{UserID: models.IntID(1)})
	hub.handleEvent(second, JoinConversationEvent{ConversationID: models.IntID(3), UserID: models.IntID(1)})

	assert.Eventually(t, func() bool { return len(presence.Calls()) == 2 }, time.Second, 10*time.Millisecond)

	// user 1 still holds a socket
	hub.sweep(first)
	hub.sweep(second)

	assert.Eventually(t, func() bool { return len(presence.Calls()) == 3 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []presenceCall{
		{userID: "1", online: true},
		{userID: "1", online: true},
		{userID: "1", online: false},
	}, presence.Calls())
}

type wireFrame struct {
	Event   EventType       `json:"event"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func dialHub(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	require.NoError(t, err)
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame wireFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestHubEndToEnd(t *testing.T) {
	store := &fakeStore{saved: savedMessage(`{"id":77,"content":"hello"}`, models.IntID(1))}
	hub := newTestHub(store, nil)
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, w, r, r.RemoteAddr)
	}))
	defer server.Close()

	lobby := dialHub(t, server.URL)
	defer lobby.Close()
	sender := dialHub(t, server.URL)
	defer sender.Close()

	writeFrame(t, lobby, `{"event":"joinLobby","userId":1}`)
	assert.Equal(t, EventJoinedLobby, readFrame(t, lobby).Event)

	writeFrame(t, sender, `{"event":"joinConversation","data":"42","userId":1}`)
	joined := readFrame(t, sender)
	assert.Equal(t, EventJoinedConversation, joined.Event)
	assert.JSONEq(t, `"42"`, string(joined.Data))

	writeFrame(t, sender, `{"event":"sendMessage","data":{"token":"t","conversationId":"42","senderId":1,"content":"hello"}}`)

	chat := readFrame(t, sender)
	assert.Equal(t, EventNewMessage, chat.Event)
	assert.JSONEq(t, `{"id":77,"content":"hello"}`, string(chat.Data))

	notice := readFrame(t, lobby)
	assert.Equal(t, EventConversationListUpdated, notice.Event)
	assert.JSONEq(t, `{"conversationId":"42"}`, string(notice.Data))

	writeFrame(t, lobby, `not json`)
	bad := readFrame(t, lobby)
	assert.Equal(t, EventError, bad.Event)
	assert.Equal(t, "Invalid message format.", bad.Message)

	writeFrame(t, lobby, `{"event":"chat message","data":"hi"}`)
	unknown := readFrame(t, lobby)
	assert.Equal(t, EventError, unknown.Event)
	assert.Equal(t, "Unrecognized event type.", unknown.Message)

	writeFrame(t, sender, `{"event":"sendMessage","data":{"conversationId":"42","senderId":1}}`)
	rejected := readFrame(t, sender)
	assert.Equal(t, EventSendMessageError, rejected.Event)

	require.NoError(t, sender.Close())
	assert.Eventually(t, func() bool {
		stats := hub.Stats()
		return stats.Connections == 1 && stats.Registry.Rooms == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.Registry().Stats().Lobby)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))
	assert.Equal(t, 0, hub.Stats().Connections)
	assert.Equal(t, RegistryStats{}, hub.Registry().Stats())
}
