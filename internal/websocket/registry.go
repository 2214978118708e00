package websocket

import (
	"fmt"
	"sync"

	"chat-relay/internal/models"

	"github.com/samber/lo"
)

// Connection is a live socket as seen by the registry
type Connection interface {
	GetID() string
	SendMessage(message *Message) error
	IsClosed() bool
}

// Membership is where a connection currently listens: nowhere, the lobby, or one room
type Membership struct {
	Lobby bool
	Room  models.ID
}

func (m Membership) InRoom() bool { return m.Room.Valid() }

func (m Membership) IsNone() bool { return !m.Lobby && !m.InRoom() }

func (m Membership) String() string {
	switch {
	case m.Lobby:
		return "lobby"
	case m.InRoom():
		return fmt.Sprintf("room(%s)", m.Room.GoString())
	default:
		return "none"
	}
}

// RegistryStats is a point-in-time view of the index sizes
type RegistryStats struct {
	Rooms       int `json:"rooms"`
	RoomMembers int `json:"room_members"`
	Lobby       int `json:"lobby"`
	Users       int `json:"users"`
}

// Registry tracks room and lobby membership plus the user behind each connection.
// A connection is in at most one room or the lobby; rooms without members are removed.
type Registry struct {
	mu sync.RWMutex

	// conversation id -> connection id -> connection
	rooms map[models.ID]map[string]Connection

	// connection id -> room it is in
	roomOf map[string]models.ID

	lobby map[string]Connection

	// connection id -> user id supplied on join
	users map[string]models.ID
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[models.ID]map[string]Connection),
		roomOf: make(map[string]models.ID),
		lobby:  make(map[string]Connection),
		users:  make(map[string]models.ID),
	}
}

// JoinRoom moves conn into roomID, leaving any previous room and the lobby first.
// An invalid roomID leaves membership unchanged.
func (r *Registry) JoinRoom(conn Connection, roomID, userID models.ID) error {
	if !roomID.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidRoomID, roomID.GoString())
	}

	id := conn.GetID()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.detachLocked(id)

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]Connection)
		r.rooms[roomID] = members
	}
	members[id] = conn
	r.roomOf[id] = roomID
	r.setUserLocked(id, userID)

	return nil
}

// JoinLobby moves conn into the lobby. Joining twice is a no-op.
func (r *Registry) JoinLobby(conn Connection, userID models.ID) {
	id := conn.GetID()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.detachLocked(id)
	r.lobby[id] = conn
	r.setUserLocked(id, userID)
}

// LeaveAll drops every membership and the user association of conn and
// returns what it had. Safe to call any number of times.
func (r *Registry) LeaveAll(conn Connection) Membership {
	id := conn.GetID()

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.detachLocked(id)
	delete(r.users, id)
	return prev
}

// MembersOf returns the connections currently in roomID, empty if the room does not exist
func (r *Registry) MembersOf(roomID models.ID) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Values(r.rooms[roomID])
}

// LobbyMembersMatching returns lobby connections whose user is one of userIDs.
// No ids means no recipients.
func (r *Registry) LobbyMembersMatching(userIDs []models.ID) []Connection {
	if len(userIDs) == 0 {
		return nil
	}
	wanted := lo.Keyify(userIDs)

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]Connection, 0)
	for id, conn := range r.lobby {
		userID, ok := r.users[id]
		if !ok {
			continue
		}
		if _, ok := wanted[userID]; ok {
			matched = append(matched, conn)
		}
	}
	return matched
}

func (r *Registry) Membership(conn Connection) Membership {
	id := conn.GetID()

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.membershipLocked(id)
}

// UserOf returns the user associated with conn
func (r *Registry) UserOf(conn Connection) (models.ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.users[conn.GetID()]
	return userID, ok
}

// HasUser reports whether any connection is still associated with userID
func (r *Registry) HasUser(userID models.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Contains(lo.Values(r.users), userID)
}

func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RegistryStats{
		Rooms:       len(r.rooms),
		RoomMembers: len(r.roomOf),
		Lobby:       len(r.lobby),
		Users:       len(lo.Uniq(lo.Values(r.users))),
	}
}

func (r *Registry) membershipLocked(id string) Membership {
	if _, ok := r.lobby[id]; ok {
		return Membership{Lobby: true}
	}
	if roomID, ok := r.roomOf[id]; ok {
		return Membership{Room: roomID}
	}
	return Membership{}
}

// detachLocked removes id from its room (pruning it when empty) and from the lobby
func (r *Registry) detachLocked(id string) Membership {
	prev := r.membershipLocked(id)

	if roomID, ok := r.roomOf[id]; ok {
		if members, exists := r.rooms[roomID]; exists {
			delete(members, id)
			if len(members) == 0 {
				delete(r.rooms, roomID)
			}
		}
		delete(r.roomOf, id)
	}
	delete(r.lobby, id)

	return prev
}

func (r *Registry) setUserLocked(id string, userID models.ID) {
	if userID.Valid() {
		r.users[id] = userID
	}
}
