// Package server tracks which connections belong to which room via the
// Registry type, the authoritative membership table for the chat system.
package server

import (
	"sync"

	"github.com/google/uuid"
)

// Session is the metadata bound to a connection for its lifetime in a room.
// It is immutable once recorded; a connection joins at most one room.
type Session struct {
	UserID   int64
	Username string
	RoomID   int64
}

// Registry is the in-memory mapping of room id to member connections and of
// connection id to session metadata. All mutation goes through Join and
// Leave under the registry mutex; every member of a room has exactly one
// session entry pointing back at that room.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[int64]map[uuid.UUID]*Client
	sessions map[uuid.UUID]Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[int64]map[uuid.UUID]*Client),
		sessions: make(map[uuid.UUID]Session),
	}
}

// Join records client membership in a room, creating the room entry on first
// join. Callers must call Join at most once per connection; the transport
// handshake has already completed by the time this runs.
func (r *Registry) Join(c *Client, roomID, userID int64, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	if members == nil {
		members = make(map[uuid.UUID]*Client)
		r.rooms[roomID] = members
	}
	members[c.id] = c
	r.sessions[c.id] = Session{UserID: userID, Username: username, RoomID: roomID}
}

// Leave removes the client from its room and deletes its session, returning
// the session that was present. A second Leave for the same connection, or a
// Leave for a connection that never joined, reports false and mutates
// nothing. Emptied rooms are removed so registry size tracks live occupancy.
func (r *Registry) Leave(c *Client) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[c.id]
	if !ok {
		return Session{}, false
	}

	if members, ok := r.rooms[sess.RoomID]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(r.rooms, sess.RoomID)
		}
	}
	delete(r.sessions, c.id)
	return sess, true
}

// SessionOf returns the session metadata recorded for a connection, if any.
func (r *Registry) SessionOf(c *Client) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[c.id]
	return sess, ok
}

// MembersOf returns a point-in-time copy of a room's member list. Fan-out
// iterates the copy so sends never race with concurrent joins and leaves.
func (r *Registry) MembersOf(roomID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	out := make([]*Client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// Clients returns a snapshot of every registered connection across all rooms.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.sessions))
	for _, members := range r.rooms {
		for _, c := range members {
			out = append(out, c)
		}
	}
	return out
}

// RoomCount reports the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// ConnectionCount reports the number of registered connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
