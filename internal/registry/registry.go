// Package registry owns the in-memory state of live WebSocket connections:
// which identity (if any) a connection has authenticated as, and which
// conversation rooms it has joined. It is the only shared mutable structure
// in the gateway and is exclusively mutated through its own methods.
package registry

import (
	"errors"
	"sync"
)

// State is the explicit per-connection protocol state.
type State int

const (
	// StateUnauthenticated is the initial state after connect. Only the
	// authenticate event may be processed in this state.
	StateUnauthenticated State = iota

	// StateAuthenticated is reached after a successful authenticate event.
	// An authenticated connection may additionally hold any number of
	// joined rooms.
	StateAuthenticated
)

var (
	ErrUnknownConnection = errors.New("registry: unknown connection")
	ErrNotAuthenticated  = errors.New("registry: connection not authenticated")
)

// Identity is the authenticated user bound to a connection.
type Identity struct {
	UserID int64
	RoleID int64
}

// session is the per-connection record. Rooms is non-nil only once the
// connection has joined at least one room.
type session struct {
	state    State
	identity Identity
	rooms    map[string]struct{}
}

// Registry maps connection identifiers to their session state and maintains
// a reverse index from room key to member connections for fan-out. It has
// process-wide lifetime: created at server start, torn down on shutdown.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	rooms    map[string]map[string]struct{} // room key -> set of connection ids
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		rooms:    make(map[string]map[string]struct{}),
	}
}

// OnConnect records a new connection in the Unauthenticated state. Calling
// it twice for the same id is a no-op so transport-level reconnect races do
// not reset an authenticated session.
func (r *Registry) OnConnect(connID string) {
	r.mu.Lock()
	if _, ok := r.sessions[connID]; !ok {
		r.sessions[connID] = &session{state: StateUnauthenticated}
	}
	r.mu.Unlock()
}

// SetIdentity transitions a connection from Unauthenticated to
// Authenticated, binding the verified identity to it.
func (r *Registry) SetIdentity(connID string, userID, roleID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return ErrUnknownConnection
	}
	s.state = StateAuthenticated
	s.identity = Identity{UserID: userID, RoleID: roleID}
	return nil
}

// Identity returns the identity bound to a connection. ok is false when the
// connection is unknown or still unauthenticated; the gateway checks this at
// the top of every handler except authenticate.
func (r *Registry) Identity(connID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID]
	if !ok || s.state != StateAuthenticated {
		return Identity{}, false
	}
	return s.identity, true
}

// JoinRoom adds a connection to a room. The connection must be
// authenticated; re-joining a room it is already in is a no-op.
func (r *Registry) JoinRoom(connID, roomKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if s.state != StateAuthenticated {
		return ErrNotAuthenticated
	}

	if s.rooms == nil {
		s.rooms = make(map[string]struct{})
	}
	s.rooms[roomKey] = struct{}{}

	members, ok := r.rooms[roomKey]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomKey] = members
	}
	members[connID] = struct{}{}
	return nil
}

// InRoom reports whether the connection is currently a member of the room.
func (r *Registry) InRoom(connID, roomKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID]
	if !ok {
		return false
	}
	_, ok = s.rooms[roomKey]
	return ok
}

// LeaveRoom removes a connection from a room. Leaving a room the connection
// never joined is a no-op.
func (r *Registry) LeaveRoom(connID, roomKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveRoomLocked(connID, roomKey)
}

func (r *Registry) leaveRoomLocked(connID, roomKey string) {
	if s, ok := r.sessions[connID]; ok {
		delete(s.rooms, roomKey)
	}
	if members, ok := r.rooms[roomKey]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomKey)
		}
	}
}

// Rooms returns the room keys the connection is currently joined to.
func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(s.rooms))
	for k := range s.rooms {
		keys = append(keys, k)
	}
	return keys
}

// RoomMembers returns a snapshot of the connection ids currently joined to
// the room. The slice is safe to iterate without holding any lock.
func (r *Registry) RoomMembers(roomKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[roomKey]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// OnDisconnect discards all state for a connection: its session record and
// its membership in every room it had joined. Terminal for the connection.
// It returns the identity that was bound, if any, so callers can clear
// per-user side state (presence).
func (r *Registry) OnDisconnect(connID string) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return Identity{}, false
	}
	for roomKey := range s.rooms {
		r.leaveRoomLocked(connID, roomKey)
	}
	delete(r.sessions, connID)

	if s.state != StateAuthenticated {
		return Identity{}, false
	}
	return s.identity, true
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.sessions)
	r.mu.RUnlock()
	return n
}

// AuthenticatedCount returns the number of connections holding an identity.
func (r *Registry) AuthenticatedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.sessions {
		if s.state == StateAuthenticated {
			n++
		}
	}
	return n
}
