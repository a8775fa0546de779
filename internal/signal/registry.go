package signal

import (
	"log/slog"
	"sync"

	"github.com/S4tyendra/public-vc/internal/application/constant"
)

// Member is one live signaling connection inside a room. Its lifetime equals
// the lifetime of the underlying websocket; only the router mutates it.
type Member struct {
	UserID   string
	UserName string
	RoomID   string
	IsAdmin  bool
	IsMuted  bool

	conn Conn
}

func (m *Member) info() MemberInfo {
	return MemberInfo{
		UserID:   m.UserID,
		UserName: m.UserName,
		IsMuted:  m.IsMuted,
		IsAdmin:  m.IsAdmin,
	}
}

// Room holds the connected members of one room. All reads and writes go
// through mu; composite router operations hold mu across mutation and fan-out
// so every member observes room events in the same order.
type Room struct {
	ID        string
	Name      string
	CreatorID string

	mu      sync.Mutex
	members map[string]*Member
	order   []string

	// closed marks a room that RemoveIfEmpty already deleted from the
	// registry. A joiner holding a stale pointer must not add members to it;
	// it retries the registry lookup instead.
	closed bool
}

// isAdmin is the single authorization predicate: room creator is admin.
func (r *Room) isAdmin(userID string) bool {
	return userID != "" && userID == r.CreatorID
}

// addLocked inserts or displaces a member. Returns the displaced handle, if
// any, so the caller can force-close it outside the lock.
func (r *Room) addLocked(m *Member) Conn {
	var displaced Conn

	if prev, ok := r.members[m.UserID]; ok {
		displaced = prev.conn
	} else {
		r.order = append(r.order, m.UserID)
	}

	r.members[m.UserID] = m

	return displaced
}

// removeLocked removes userID if it is still bound to conn. A displaced
// connection unwinding late must not evict its replacement.
func (r *Room) removeLocked(userID string, conn Conn) (*Member, bool) {
	m, ok := r.members[userID]
	if !ok {
		return nil, false
	}

	if conn != nil && m.conn != conn {
		return nil, false
	}

	delete(r.members, userID)

	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return m, true
}

// snapshotLocked returns the roster in join order, excluding one user.
func (r *Room) snapshotLocked(excludeUserID string) ([]string, []MemberInfo) {
	userIDs := make([]string, 0, len(r.order))
	users := make([]MemberInfo, 0, len(r.order))

	for _, id := range r.order {
		if id == excludeUserID {
			continue
		}

		m := r.members[id]
		userIDs = append(userIDs, m.UserID)
		users = append(users, m.info())
	}

	return userIDs, users
}

// broadcastLocked fans an envelope out to every member except excludeUserID.
// A member whose handle cannot accept the envelope is closed; its read loop
// unwinds the membership afterwards.
func (r *Room) broadcastLocked(env Envelope, excludeUserID string) {
	for _, id := range r.order {
		if id == excludeUserID {
			continue
		}

		m := r.members[id]
		if err := m.conn.Send(env); err != nil {
			slog.Warn(
				"dropping unresponsive member",
				slog.String(constant.RoomID, r.ID),
				slog.String(constant.UserID, m.UserID),
				slog.Any(constant.Error, err),
			)
			m.conn.Close()
		}
	}
}

// sendToLocked delivers an envelope to a single member. Reports whether the
// target was present; an absent target is not an error for relay traffic.
func (r *Room) sendToLocked(userID string, env Envelope) bool {
	m, ok := r.members[userID]
	if !ok {
		return false
	}

	if err := m.conn.Send(env); err != nil {
		m.conn.Close()
	}

	return true
}

// Registry is the in-memory room membership map. The registry mutex guards
// only the room map itself; member operations serialize per room, so traffic
// in unrelated rooms never contends.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
	}
}

// GetOrCreate returns the live room state, creating it on first join. Name
// and creator come from the store lookup done before any lock is taken.
func (reg *Registry) GetOrCreate(roomID, name, creatorID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if room, ok := reg.rooms[roomID]; ok {
		return room
	}

	room := &Room{
		ID:        roomID,
		Name:      name,
		CreatorID: creatorID,
		members:   make(map[string]*Member),
	}
	reg.rooms[roomID] = room

	return room
}

// Get returns the live room state or nil when no member is connected.
func (reg *Registry) Get(roomID string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return reg.rooms[roomID]
}

// RemoveIfEmpty drops a room's signaling state once the last member left.
// The room row in the store is untouched.
func (reg *Registry) RemoveIfEmpty(roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		return
	}

	room.mu.Lock()
	empty := len(room.members) == 0
	if empty {
		room.closed = true
	}
	room.mu.Unlock()

	if empty {
		delete(reg.rooms, roomID)
		slog.Info("room signaling state removed", slog.String(constant.RoomID, roomID))
	}
}

// MemberCount reports the number of connected members, for lobby listings.
func (reg *Registry) MemberCount(roomID string) int {
	room := reg.Get(roomID)
	if room == nil {
		return 0
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	return len(room.members)
}

// Members returns the roster in join order, empty when the room is idle.
func (reg *Registry) Members(roomID string) []MemberInfo {
	room := reg.Get(roomID)
	if room == nil {
		return []MemberInfo{}
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	_, users := room.snapshotLocked("")

	return users
}

// RoomCount reports the number of rooms with live signaling state.
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return len(reg.rooms)
}
