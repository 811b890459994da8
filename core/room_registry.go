package core

import (
	"cmp"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// RoomInfo is a point in time view of a room used for diagnostics.
type RoomInfo struct {
	ID           string `json:"id"`
	Members      int    `json:"members"`
	Participants int    `json:"participants"`
	Counterparts int    `json:"counterparts"`
}

// RoomRegistry maps room identifiers to the connections currently joined to them.
// A room exists only while it has at least one member: the entry is created by
// the first Join and removed by the Leave that empties it.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[int]*Conn
	// joined remembers which room a connection belongs to so Leave only needs the handle.
	joined map[int]string
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:  make(map[string]map[int]*Conn),
		joined: make(map[int]string),
	}
}

// Join adds c to room. A connection belongs to exactly one room for its lifetime,
// so joining a second room is refused and reported as false.
func (r *RoomRegistry) Join(c *Conn, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.joined[c.id]; ok {
		return current == room
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[int]*Conn)
		r.rooms[room] = members
	}
	members[c.id] = c
	r.joined[c.id] = room
	return true
}

// Leave removes c from its room. It is idempotent.
func (r *RoomRegistry) Leave(c *Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.joined[c.id]
	if !ok {
		return "", false
	}
	delete(r.joined, c.id)
	members := r.rooms[room]
	delete(members, c.id)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	return room, true
}

// Members returns a snapshot of the connections in room. Unknown rooms have no members.
func (r *RoomRegistry) Members(room string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.rooms[room])
}

// RoomOf returns the room c is joined to.
func (r *RoomRegistry) RoomOf(c *Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.joined[c.id]
	return room, ok
}

func (r *RoomRegistry) Lookup(room string) (RoomInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.rooms[room]
	if !ok {
		return RoomInfo{}, false
	}
	return roomInfo(room, members), true
}

// Rooms lists every live room ordered by identifier.
func (r *RoomRegistry) Rooms() []RoomInfo {
	r.mu.RLock()
	infos := lo.MapToSlice(r.rooms, roomInfo)
	r.mu.RUnlock()
	slices.SortFunc(infos, func(a, b RoomInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return infos
}

// Len returns the number of live rooms.
func (r *RoomRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func roomInfo(room string, members map[int]*Conn) RoomInfo {
	counterparts := lo.CountBy(lo.Values(members), func(c *Conn) bool {
		return c.role == RoleCounterpart
	})
	return RoomInfo{
		ID:           room,
		Members:      len(members),
		Participants: len(members) - counterparts,
		Counterparts: counterparts,
	}
}
