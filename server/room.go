package server

import (
	"sync"

	"github.com/replisync/replisync"
)

// UserKey identifies a logical remote (one connection's owner).
type UserKey uint64

// Room is a named bag joining a set of users to a set of entities for
// scope resolution (spec §3, §4.G). A user sees an entity only if they
// share at least one room with it and the scope predicate (if any)
// allows it.
type Room struct {
	name     string
	mu       sync.RWMutex
	users    map[UserKey]struct{}
	entities map[replisync.EntityID]struct{}
}

func newRoom(name string) *Room {
	return &Room{
		name:     name,
		users:    make(map[UserKey]struct{}),
		entities: make(map[replisync.EntityID]struct{}),
	}
}

func (r *Room) AddUser(u UserKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u] = struct{}{}
}

func (r *Room) RemoveUser(u UserKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, u)
}

func (r *Room) AddEntity(e replisync.EntityID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[e] = struct{}{}
}

func (r *Room) RemoveEntity(e replisync.EntityID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entities, e)
}

func (r *Room) HasUser(u UserKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[u]
	return ok
}

func (r *Room) HasEntity(e replisync.EntityID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entities[e]
	return ok
}

func (r *Room) Users() []UserKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]UserKey, 0, len(r.users))
	for u := range r.users {
		out = append(out, u)
	}
	return out
}

func (r *Room) Entities() []replisync.EntityID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]replisync.EntityID, 0, len(r.entities))
	for e := range r.entities {
		out = append(out, e)
	}
	return out
}

// RoomSet owns the named collection of rooms a server maintains.
// Overlapping rooms union: a user is in scope for an entity if any
// shared room grants it.
type RoomSet struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRoomSet creates an empty room set.
func NewRoomSet() *RoomSet {
	return &RoomSet{rooms: make(map[string]*Room)}
}

// Room returns the named room, creating it if it doesn't exist yet.
func (rs *RoomSet) Room(name string) *Room {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.rooms[name]
	if !ok {
		r = newRoom(name)
		rs.rooms[name] = r
	}
	return r
}

// DeleteRoom removes a room entirely. Entities and users that were only
// visible through it lose that visibility on the next scope resolution.
func (rs *RoomSet) DeleteRoom(name string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.rooms, name)
}

// RoomsOf returns every room u currently belongs to.
func (rs *RoomSet) RoomsOf(u UserKey) []*Room {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	var out []*Room
	for _, r := range rs.rooms {
		if r.HasUser(u) {
			out = append(out, r)
		}
	}
	return out
}

// RoomsSharedBy returns every room that contains both u and e, i.e. the
// set of rooms that could grant scope for this (user, entity) pair
// before the scope predicate is consulted.
func (rs *RoomSet) RoomsSharedBy(u UserKey, e replisync.EntityID) []*Room {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	var shared []*Room
	for _, r := range rs.rooms {
		if r.HasUser(u) && r.HasEntity(e) {
			shared = append(shared, r)
		}
	}
	return shared
}

// EntitiesVisibleTo returns the de-duplicated union of entities in every
// room u belongs to, before the scope predicate is applied.
func (rs *RoomSet) EntitiesVisibleTo(u UserKey) []replisync.EntityID {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	seen := make(map[replisync.EntityID]struct{})
	var out []replisync.EntityID
	for _, r := range rs.rooms {
		if !r.HasUser(u) {
			continue
		}
		for _, e := range r.Entities() {
			if _, ok := seen[e]; !ok {
				seen[e] = struct{}{}
				out = append(out, e)
			}
		}
	}
	return out
}
