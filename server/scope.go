package server

import (
	"sync"

	"github.com/replisync/replisync"
)

// ScopePredicate gates whether user u may see entity e, on top of room
// co-membership. A nil predicate for a room means "always visible to
// anyone sharing the room".
type ScopePredicate func(u UserKey, e replisync.EntityID) bool

// ScopeEngine resolves the current in-scope entity set for each user
// from room membership plus per-room predicates, and reports the
// InScope/OutOfScope transitions since the last resolution (spec
// §4.G). It holds no reference to any connection; the caller calls
// Resolve and reacts to the returned transitions itself (for example
// through Connection.ScopeIn and Connection.ScopeOut).
type ScopeEngine struct {
	mu         sync.Mutex
	predicates map[string]ScopePredicate
	current    map[UserKey]map[replisync.EntityID]struct{}
}

// NewScopeEngine creates an engine with no registered predicates.
func NewScopeEngine() *ScopeEngine {
	return &ScopeEngine{
		predicates: make(map[string]ScopePredicate),
		current:    make(map[UserKey]map[replisync.EntityID]struct{}),
	}
}

// SetPredicate installs (or replaces) the scope predicate for a room.
func (se *ScopeEngine) SetPredicate(room string, p ScopePredicate) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.predicates[room] = p
}

// ClearPredicate removes a room's predicate, reverting to
// always-visible for members of that room.
func (se *ScopeEngine) ClearPredicate(room string) {
	se.mu.Lock()
	defer se.mu.Unlock()
	delete(se.predicates, room)
}

// Resolve recomputes u's visible entity set against rooms and returns
// the entities that newly entered scope and the entities that newly
// left it since the previous call. A user who has never been resolved
// before reports every currently-visible entity as an InScope
// transition.
func (se *ScopeEngine) Resolve(rooms *RoomSet, u UserKey) (inScope, outScope []replisync.EntityID) {
	candidate := make(map[replisync.EntityID]struct{})
	for _, r := range rooms.RoomsOf(u) {
		se.mu.Lock()
		pred, ok := se.predicates[r.name]
		se.mu.Unlock()
		for _, e := range r.Entities() {
			if ok && pred != nil && !pred(u, e) {
				continue
			}
			candidate[e] = struct{}{}
		}
	}

	se.mu.Lock()
	defer se.mu.Unlock()
	prev := se.current[u]

	for e := range candidate {
		if prev == nil || !contains(prev, e) {
			inScope = append(inScope, e)
		}
	}
	for e := range prev {
		if _, ok := candidate[e]; !ok {
			outScope = append(outScope, e)
		}
	}
	se.current[u] = candidate
	return inScope, outScope
}

// Forget drops all scope bookkeeping for u, as a user's connection
// transitioning to Disconnected.
func (se *ScopeEngine) Forget(u UserKey) {
	se.mu.Lock()
	defer se.mu.Unlock()
	delete(se.current, u)
}

func contains(set map[replisync.EntityID]struct{}, e replisync.EntityID) bool {
	_, ok := set[e]
	return ok
}
