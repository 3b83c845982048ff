package server

import (
	"fmt"
	"sync"

	"github.com/replisync/replisync"
)

// ConnectionID identifies a connection subscribed to components in the
// store. The connection package that owns the lifecycle is free to key
// it however it likes; the store only ever compares it for equality.
type ConnectionID uint64

// EntityRecord is one server-authoritative entity: a stable id plus the
// components it currently owns, keyed by kind (an entity owns at most
// one component of a given kind).
type EntityRecord struct {
	ID         replisync.EntityID
	Components map[replisync.Kind]*ComponentRecord
}

// ComponentRecord is the authoritative storage for one component,
// along with the set of connections currently subscribed to its
// mutations (opened on scope-in, closed on scope-out, per spec §4.F).
type ComponentRecord struct {
	Handle  replisync.ComponentHandle
	Entity  replisync.EntityID
	Kind    replisync.Kind
	Replica replisync.Replica

	mu          sync.Mutex
	subscribers map[ConnectionID]*replisync.DiffMask
}

// subscriberMasks returns the masks to OR a dirty bit into, for every
// subscribed connection. Called by componentMutator.Mutate.
func (c *ComponentRecord) subscriberMasks() []*replisync.DiffMask {
	c.mu.Lock()
	defer c.mu.Unlock()
	masks := make([]*replisync.DiffMask, 0, len(c.subscribers))
	for _, m := range c.subscribers {
		masks = append(masks, m)
	}
	return masks
}

func (c *ComponentRecord) subscribe(conn ConnectionID, mask *replisync.DiffMask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers[conn] = mask
}

func (c *ComponentRecord) unsubscribe(conn ConnectionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribers, conn)
}

// Store is the central authoritative entity/component table. User code
// on the server mutates replicas only through this store (or through
// the replica setters it hands out), and only between ticks, per spec
// §5's single-mutator-at-a-time model.
type Store struct {
	mu         sync.RWMutex
	entities   map[replisync.EntityID]*EntityRecord
	components map[replisync.ComponentHandle]*ComponentRecord

	nextEntity uint64
	nextHandle uint64

	metrics *replisync.Metrics
}

// NewStore creates an empty store. metrics may be nil to disable
// instrumentation.
func NewStore(metrics *replisync.Metrics) *Store {
	return &Store{
		entities:   make(map[replisync.EntityID]*EntityRecord),
		components: make(map[replisync.ComponentHandle]*ComponentRecord),
		metrics:    metrics,
	}
}

// CreateEntity allocates a fresh entity with no components.
func (s *Store) CreateEntity() replisync.EntityID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextEntity++
	id := replisync.EntityID(s.nextEntity)
	s.entities[id] = &EntityRecord{ID: id, Components: make(map[replisync.Kind]*ComponentRecord)}
	if s.metrics != nil {
		s.metrics.EntitiesTracked.Inc()
	}
	return id
}

// Entity returns the record for id.
func (s *Store) Entity(id replisync.EntityID) (*EntityRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok
}

// DeleteEntity removes an entity and all of its components, returning
// the removed component records so the caller (the room/scope engine)
// can tear down their subscriptions and notify connections.
func (s *Store) DeleteEntity(id replisync.EntityID) ([]*ComponentRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, false
	}
	removed := make([]*ComponentRecord, 0, len(e.Components))
	for _, c := range e.Components {
		delete(s.components, c.Handle)
		removed = append(removed, c)
	}
	delete(s.entities, id)
	if s.metrics != nil {
		s.metrics.EntitiesTracked.Dec()
	}
	return removed, true
}

// AddComponent attaches a new component of kind to entity, returning its
// record. The replica's mutator is attached here, wired back to this
// component's subscriber set. ErrDuplicateKind if entity already owns a
// component of this kind; ErrUnknownEntity if entity doesn't exist.
func (s *Store) AddComponent(entity replisync.EntityID, kind replisync.Kind, r replisync.Replica) (*ComponentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEntity, entity)
	}
	if _, exists := e.Components[kind]; exists {
		return nil, fmt.Errorf("%w: entity %d kind %d", ErrDuplicateKind, entity, kind)
	}

	s.nextHandle++
	handle := replisync.ComponentHandle(s.nextHandle)
	rec := &ComponentRecord{
		Handle:      handle,
		Entity:      entity,
		Kind:        kind,
		Replica:     r,
		subscribers: make(map[ConnectionID]*replisync.DiffMask),
	}
	r.AttachMutator(&componentMutator{record: rec})

	e.Components[kind] = rec
	s.components[handle] = rec
	return rec, nil
}

// DeleteComponent detaches a component from its entity. Returns the
// removed record so the caller can notify subscribed connections.
func (s *Store) DeleteComponent(handle replisync.ComponentHandle) (*ComponentRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.components[handle]
	if !ok {
		return nil, false
	}
	if e, ok := s.entities[rec.Entity]; ok {
		delete(e.Components, rec.Kind)
	}
	delete(s.components, handle)
	return rec, true
}

// Component looks up a component by its server-global handle.
func (s *Store) Component(handle replisync.ComponentHandle) (*ComponentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.components[handle]
	return c, ok
}

// Subscribe opens a subscription: mutations to handle's replica will
// from now on OR their dirty bit into mask. Used on scope-in.
func (s *Store) Subscribe(handle replisync.ComponentHandle, conn ConnectionID, mask *replisync.DiffMask) bool {
	rec, ok := s.Component(handle)
	if !ok {
		return false
	}
	rec.subscribe(conn, mask)
	return true
}

// Unsubscribe closes a subscription opened by Subscribe. Used on
// scope-out or connection teardown.
func (s *Store) Unsubscribe(handle replisync.ComponentHandle, conn ConnectionID) {
	if rec, ok := s.Component(handle); ok {
		rec.unsubscribe(conn)
	}
}

// EntityCount reports how many entities are currently tracked, for
// metrics and tests.
func (s *Store) EntityCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}
