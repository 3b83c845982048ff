package server

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/replisync/replisync"
)

// State is a connection's position in the Handshaking -> Authorizing ->
// Connected -> Disconnected state machine (spec §4.H).
type State uint8

const (
	StateHandshaking State = iota
	StateAuthorizing
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateAuthorizing:
		return "authorizing"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// HandshakeResult reports what ReceiveHandshake did.
type HandshakeResult struct {
	Accepted bool
	// Replaced is true when a later handshake with a different
	// timestamp arrived, meaning the caller must emit a Disconnection
	// for the old generation before treating this as a fresh Connection.
	Replaced bool
}

// retryRecord is the per-outbound-packet bookkeeping needed to either
// retire (on ack) or re-queue (on nack/timeout) everything that packet
// carried.
type retryRecord struct {
	creates          []replisync.EntityID
	deletesEntity    []replisync.EntityID
	addsComponent    []replisync.ComponentHandle
	deletesComponent []replisync.ComponentKey
	assignsPawn      []replisync.EntityID
	unassignsPawn    []replisync.EntityID
	updates          map[replisync.ComponentHandle]*replisync.DiffMask
}

// Connection is one client's transport state plus per-user replication
// bookkeeping: the entities currently in scope, the local 16-bit keys
// assigned to them and their components, per-component dirty masks,
// and the ack-indexed retry history used to guarantee retry-to-
// convergence over a lossy transport.
type Connection struct {
	mu sync.Mutex

	user  UserKey
	state State

	handshakeSeen bool
	handshakeTS   uint64

	lastReceived      time.Time
	lastHeartbeatSent time.Time
	heartbeatInterval time.Duration
	disconnectTimeout time.Duration

	store *Store

	entityKeys     map[replisync.EntityID]replisync.EntityKey
	entityIDs      map[replisync.EntityKey]replisync.EntityID
	freeEntityKeys []replisync.EntityKey
	nextEntityKey  uint32

	componentKeys    map[replisync.ComponentHandle]replisync.ComponentKey
	componentHandles map[replisync.ComponentKey]replisync.ComponentHandle
	freeComponentKeys []replisync.ComponentKey
	nextComponentKey  uint32

	dirtyMasks map[replisync.ComponentHandle]*replisync.DiffMask

	pendingCreate          map[replisync.EntityID]struct{}
	pendingDeleteEntity    map[replisync.EntityID]struct{}
	pendingAddComponent    map[replisync.ComponentHandle]struct{}
	pendingDeleteComponent []replisync.ComponentKey
	pendingAssignPawn      map[replisync.EntityID]struct{}
	pendingUnassignPawn    map[replisync.EntityID]struct{}

	pawns map[replisync.EntityID]struct{}

	nextSeq uint64
	retry   map[uint64]*retryRecord

	metrics *replisync.Metrics
	log     *zap.Logger
}

// NewConnection creates a connection in the Handshaking state. log may
// be nil, matching the teacher's pattern of an optional
// *metrics.Registry in hub.go: a nil logger falls back to a no-op one
// so every call site can log unconditionally.
func NewConnection(user UserKey, store *Store, heartbeatInterval, disconnectTimeout time.Duration, metrics *replisync.Metrics, log *zap.Logger) *Connection {
	if log == nil {
		log = zap.NewNop()
	}
	return &Connection{
		user:              user,
		state:             StateHandshaking,
		heartbeatInterval: heartbeatInterval,
		disconnectTimeout: disconnectTimeout,
		store:             store,
		log:               log.With(zap.Uint64("user", uint64(user))),

		entityKeys:       make(map[replisync.EntityID]replisync.EntityKey),
		entityIDs:        make(map[replisync.EntityKey]replisync.EntityID),
		componentKeys:    make(map[replisync.ComponentHandle]replisync.ComponentKey),
		componentHandles: make(map[replisync.ComponentKey]replisync.ComponentHandle),
		dirtyMasks:       make(map[replisync.ComponentHandle]*replisync.DiffMask),

		pendingCreate:       make(map[replisync.EntityID]struct{}),
		pendingDeleteEntity: make(map[replisync.EntityID]struct{}),
		pendingAddComponent: make(map[replisync.ComponentHandle]struct{}),
		pendingAssignPawn:   make(map[replisync.EntityID]struct{}),
		pendingUnassignPawn: make(map[replisync.EntityID]struct{}),

		pawns: make(map[replisync.EntityID]struct{}),
		retry: make(map[uint64]*retryRecord),

		metrics: metrics,
	}
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) User() UserKey { return c.user }

// Touch records that a packet was just received from this connection,
// resetting the disconnect timeout clock.
func (c *Connection) Touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastReceived = now
}

// TimedOut reports whether now is past the disconnect timeout since the
// last received packet.
func (c *Connection) TimedOut(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.lastReceived.IsZero() && now.Sub(c.lastReceived) >= c.disconnectTimeout
}

// NeedsHeartbeat reports whether the idle heartbeat interval has
// elapsed and a heartbeat should be sent.
func (c *Connection) NeedsHeartbeat(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastHeartbeatSent) >= c.heartbeatInterval
}

func (c *Connection) MarkHeartbeatSent(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHeartbeatSent = now
}

// ReceiveHandshake implements the Handshaking-state transitions of
// spec §4.H: a first handshake records its timestamp; an identical
// timestamp received again is idempotent; a differing timestamp means
// the caller sent a new connection attempt over the old one, so the
// old generation's state is dropped and Replaced is reported (the
// caller must emit a Disconnection for the old generation, then treat
// this call's acceptance as a fresh Connection).
func (c *Connection) ReceiveHandshake(ts uint64, authRequired bool) HandshakeResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.handshakeSeen {
		c.handshakeSeen = true
		c.handshakeTS = ts
		c.advanceAfterHandshakeLocked(authRequired)
		c.log.Info("handshake accepted", zap.Uint64("ts", ts), zap.Stringer("state", c.state))
		return HandshakeResult{Accepted: true}
	}
	if ts == c.handshakeTS {
		return HandshakeResult{Accepted: true}
	}

	c.log.Warn("handshake replaced previous generation", zap.Uint64("old_ts", c.handshakeTS), zap.Uint64("new_ts", ts))
	c.resetLocked()
	c.handshakeSeen = true
	c.handshakeTS = ts
	c.advanceAfterHandshakeLocked(authRequired)
	return HandshakeResult{Accepted: true, Replaced: true}
}

func (c *Connection) advanceAfterHandshakeLocked(authRequired bool) {
	if authRequired {
		c.state = StateAuthorizing
	} else {
		c.state = StateConnected
	}
}

// resetLocked drops all per-connection replication state, as when a
// handshake collision replaces this connection's generation, or when
// it is torn down on disconnect. Caller must hold c.mu.
func (c *Connection) resetLocked() {
	c.state = StateHandshaking
	c.handshakeSeen = false
	c.handshakeTS = 0
	c.entityKeys = make(map[replisync.EntityID]replisync.EntityKey)
	c.entityIDs = make(map[replisync.EntityKey]replisync.EntityID)
	c.freeEntityKeys = nil
	c.componentKeys = make(map[replisync.ComponentHandle]replisync.ComponentKey)
	c.componentHandles = make(map[replisync.ComponentKey]replisync.ComponentHandle)
	c.freeComponentKeys = nil
	c.dirtyMasks = make(map[replisync.ComponentHandle]*replisync.DiffMask)
	c.pendingCreate = make(map[replisync.EntityID]struct{})
	c.pendingDeleteEntity = make(map[replisync.EntityID]struct{})
	c.pendingAddComponent = make(map[replisync.ComponentHandle]struct{})
	c.pendingDeleteComponent = nil
	c.pendingAssignPawn = make(map[replisync.EntityID]struct{})
	c.pendingUnassignPawn = make(map[replisync.EntityID]struct{})
	c.pawns = make(map[replisync.EntityID]struct{})
	c.retry = make(map[uint64]*retryRecord)
}

// Authorize resolves the Authorizing state. ok=false transitions to
// Disconnected but, per spec §7, this path is a rejection, not a
// Disconnection event — the caller must not emit one.
func (c *Connection) Authorize(ok bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAuthorizing {
		return false
	}
	if ok {
		c.state = StateConnected
		c.log.Info("authorization accepted")
	} else {
		c.state = StateDisconnected
		c.log.Info("authorization rejected")
	}
	return ok
}

// Disconnect forces the connection to Disconnected and releases all
// per-connection state (scope, masks, pawns, retry history), per spec
// §5's cancellation model. The caller is responsible for the single
// user-visible Disconnection event.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Info("disconnecting")
	c.resetLocked()
	c.state = StateDisconnected
}

// --- local key allocation ---------------------------------------------

func (c *Connection) allocEntityKeyLocked(id replisync.EntityID) replisync.EntityKey {
	var key replisync.EntityKey
	if n := len(c.freeEntityKeys); n > 0 {
		key = c.freeEntityKeys[n-1]
		c.freeEntityKeys = c.freeEntityKeys[:n-1]
	} else {
		c.nextEntityKey++
		key = replisync.EntityKey(c.nextEntityKey)
	}
	c.entityKeys[id] = key
	c.entityIDs[key] = id
	return key
}

func (c *Connection) allocComponentKeyLocked(handle replisync.ComponentHandle) replisync.ComponentKey {
	var key replisync.ComponentKey
	if n := len(c.freeComponentKeys); n > 0 {
		key = c.freeComponentKeys[n-1]
		c.freeComponentKeys = c.freeComponentKeys[:n-1]
	} else {
		c.nextComponentKey++
		key = replisync.ComponentKey(c.nextComponentKey)
	}
	c.componentKeys[handle] = key
	c.componentHandles[key] = handle
	return key
}

// --- scope transitions --------------------------------------------------

// ScopeIn brings entity into this connection's scope: allocates local
// keys for it and its current components, opens a dirty-mask
// subscription on each component, and enqueues a CreateEntity for the
// next tick's writer.
func (c *Connection) ScopeIn(rec *EntityRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, already := c.entityKeys[rec.ID]; already {
		return
	}
	c.allocEntityKeyLocked(rec.ID)
	for _, comp := range rec.Components {
		c.subscribeComponentLocked(comp)
	}
	c.pendingCreate[rec.ID] = struct{}{}
}

func (c *Connection) subscribeComponentLocked(comp *ComponentRecord) {
	if _, already := c.componentKeys[comp.Handle]; already {
		return
	}
	c.allocComponentKeyLocked(comp.Handle)
	mask := replisync.NewDiffMask(int(comp.Replica.MaskBytes()) * 8)
	c.dirtyMasks[comp.Handle] = mask
	c.store.Subscribe(comp.Handle, ConnectionID(c.user), mask)
}

// ScopeOut removes entity from scope: enqueues a DeleteEntity for the
// next tick's writer. Local keys are not freed until the delete is
// acked (spec §4.E: "reuse after delete is allowed after the delete is
// acked").
func (c *Connection) ScopeOut(entity replisync.EntityID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entityKeys[entity]; !ok {
		return
	}
	delete(c.pendingCreate, entity)
	c.pendingDeleteEntity[entity] = struct{}{}
}

// NotifyComponentAdded enqueues an AddComponent for a component
// attached to an entity already in this connection's scope. A
// duplicate add onto a pawn clones into the pawn store immediately, per
// spec §9's resolution — that cloning is the client's responsibility
// once the AddComponent action arrives; the server side only needs to
// send it.
func (c *Connection) NotifyComponentAdded(comp *ComponentRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, inScope := c.entityKeys[comp.Entity]; !inScope {
		return
	}
	c.subscribeComponentLocked(comp)
	c.pendingAddComponent[comp.Handle] = struct{}{}
}

// NotifyComponentDeleted enqueues a DeleteComponent. The component has
// already been detached from the store by the time this is called.
func (c *Connection) NotifyComponentDeleted(handle replisync.ComponentHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.componentKeys[handle]
	if !ok {
		return
	}
	delete(c.componentKeys, handle)
	delete(c.componentHandles, key)
	delete(c.dirtyMasks, handle)
	c.pendingDeleteComponent = append(c.pendingDeleteComponent, key)
}

// AssignPawn marks entity as a pawn for this connection and enqueues
// AssignPawnEntity.
func (c *Connection) AssignPawn(entity replisync.EntityID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pawns[entity] = struct{}{}
	c.pendingAssignPawn[entity] = struct{}{}
}

// UnassignPawn clears pawn status for entity and enqueues
// UnassignPawnEntity.
func (c *Connection) UnassignPawn(entity replisync.EntityID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pawns, entity)
	c.pendingUnassignPawn[entity] = struct{}{}
}

// --- per-tick writer -----------------------------------------------------

// WriteTick drains every pending action for this connection into w, in
// the order spec §4.H requires: creates, add/delete component, dirty
// updates, pawn assign/unassign, deletes last. It returns the packet
// sequence number the caller should correlate with the transport's
// ack/nack notification via Ack/Nack.
func (c *Connection) WriteTick(w io.Writer, tick uint16) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record := &retryRecord{updates: make(map[replisync.ComponentHandle]*replisync.DiffMask)}

	// Buffered separately from w: §4.E's manager-section header carries
	// the record count, which is only known once every pending action
	// has been drained.
	var body bytes.Buffer
	var count int

	for entity := range c.pendingCreate {
		rec, ok := c.store.Entity(entity)
		if !ok {
			delete(c.pendingCreate, entity)
			continue
		}
		entityKey := c.entityKeys[entity]
		components := make([]replisync.ComponentInit, 0, len(rec.Components))
		for _, comp := range rec.Components {
			components = append(components, replisync.ComponentInit{
				Kind:         comp.Kind,
				ComponentKey: c.componentKeys[comp.Handle],
				Replica:      comp.Replica,
			})
		}
		if err := replisync.WriteCreateEntity(&body, entityKey, components); err != nil {
			return 0, err
		}
		count++
		record.creates = append(record.creates, entity)
	}

	for handle := range c.pendingAddComponent {
		comp, ok := c.store.Component(handle)
		if !ok {
			delete(c.pendingAddComponent, handle)
			continue
		}
		entityKey := c.entityKeys[comp.Entity]
		componentKey := c.componentKeys[handle]
		if err := replisync.WriteAddComponent(&body, entityKey, comp.Kind, componentKey, comp.Replica); err != nil {
			return 0, err
		}
		count++
		record.addsComponent = append(record.addsComponent, handle)
	}

	for _, key := range c.pendingDeleteComponent {
		if err := replisync.WriteDeleteComponent(&body, key); err != nil {
			return 0, err
		}
		count++
		record.deletesComponent = append(record.deletesComponent, key)
	}

	for handle, mask := range c.dirtyMasks {
		if mask.IsClear() {
			continue
		}
		comp, ok := c.store.Component(handle)
		if !ok {
			continue
		}
		sent := mask.Clone()
		if err := replisync.WriteUpdateComponent(&body, c.componentKeys[handle], sent, comp.Replica); err != nil {
			return 0, err
		}
		mask.Clear()
		count++
		record.updates[handle] = sent
	}

	for entity := range c.pendingAssignPawn {
		entityKey := c.entityKeys[entity]
		if err := replisync.WriteAssignPawnEntity(&body, entityKey); err != nil {
			return 0, err
		}
		count++
		record.assignsPawn = append(record.assignsPawn, entity)
	}
	for entity := range c.pendingUnassignPawn {
		entityKey := c.entityKeys[entity]
		if err := replisync.WriteUnassignPawnEntity(&body, entityKey); err != nil {
			return 0, err
		}
		count++
		record.unassignsPawn = append(record.unassignsPawn, entity)
	}

	for entity := range c.pendingDeleteEntity {
		entityKey := c.entityKeys[entity]
		if err := replisync.WriteDeleteEntity(&body, entityKey); err != nil {
			return 0, err
		}
		count++
		record.deletesEntity = append(record.deletesEntity, entity)
	}

	// A tick with nothing pending writes nothing at all, rather than an
	// empty section header, so callers can tell an idle connection apart
	// from one that just sent a zero-record section.
	if count > 0 {
		if err := replisync.WriteManagerHeader(w, replisync.ManagerEntityActions, tick, count); err != nil {
			return 0, err
		}
		if _, err := w.Write(body.Bytes()); err != nil {
			return 0, err
		}
	}

	c.nextSeq++
	seq := c.nextSeq
	c.retry[seq] = record
	if c.metrics != nil {
		c.metrics.PacketsSent.Inc()
	}
	return seq, nil
}

// --- command intake (module H) ------------------------------------------

// DecodeCommands reads one Command stream manager section (spec §2
// module H, §6's Command(UserKey, EntityKey, P) event) and returns one
// ServerEvent per record. Per spec §9 a command is addressed by the
// same connection-local EntityKey the entity manager section uses; a
// command for a key this connection never scoped in, or that does not
// name a pawn, is a protocol violation and the caller must drop the
// connection after emitting the returned events for records decoded so
// far.
func (c *Connection) DecodeCommands(r io.Reader, manifest *replisync.Manifest) ([]ServerEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tick, records, err := replisync.ReadCommandsSection(r, manifest)
	if err != nil {
		c.violationLocked("decode commands section", err)
		return nil, err
	}

	events := make([]ServerEvent, 0, len(records))
	for _, rec := range records {
		entity, ok := c.entityIDs[rec.EntityKey]
		if !ok {
			err := fmt.Errorf("%w: command for unscoped entity key %d", ErrUnknownEntity, rec.EntityKey)
			c.violationLocked("command targets unscoped entity", err)
			return events, err
		}
		if _, isPawn := c.pawns[entity]; !isPawn {
			err := fmt.Errorf("%w: command for non-pawn entity %d", ErrUnknownEntity, entity)
			c.violationLocked("command targets non-pawn entity", err)
			return events, err
		}
		events = append(events, ServerEvent{
			Kind:      EventCommand,
			User:      c.user,
			EntityKey: rec.EntityKey,
			Protocol:  replisync.NewProtocol(rec.Command),
		})
	}
	c.log.Debug("decoded command section", zap.Uint16("tick", tick), zap.Int("count", len(records)))
	return events, nil
}

// DecodeMessages reads one Messages manager section and returns one
// ServerEvent per message (spec §6's Message(UserKey, P) event).
func (c *Connection) DecodeMessages(r io.Reader) ([]ServerEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tick, msgs, err := replisync.ReadMessagesSection(r)
	if err != nil {
		c.violationLocked("decode messages section", err)
		return nil, err
	}
	events := make([]ServerEvent, 0, len(msgs))
	for _, m := range msgs {
		events = append(events, ServerEvent{
			Kind:    EventMessage,
			User:    c.user,
			Message: m,
		})
	}
	c.log.Debug("decoded messages section", zap.Uint16("tick", tick), zap.Int("count", len(msgs)))
	return events, nil
}

// violationLocked logs a protocol violation and bumps the shared
// counter. Caller must hold c.mu. It does not itself disconnect; per
// spec §7 that is the caller's responsibility once the returned error
// propagates.
func (c *Connection) violationLocked(what string, err error) {
	c.log.Warn("protocol violation", zap.String("what", what), zap.Error(err))
	if c.metrics != nil {
		c.metrics.ProtocolViolations.Inc()
	}
}

// Ack retires the retry record for seq, permanently applying its
// effects: keys freed by a delete become reusable, and pending
// entries that were still outstanding are cleared.
func (c *Connection) Ack(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.retry[seq]
	if !ok {
		return
	}
	delete(c.retry, seq)

	for _, entity := range record.creates {
		delete(c.pendingCreate, entity)
	}
	for _, handle := range record.addsComponent {
		delete(c.pendingAddComponent, handle)
	}
	if len(record.deletesComponent) > 0 {
		c.pendingDeleteComponent = removeAckedKeys(c.pendingDeleteComponent, record.deletesComponent)
		for _, key := range record.deletesComponent {
			c.freeComponentKeys = append(c.freeComponentKeys, key)
		}
	}
	for entity := range record.assignsPawnSet() {
		delete(c.pendingAssignPawn, entity)
	}
	for entity := range record.unassignsPawnSet() {
		delete(c.pendingUnassignPawn, entity)
	}
	for _, entity := range record.deletesEntity {
		delete(c.pendingDeleteEntity, entity)
		if key, ok := c.entityKeys[entity]; ok {
			delete(c.entityKeys, entity)
			delete(c.entityIDs, key)
			c.freeEntityKeys = append(c.freeEntityKeys, key)
		}
	}
}

// Nack re-queues everything seq carried so it is resent, merging any
// sent-but-lost dirty bits back into the live masks (spec §4.H,
// "retry-to-convergence"). A timeout the transport reports for a
// packet it never explicitly nacked should be handled the same way.
func (c *Connection) Nack(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.retry[seq]
	if !ok {
		return
	}
	delete(c.retry, seq)

	for _, entity := range record.creates {
		c.pendingCreate[entity] = struct{}{}
	}
	for _, handle := range record.addsComponent {
		c.pendingAddComponent[handle] = struct{}{}
	}
	c.pendingDeleteComponent = append(c.pendingDeleteComponent, record.deletesComponent...)
	for _, entity := range record.assignsPawn {
		c.pendingAssignPawn[entity] = struct{}{}
	}
	for _, entity := range record.unassignsPawn {
		c.pendingUnassignPawn[entity] = struct{}{}
	}
	for _, entity := range record.deletesEntity {
		c.pendingDeleteEntity[entity] = struct{}{}
	}
	for handle, sent := range record.updates {
		if live, ok := c.dirtyMasks[handle]; ok {
			live.OrWith(sent)
		}
	}
	if c.metrics != nil {
		c.metrics.PacketsResent.Inc()
	}
}

func (r *retryRecord) assignsPawnSet() map[replisync.EntityID]struct{} {
	set := make(map[replisync.EntityID]struct{}, len(r.assignsPawn))
	for _, e := range r.assignsPawn {
		set[e] = struct{}{}
	}
	return set
}

func (r *retryRecord) unassignsPawnSet() map[replisync.EntityID]struct{} {
	set := make(map[replisync.EntityID]struct{}, len(r.unassignsPawn))
	for _, e := range r.unassignsPawn {
		set[e] = struct{}{}
	}
	return set
}

func removeAckedKeys(pending []replisync.ComponentKey, acked []replisync.ComponentKey) []replisync.ComponentKey {
	if len(acked) == 0 {
		return pending
	}
	ackedSet := make(map[replisync.ComponentKey]struct{}, len(acked))
	for _, k := range acked {
		ackedSet[k] = struct{}{}
	}
	out := pending[:0]
	for _, k := range pending {
		if _, done := ackedSet[k]; !done {
			out = append(out, k)
		}
	}
	return out
}
