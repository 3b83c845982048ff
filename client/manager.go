package client

import (
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/replisync/replisync"
)

// ReplicaManager is the client-side store of spec §3/§4.I: a map from
// local component key to replica, a map from component key to the
// entity it belongs to, a per-entity component index, the set of
// locally-owned pawns, and a parallel pawn store of cloned replicas
// that receive local predictions before a server correction lands.
type ReplicaManager struct {
	mu sync.Mutex

	manifest   *replisync.Manifest
	maskWidths map[replisync.Kind]uint8

	entities         map[replisync.EntityKey]struct{}
	entityComponents map[replisync.EntityKey]map[replisync.ComponentKey]struct{}
	components       map[replisync.ComponentKey]replisync.Replica
	componentEntity  map[replisync.ComponentKey]replisync.EntityKey
	componentKind    map[replisync.ComponentKey]replisync.Kind

	pawns     map[replisync.EntityKey]struct{}
	pawnStore map[replisync.ComponentKey]replisync.Replica

	predictor *Predictor
	log       *zap.Logger
}

// NewReplicaManager creates a manager that decodes with manifest and
// drives predictor's pawn lifecycle hooks. predictor may be nil for a
// read-only client (e.g. a spectator with no pawns).
func NewReplicaManager(manifest *replisync.Manifest, predictor *Predictor) *ReplicaManager {
	return &ReplicaManager{
		manifest:         manifest,
		maskWidths:       make(map[replisync.Kind]uint8),
		entities:         make(map[replisync.EntityKey]struct{}),
		entityComponents: make(map[replisync.EntityKey]map[replisync.ComponentKey]struct{}),
		components:       make(map[replisync.ComponentKey]replisync.Replica),
		componentEntity:  make(map[replisync.ComponentKey]replisync.EntityKey),
		componentKind:    make(map[replisync.ComponentKey]replisync.Kind),
		pawns:            make(map[replisync.EntityKey]struct{}),
		pawnStore:        make(map[replisync.ComponentKey]replisync.Replica),
		predictor:        predictor,
		log:              zap.NewNop(),
	}
}

// WithLogger attaches a logger for the manager's log-and-continue edge
// cases (duplicate create, delete of an unknown key). Optional;
// a fresh ReplicaManager already holds a no-op logger.
func (rm *ReplicaManager) WithLogger(log *zap.Logger) *ReplicaManager {
	if log != nil {
		rm.log = log
	}
	return rm
}

// RegisterMaskWidth records kind's diff-mask width, needed to validate
// and decode an UpdateComponent's mask before its body. Every kind the
// manifest can build must be registered here too; cmd/replicagen does
// not generate this call.
func (rm *ReplicaManager) RegisterMaskWidth(kind replisync.Kind, width uint8) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.maskWidths[kind] = width
}

func (rm *ReplicaManager) kindMaskWidth(kind replisync.Kind) (uint8, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	w, ok := rm.maskWidths[kind]
	return w, ok
}

func (rm *ReplicaManager) existingComponent(key replisync.ComponentKey) (replisync.Replica, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	r, ok := rm.components[key]
	return r, ok
}

// ApplyEntityActions decodes and applies a full Entity/Replica actions
// manager section: the §4.E header (manager code, packet tick, record
// count) followed by exactly that many records.
func (rm *ReplicaManager) ApplyEntityActions(r io.Reader) ([]Event, error) {
	tick, count, err := replisync.ReadManagerHeader(r, replisync.ManagerEntityActions)
	if err != nil {
		rm.log.Warn("failed to read entity actions section header", zap.Error(err))
		return nil, err
	}

	var events []Event
	for i := uint8(0); i < count; i++ {
		action, err := replisync.ReadEntityAction(r, rm.manifest, tick, rm.kindMaskWidth, rm.existingComponent)
		if err != nil {
			rm.log.Warn("protocol violation decoding entity action", zap.Error(err))
			return events, err
		}
		events = append(events, rm.apply(action, tick)...)
	}
	return events, nil
}

func (rm *ReplicaManager) apply(action replisync.EntityAction, tick uint16) []Event {
	switch action.Code {
	case replisync.ActionCreateEntity:
		return rm.applyCreateEntity(action)
	case replisync.ActionDeleteEntity:
		return rm.applyDeleteEntity(action)
	case replisync.ActionAddComponent:
		return rm.applyAddComponent(action)
	case replisync.ActionDeleteComponent:
		return rm.applyDeleteComponent(action)
	case replisync.ActionUpdateComponent:
		return rm.applyUpdateComponent(action, tick)
	case replisync.ActionAssignPawnEntity:
		return rm.applyAssignPawn(action)
	case replisync.ActionUnassignPawnEntity:
		return rm.applyUnassignPawn(action)
	default:
		return nil
	}
}

// applyCreateEntity implements the documented duplicate-create policy:
// a repeat CreateEntity for an already-known key is silently skipped —
// its payload was already consumed by ReadEntityAction's call into the
// manifest, which is what lets parsing continue correctly.
func (rm *ReplicaManager) applyCreateEntity(action replisync.EntityAction) []Event {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, exists := rm.entities[action.EntityKey]; exists {
		rm.log.Info("duplicate CreateEntity, skipping", zap.Uint16("entity_key", uint16(action.EntityKey)))
		return nil
	}
	rm.entities[action.EntityKey] = struct{}{}
	comps := make(map[replisync.ComponentKey]struct{}, len(action.Components))
	kinds := make([]replisync.Kind, 0, len(action.Components))
	for _, c := range action.Components {
		rm.components[c.ComponentKey] = c.Replica
		rm.componentEntity[c.ComponentKey] = action.EntityKey
		rm.componentKind[c.ComponentKey] = c.Kind
		comps[c.ComponentKey] = struct{}{}
		kinds = append(kinds, c.Kind)
	}
	rm.entityComponents[action.EntityKey] = comps

	return []Event{{Kind: EventSpawnEntity, EntityKey: action.EntityKey, Kinds: kinds}}
}

// applyDeleteEntity no-ops on an unknown key, per spec §4.I.
func (rm *ReplicaManager) applyDeleteEntity(action replisync.EntityAction) []Event {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.entities[action.EntityKey]; !ok {
		rm.log.Info("DeleteEntity for unknown key, ignoring", zap.Uint16("entity_key", uint16(action.EntityKey)))
		return nil
	}
	for key := range rm.entityComponents[action.EntityKey] {
		delete(rm.components, key)
		delete(rm.componentEntity, key)
		delete(rm.componentKind, key)
		delete(rm.pawnStore, key)
	}
	delete(rm.entityComponents, action.EntityKey)
	delete(rm.entities, action.EntityKey)
	rm.dropPawnLocked(action.EntityKey)

	return []Event{{Kind: EventDespawnEntity, EntityKey: action.EntityKey}}
}

func (rm *ReplicaManager) applyAddComponent(action replisync.EntityAction) []Event {
	rm.mu.Lock()
	if _, ok := rm.entities[action.EntityKey]; !ok {
		rm.mu.Unlock()
		return nil
	}
	rm.components[action.ComponentKey] = action.Replica
	rm.componentEntity[action.ComponentKey] = action.EntityKey
	rm.componentKind[action.ComponentKey] = action.Kind
	if rm.entityComponents[action.EntityKey] == nil {
		rm.entityComponents[action.EntityKey] = make(map[replisync.ComponentKey]struct{})
	}
	rm.entityComponents[action.EntityKey][action.ComponentKey] = struct{}{}

	_, isPawn := rm.pawns[action.EntityKey]
	if isPawn {
		rm.pawnStore[action.ComponentKey] = action.Replica.Clone()
	}
	rm.mu.Unlock()

	return []Event{{Kind: EventInsertComponent, EntityKey: action.EntityKey, ComponentKey: action.ComponentKey}}
}

func (rm *ReplicaManager) applyDeleteComponent(action replisync.EntityAction) []Event {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	entityKey, ok := rm.componentEntity[action.ComponentKey]
	if !ok {
		return nil
	}
	delete(rm.pawnStore, action.ComponentKey)
	delete(rm.components, action.ComponentKey)
	delete(rm.componentEntity, action.ComponentKey)
	delete(rm.componentKind, action.ComponentKey)
	if set, ok := rm.entityComponents[entityKey]; ok {
		delete(set, action.ComponentKey)
	}

	return []Event{{Kind: EventRemoveComponent, EntityKey: entityKey, ComponentKey: action.ComponentKey}}
}

// applyUpdateComponent: the wire merge into the authoritative replica
// already happened inside ReadEntityAction. For a pawn entity this also
// schedules a predictor replay from the packet's tick and trims command
// history through that tick, per spec §4.I.
func (rm *ReplicaManager) applyUpdateComponent(action replisync.EntityAction, tick uint16) []Event {
	rm.mu.Lock()
	entityKey, ok := rm.componentEntity[action.ComponentKey]
	_, isPawn := rm.pawns[entityKey]
	rm.mu.Unlock()
	if !ok {
		return nil
	}

	if isPawn && rm.predictor != nil {
		rm.predictor.RequestReplay(entityKey, tick)
		rm.predictor.TrimHistory(entityKey, tick)
	}

	return []Event{{Kind: EventInsertComponent, EntityKey: entityKey, ComponentKey: action.ComponentKey}}
}

func (rm *ReplicaManager) applyAssignPawn(action replisync.EntityAction) []Event {
	rm.mu.Lock()
	if _, ok := rm.entities[action.EntityKey]; !ok {
		rm.mu.Unlock()
		return nil
	}
	rm.pawns[action.EntityKey] = struct{}{}
	for key := range rm.entityComponents[action.EntityKey] {
		rm.pawnStore[key] = rm.components[key].Clone()
	}
	rm.mu.Unlock()

	if rm.predictor != nil {
		rm.predictor.InitPawn(action.EntityKey)
	}
	return []Event{{Kind: EventOwnEntity, EntityKey: action.EntityKey}}
}

func (rm *ReplicaManager) applyUnassignPawn(action replisync.EntityAction) []Event {
	rm.mu.Lock()
	wasPawn := rm.dropPawnLocked(action.EntityKey)
	rm.mu.Unlock()
	if !wasPawn {
		return nil
	}

	if rm.predictor != nil {
		rm.predictor.DropPawn(action.EntityKey)
	}
	return []Event{{Kind: EventDisownEntity, EntityKey: action.EntityKey}}
}

// dropPawnLocked removes every pawn-store entry for entity and clears
// its pawn status. Caller must hold rm.mu.
func (rm *ReplicaManager) dropPawnLocked(entity replisync.EntityKey) bool {
	if _, ok := rm.pawns[entity]; !ok {
		return false
	}
	for key := range rm.entityComponents[entity] {
		delete(rm.pawnStore, key)
	}
	delete(rm.pawns, entity)
	return true
}

// MirrorPawnFromAuthoritative snaps every pawn-store component of
// entity back onto its authoritative twin, satisfying the pawnMirror
// contract Predictor.ProcessReplay depends on.
func (rm *ReplicaManager) MirrorPawnFromAuthoritative(entity replisync.EntityKey) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for key := range rm.entityComponents[entity] {
		pawnReplica, ok := rm.pawnStore[key]
		if !ok {
			continue
		}
		pawnReplica.Mirror(rm.components[key])
	}
}

// GetComponentByType looks up entity's authoritative component of
// concrete type R.
func GetComponentByType[R replisync.Replica](rm *ReplicaManager, entity replisync.EntityKey) (R, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	var zero R
	for key := range rm.entityComponents[entity] {
		if r, ok := rm.components[key].(R); ok {
			return r, true
		}
	}
	return zero, false
}

// GetPawnComponentByType looks up entity's pawn-store (predicted)
// component of concrete type R.
func GetPawnComponentByType[R replisync.Replica](rm *ReplicaManager, entity replisync.EntityKey) (R, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	var zero R
	for key := range rm.entityComponents[entity] {
		if r, ok := rm.pawnStore[key].(R); ok {
			return r, true
		}
	}
	return zero, false
}

// IsPawn reports whether entity is currently owned as a pawn.
func (rm *ReplicaManager) IsPawn(entity replisync.EntityKey) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	_, ok := rm.pawns[entity]
	return ok
}

// HasEntity reports whether entity is currently known to the manager.
func (rm *ReplicaManager) HasEntity(entity replisync.EntityKey) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	_, ok := rm.entities[entity]
	return ok
}
