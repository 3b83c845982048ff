package client

import "github.com/replisync/replisync"

// EventKind tags which fields of an Event are meaningful.
type EventKind uint8

const (
	EventConnection EventKind = iota
	EventDisconnection
	EventSpawnEntity
	EventDespawnEntity
	EventInsertComponent
	EventRemoveComponent
	EventOwnEntity
	EventDisownEntity
	EventNewCommand
	EventReplayCommand
	EventTick
)

func (k EventKind) String() string {
	switch k {
	case EventConnection:
		return "Connection"
	case EventDisconnection:
		return "Disconnection"
	case EventSpawnEntity:
		return "SpawnEntity"
	case EventDespawnEntity:
		return "DespawnEntity"
	case EventInsertComponent:
		return "InsertComponent"
	case EventRemoveComponent:
		return "RemoveComponent"
	case EventOwnEntity:
		return "OwnEntity"
	case EventDisownEntity:
		return "DisownEntity"
	case EventNewCommand:
		return "NewCommand"
	case EventReplayCommand:
		return "ReplayCommand"
	case EventTick:
		return "Tick"
	default:
		return "Unknown"
	}
}

// Event is the world-adapter-facing event sum spec §6 names for the
// client side. Exactly the fields relevant to Kind are populated.
type Event struct {
	Kind         EventKind
	EntityKey    replisync.EntityKey
	Kinds        []replisync.Kind // SpawnEntity: every component kind the entity arrived with
	ComponentKey replisync.ComponentKey
	Replica      replisync.Replica // NewCommand, ReplayCommand
}
