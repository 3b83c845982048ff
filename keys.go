package replisync

// EntityID stably identifies an entity for the lifetime of the server
// process. It is never reused.
type EntityID uint64

// ComponentHandle is a globally unique handle to a single component
// instance, scoped to the server process. A component handle maps to
// exactly one owning entity and one replica.
type ComponentHandle uint64

// EntityKey is the 16-bit connection-local identifier a server assigns
// to an entity the first time it scopes into that connection. Reused
// only after the connection has acked the corresponding DeleteEntity.
type EntityKey uint16

// ComponentKey is the 16-bit connection-local identifier a server
// assigns to a component the first time it is added to a scoped-in
// entity. Reused only after the connection has acked the corresponding
// DeleteComponent.
type ComponentKey uint16

// Kind is the stable 16-bit identifier for a replica type, chosen by
// the caller and passed to Manifest.Register.
type Kind uint16

// HistorySize is the number of ticks addressable by a SequenceBuffer or
// a per-pawn command history. Ticks outside [head-HistorySize+1, head]
// are not addressable.
const HistorySize = 64
