package replisync

import "io"

// PropertyMutator is the non-owning handle a replica's property setters
// notify when a field changes. Replicas never hold an owning reference
// to whatever tracks dirty state on their behalf (a server connection's
// per-component diff mask, or nothing at all on a freshly constructed
// client-side replica) — only this thin handle, so attaching a mutator
// can never create a reference cycle between the replica and whatever
// owns the mutator table.
type PropertyMutator interface {
	// Mutate is called with the property index that changed.
	Mutate(propertyIndex int)
}

// noopMutator discards all mutations; it is installed on replicas that
// have not yet been attached to a live mutator table (freshly decoded
// client replicas, or server replicas before any connection has scoped
// them in).
type noopMutator struct{}

func (noopMutator) Mutate(int) {}

// NoopMutator is shared by every replica that has no attached mutator.
var NoopMutator PropertyMutator = noopMutator{}

// Replica is the capability set every wire-synchronized component or
// message must implement. Implementations are normally produced by
// cmd/replicagen from an annotated struct; see internal/demoreplica
// for fixture types implementing every method.
type Replica interface {
	// Kind returns the stable 16-bit type identifier.
	Kind() Kind

	// MaskBytes returns the width, in bytes, of this replica's diff
	// mask.
	MaskBytes() uint8

	// WriteFull writes every property to w, ignoring the diff mask.
	WriteFull(w io.Writer) error

	// WritePartial writes only the properties marked dirty in mask.
	WritePartial(mask *DiffMask, w io.Writer) error

	// ReadFull overwrites every property of the receiver from r.
	ReadFull(r io.Reader) error

	// ReadPartial merges the properties marked dirty in mask from r
	// into the receiver, leaving every other property untouched.
	// packetTick identifies the packet this partial read arrived in,
	// so pawn-aware callers (client.ReplicaManager) can correlate it
	// with a rollback point.
	ReadPartial(mask *DiffMask, r io.Reader, packetTick uint16) error

	// Equals reports structural equality over properties only.
	Equals(other Replica) bool

	// Mirror performs a field-wise copy from other into the receiver.
	// Used to snap a pawn's shadow copy back onto its authoritative
	// twin before replaying predicted commands.
	Mirror(other Replica)

	// Clone returns an independent copy with the same property values
	// and no attached mutator (NoopMutator).
	Clone() Replica

	// AttachMutator wires every property's change setter to notify m
	// with that property's index.
	AttachMutator(m PropertyMutator)
}

// ReplicaBuilder constructs a zero-value Replica of one kind, then
// populates it by reading its full body from r. Manifest dispatches to
// one of these per registered kind.
type ReplicaBuilder func(r io.Reader) (Replica, error)
