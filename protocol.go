package replisync

import (
	"reflect"
	"sync"
)

// Protocol is a thin, type-erased view over one concrete Replica value.
// It is the sum type user code declares over its whole set of
// replicated component/message types: manager code that moves values
// around (the server store, the pawn store, packet framing) only ever
// needs this view; code that actually inspects or mutates a field
// downcasts to the concrete type via CastRef.
type Protocol struct {
	kind  Kind
	inner Replica
}

// NewProtocol wraps a concrete replica.
func NewProtocol(r Replica) Protocol {
	return Protocol{kind: r.Kind(), inner: r}
}

// Kind returns the wrapped replica's stable type id.
func (p Protocol) Kind() Kind { return p.kind }

// Inner returns the type-erased replica, for code that only needs the
// Replica capability set (encoding, mirroring, equality).
func (p Protocol) Inner() Replica { return p.inner }

// Clone deep-clones the wrapped replica.
func (p Protocol) Clone() Protocol {
	return Protocol{kind: p.kind, inner: p.inner.Clone()}
}

// IsZero reports whether the Protocol wraps nothing.
func (p Protocol) IsZero() bool { return p.inner == nil }

// CastRef attempts a typed downcast to R. Ok is false if the wrapped
// replica is not of that concrete type (a kind mismatch, which should
// never happen for a value built from a Manifest registered with the
// matching R, but callers such as tests that build Protocols by hand
// can hit it).
func CastRef[R Replica](p Protocol) (R, bool) {
	r, ok := p.inner.(R)
	return r, ok
}

// Inserter is implemented by a world adapter that re-attaches a
// replica's fields onto some other entity representation (a host ECS).
// Consumed externally; the core never implements it.
type Inserter interface {
	Insert(entity EntityID, r Replica)
}

// ExtractAndInsert dispatches to inserter over the wrapped replica's
// concrete type, without the caller needing to know what that type is.
func (p Protocol) ExtractAndInsert(entity EntityID, inserter Inserter) {
	inserter.Insert(entity, p.inner)
}

// --- static kind lookup ----------------------------------------------
//
// kind_of<R>() in the spec is a compile-time association in the source
// language; Go has no const generics, so the same association is
// built once at registration time (alongside the Manifest) and looked
// up by reflected static type thereafter. RegisterKind and KindOf are
// typically called together with Manifest.Register for each
// user-declared replica type.

var kindByType = struct {
	mu sync.RWMutex
	m  map[reflect.Type]Kind
}{m: make(map[reflect.Type]Kind)}

// RegisterKind associates R's static type with kind, so that KindOf[R]
// can later recover it without an instance in hand.
func RegisterKind[R Replica](kind Kind) {
	var zero R
	t := reflect.TypeOf(zero)
	kindByType.mu.Lock()
	kindByType.m[t] = kind
	kindByType.mu.Unlock()
}

// KindOf returns the kind registered for R via RegisterKind.
func KindOf[R Replica]() (Kind, bool) {
	var zero R
	t := reflect.TypeOf(zero)
	kindByType.mu.RLock()
	kind, ok := kindByType.m[t]
	kindByType.mu.RUnlock()
	return kind, ok
}
