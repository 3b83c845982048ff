// Package demoreplica holds hand-written replisync.Replica
// implementations, standing in for what cmd/replicagen would emit from
// annotated structs. Tests across the root, server, and client packages
// import these instead of each rolling their own fixture.
package demoreplica

import (
	"io"

	"github.com/replisync/replisync"
)

const (
	KindPosition replisync.Kind = 1
	KindHealth   replisync.Kind = 2
	KindMove     replisync.Kind = 3
)

// Position is a two-property replica: X and Y, each a big-endian int32
// on the wire (see replisync.WriteUint32). Property index 0 is X, index
// 1 is Y.
type Position struct {
	X, Y    int32
	mutator replisync.PropertyMutator
}

// NewPosition returns a Position with no attached mutator.
func NewPosition(x, y int32) *Position {
	return &Position{X: x, Y: y, mutator: replisync.NoopMutator}
}

func (p *Position) Kind() replisync.Kind { return KindPosition }

func (p *Position) MaskBytes() uint8 { return 1 }

// SetX assigns X and notifies the attached mutator of property 0.
func (p *Position) SetX(v int32) {
	p.X = v
	p.mutator.Mutate(0)
}

// SetY assigns Y and notifies the attached mutator of property 1.
func (p *Position) SetY(v int32) {
	p.Y = v
	p.mutator.Mutate(1)
}

func (p *Position) WriteFull(w io.Writer) error {
	if err := replisync.WriteUint32(w, uint32(p.X)); err != nil {
		return err
	}
	return replisync.WriteUint32(w, uint32(p.Y))
}

func (p *Position) WritePartial(mask *replisync.DiffMask, w io.Writer) error {
	if mask.IsSet(0) {
		if err := replisync.WriteUint32(w, uint32(p.X)); err != nil {
			return err
		}
	}
	if mask.IsSet(1) {
		if err := replisync.WriteUint32(w, uint32(p.Y)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Position) ReadFull(r io.Reader) error {
	x, err := replisync.ReadUint32(r)
	if err != nil {
		return err
	}
	y, err := replisync.ReadUint32(r)
	if err != nil {
		return err
	}
	p.X = int32(x)
	p.Y = int32(y)
	return nil
}

// ReadPartial merges whichever of X, Y are marked dirty in mask. tick is
// unused by Position: it has nothing tick-sensitive to correlate.
func (p *Position) ReadPartial(mask *replisync.DiffMask, r io.Reader, _ uint16) error {
	if mask.IsSet(0) {
		x, err := replisync.ReadUint32(r)
		if err != nil {
			return err
		}
		p.X = int32(x)
	}
	if mask.IsSet(1) {
		y, err := replisync.ReadUint32(r)
		if err != nil {
			return err
		}
		p.Y = int32(y)
	}
	return nil
}

func (p *Position) Equals(other replisync.Replica) bool {
	o, ok := other.(*Position)
	return ok && o.X == p.X && o.Y == p.Y
}

// Mirror copies fields directly without routing through the mutator: a
// pawn's shadow copy is snapped back onto its authoritative twin before a
// replay, and that snap must not itself look like a local prediction.
func (p *Position) Mirror(other replisync.Replica) {
	o := other.(*Position)
	p.X = o.X
	p.Y = o.Y
}

func (p *Position) Clone() replisync.Replica {
	return &Position{X: p.X, Y: p.Y, mutator: replisync.NoopMutator}
}

func (p *Position) AttachMutator(m replisync.PropertyMutator) {
	p.mutator = m
}

// BuildPosition is the replisync.ReplicaBuilder for KindPosition.
func BuildPosition(r io.Reader) (replisync.Replica, error) {
	p := NewPosition(0, 0)
	if err := p.ReadFull(r); err != nil {
		return nil, err
	}
	return p, nil
}
