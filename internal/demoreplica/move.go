package demoreplica

import (
	"io"

	"github.com/replisync/replisync"
)

// Move is an ordinary replica used as a command: a per-tick input of
// DX, DY. Nothing distinguishes a command replica from any other at the
// type level; only the ManagerCode a packet carries it under does.
type Move struct {
	DX, DY  int32
	mutator replisync.PropertyMutator
}

func NewMove(dx, dy int32) *Move {
	return &Move{DX: dx, DY: dy, mutator: replisync.NoopMutator}
}

func (m *Move) Kind() replisync.Kind { return KindMove }

func (m *Move) MaskBytes() uint8 { return 1 }

func (m *Move) SetDX(v int32) {
	m.DX = v
	m.mutator.Mutate(0)
}

func (m *Move) SetDY(v int32) {
	m.DY = v
	m.mutator.Mutate(1)
}

func (m *Move) WriteFull(w io.Writer) error {
	if err := replisync.WriteUint32(w, uint32(m.DX)); err != nil {
		return err
	}
	return replisync.WriteUint32(w, uint32(m.DY))
}

func (m *Move) WritePartial(mask *replisync.DiffMask, w io.Writer) error {
	if mask.IsSet(0) {
		if err := replisync.WriteUint32(w, uint32(m.DX)); err != nil {
			return err
		}
	}
	if mask.IsSet(1) {
		if err := replisync.WriteUint32(w, uint32(m.DY)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Move) ReadFull(r io.Reader) error {
	dx, err := replisync.ReadUint32(r)
	if err != nil {
		return err
	}
	dy, err := replisync.ReadUint32(r)
	if err != nil {
		return err
	}
	m.DX = int32(dx)
	m.DY = int32(dy)
	return nil
}

func (m *Move) ReadPartial(mask *replisync.DiffMask, r io.Reader, _ uint16) error {
	if mask.IsSet(0) {
		dx, err := replisync.ReadUint32(r)
		if err != nil {
			return err
		}
		m.DX = int32(dx)
	}
	if mask.IsSet(1) {
		dy, err := replisync.ReadUint32(r)
		if err != nil {
			return err
		}
		m.DY = int32(dy)
	}
	return nil
}

func (m *Move) Equals(other replisync.Replica) bool {
	o, ok := other.(*Move)
	return ok && o.DX == m.DX && o.DY == m.DY
}

func (m *Move) Mirror(other replisync.Replica) {
	o := other.(*Move)
	m.DX = o.DX
	m.DY = o.DY
}

func (m *Move) Clone() replisync.Replica {
	return &Move{DX: m.DX, DY: m.DY, mutator: replisync.NoopMutator}
}

func (m *Move) AttachMutator(mut replisync.PropertyMutator) {
	m.mutator = mut
}

// BuildMove is the replisync.ReplicaBuilder for KindMove.
func BuildMove(r io.Reader) (replisync.Replica, error) {
	m := NewMove(0, 0)
	if err := m.ReadFull(r); err != nil {
		return nil, err
	}
	return m, nil
}

// Apply advances a Position by one tick of this Move, the way a
// deterministic client/server simulation step would.
func Apply(pos *Position, mv *Move) {
	pos.SetX(pos.X + mv.DX)
	pos.SetY(pos.Y + mv.DY)
}
