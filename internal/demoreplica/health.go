package demoreplica

import (
	"io"

	"github.com/replisync/replisync"
)

// Health is a single-property replica: HP. Exists mainly to exercise a
// mask width that isn't a whole byte boundary's worth of properties in
// combination with Position in store/scope tests.
type Health struct {
	HP      int32
	mutator replisync.PropertyMutator
}

func NewHealth(hp int32) *Health {
	return &Health{HP: hp, mutator: replisync.NoopMutator}
}

func (h *Health) Kind() replisync.Kind { return KindHealth }

func (h *Health) MaskBytes() uint8 { return 1 }

func (h *Health) SetHP(v int32) {
	h.HP = v
	h.mutator.Mutate(0)
}

func (h *Health) WriteFull(w io.Writer) error {
	return replisync.WriteUint32(w, uint32(h.HP))
}

func (h *Health) WritePartial(mask *replisync.DiffMask, w io.Writer) error {
	if mask.IsSet(0) {
		return replisync.WriteUint32(w, uint32(h.HP))
	}
	return nil
}

func (h *Health) ReadFull(r io.Reader) error {
	hp, err := replisync.ReadUint32(r)
	if err != nil {
		return err
	}
	h.HP = int32(hp)
	return nil
}

func (h *Health) ReadPartial(mask *replisync.DiffMask, r io.Reader, _ uint16) error {
	if mask.IsSet(0) {
		hp, err := replisync.ReadUint32(r)
		if err != nil {
			return err
		}
		h.HP = int32(hp)
	}
	return nil
}

func (h *Health) Equals(other replisync.Replica) bool {
	o, ok := other.(*Health)
	return ok && o.HP == h.HP
}

func (h *Health) Mirror(other replisync.Replica) {
	h.HP = other.(*Health).HP
}

func (h *Health) Clone() replisync.Replica {
	return &Health{HP: h.HP, mutator: replisync.NoopMutator}
}

func (h *Health) AttachMutator(m replisync.PropertyMutator) {
	h.mutator = m
}

// BuildHealth is the replisync.ReplicaBuilder for KindHealth.
func BuildHealth(r io.Reader) (replisync.Replica, error) {
	h := NewHealth(0)
	if err := h.ReadFull(r); err != nil {
		return nil, err
	}
	return h, nil
}
