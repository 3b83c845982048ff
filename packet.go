package replisync

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ManagerCode tags which packet section follows: messages, entity
// actions, or (client->server only) the command stream. Three manager
// types per spec §9's resolution of the source's two-vs-three-manager
// ambiguity.
type ManagerCode uint8

const (
	ManagerMessages      ManagerCode = 1
	ManagerEntityActions ManagerCode = 2
	ManagerCommands      ManagerCode = 3
)

func (c ManagerCode) String() string {
	switch c {
	case ManagerMessages:
		return "messages"
	case ManagerEntityActions:
		return "entity-actions"
	case ManagerCommands:
		return "commands"
	default:
		return fmt.Sprintf("manager(%d)", uint8(c))
	}
}

// ActionCode tags one record within the Entity/Replica actions manager
// section.
type ActionCode uint8

const (
	ActionCreateEntity        ActionCode = 1
	ActionDeleteEntity        ActionCode = 2
	ActionAddComponent        ActionCode = 3
	ActionDeleteComponent     ActionCode = 4
	ActionUpdateComponent     ActionCode = 5
	ActionAssignPawnEntity    ActionCode = 6
	ActionUnassignPawnEntity  ActionCode = 7
)

func (c ActionCode) String() string {
	switch c {
	case ActionCreateEntity:
		return "CreateEntity"
	case ActionDeleteEntity:
		return "DeleteEntity"
	case ActionAddComponent:
		return "AddComponent"
	case ActionDeleteComponent:
		return "DeleteComponent"
	case ActionUpdateComponent:
		return "UpdateComponent"
	case ActionAssignPawnEntity:
		return "AssignPawnEntity"
	case ActionUnassignPawnEntity:
		return "UnassignPawnEntity"
	default:
		return fmt.Sprintf("action(%d)", uint8(c))
	}
}

// WriteManagerHeader writes a manager section's envelope: a 1-byte
// manager code, the section's tick, and a 1-byte record count (spec
// §4.E: "Ticks are prefixed once per manager section"; entity actions
// and commands are "a 1-byte count followed by that many records").
func WriteManagerHeader(w io.Writer, code ManagerCode, tick uint16, count int) error {
	if count > 0xFF {
		return fmt.Errorf("replisync: too many records in one manager section (%d > 255)", count)
	}
	if err := WriteUint8(w, uint8(code)); err != nil {
		return err
	}
	if err := WriteUint16(w, tick); err != nil {
		return err
	}
	return WriteUint8(w, uint8(count))
}

// ReadManagerHeader reads a manager section's envelope and checks that
// its manager code matches want, returning ErrUnknownManager otherwise
// so a caller can treat a mismatched section as a protocol violation.
func ReadManagerHeader(r io.Reader, want ManagerCode) (tick uint16, count uint8, err error) {
	codeByte, err := ReadUint8(r)
	if err != nil {
		return 0, 0, err
	}
	if ManagerCode(codeByte) != want {
		return 0, 0, fmt.Errorf("%w: expected %s section, got %s", ErrUnknownManager, want, ManagerCode(codeByte))
	}
	tick, err = ReadUint16(r)
	if err != nil {
		return 0, 0, err
	}
	count, err = ReadUint8(r)
	if err != nil {
		return 0, 0, err
	}
	return tick, count, nil
}

// --- wire primitives -------------------------------------------------
//
// All multi-byte integers are big-endian. The core never depends on a
// transport's own framing for these values; a manager section is
// always a self-contained sequence of these primitives.

func WriteUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func ReadUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func WriteUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func ReadUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteBytes writes a 1-byte-length-prefixed byte string (length must
// fit in a byte; diff masks and small payloads only).
func WriteBytes(w io.Writer, b []byte) error {
	if len(b) > 0xFF {
		return fmt.Errorf("replisync: byte string too long (%d > 255)", len(b))
	}
	if err := WriteUint8(w, uint8(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func ReadBytes(r io.Reader) ([]byte, error) {
	n, err := ReadUint8(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// --- entity action records -------------------------------------------

// ComponentInit is one (kind, component key, full body) triple attached
// to a CreateEntity record.
type ComponentInit struct {
	Kind         Kind
	ComponentKey ComponentKey
	Replica      Replica
}

// EntityAction is a single decoded record from the Entity/Replica
// actions manager section. Exactly one of the payload-shaped fields is
// meaningful, selected by Code.
type EntityAction struct {
	Code         ActionCode
	EntityKey    EntityKey
	ComponentKey ComponentKey
	Kind         Kind
	Components   []ComponentInit // CreateEntity
	Replica      Replica         // AddComponent (full), UpdateComponent (decoded into existing replica)
	Mask         *DiffMask       // UpdateComponent
}

// WriteCreateEntity encodes a CreateEntity record: entity key, component
// count, then each (kind, component key, full body) triple.
func WriteCreateEntity(w io.Writer, entityKey EntityKey, components []ComponentInit) error {
	if err := WriteUint8(w, ActionCreateEntity.byteVal()); err != nil {
		return err
	}
	if err := WriteUint16(w, uint16(entityKey)); err != nil {
		return err
	}
	if len(components) > 0xFF {
		return fmt.Errorf("replisync: too many components on one entity (%d > 255)", len(components))
	}
	if err := WriteUint8(w, uint8(len(components))); err != nil {
		return err
	}
	for _, c := range components {
		if err := WriteUint16(w, uint16(c.Kind)); err != nil {
			return err
		}
		if err := WriteUint16(w, uint16(c.ComponentKey)); err != nil {
			return err
		}
		if err := c.Replica.WriteFull(w); err != nil {
			return err
		}
	}
	return nil
}

// WriteDeleteEntity encodes a DeleteEntity record.
func WriteDeleteEntity(w io.Writer, entityKey EntityKey) error {
	if err := WriteUint8(w, ActionDeleteEntity.byteVal()); err != nil {
		return err
	}
	return WriteUint16(w, uint16(entityKey))
}

// WriteAddComponent encodes an AddComponent record.
func WriteAddComponent(w io.Writer, entityKey EntityKey, kind Kind, componentKey ComponentKey, body Replica) error {
	if err := WriteUint8(w, ActionAddComponent.byteVal()); err != nil {
		return err
	}
	if err := WriteUint16(w, uint16(entityKey)); err != nil {
		return err
	}
	if err := WriteUint16(w, uint16(kind)); err != nil {
		return err
	}
	if err := WriteUint16(w, uint16(componentKey)); err != nil {
		return err
	}
	return body.WriteFull(w)
}

// WriteDeleteComponent encodes a DeleteComponent record.
func WriteDeleteComponent(w io.Writer, componentKey ComponentKey) error {
	if err := WriteUint8(w, ActionDeleteComponent.byteVal()); err != nil {
		return err
	}
	return WriteUint16(w, uint16(componentKey))
}

// WriteUpdateComponent encodes an UpdateComponent record: component
// key, mask bytes, then the partial body gated by that mask.
func WriteUpdateComponent(w io.Writer, componentKey ComponentKey, mask *DiffMask, body Replica) error {
	if err := WriteUint8(w, ActionUpdateComponent.byteVal()); err != nil {
		return err
	}
	if err := WriteUint16(w, uint16(componentKey)); err != nil {
		return err
	}
	if _, err := w.Write(mask.Bytes()); err != nil {
		return err
	}
	return body.WritePartial(mask, w)
}

// WriteAssignPawnEntity encodes an AssignPawnEntity record.
func WriteAssignPawnEntity(w io.Writer, entityKey EntityKey) error {
	if err := WriteUint8(w, ActionAssignPawnEntity.byteVal()); err != nil {
		return err
	}
	return WriteUint16(w, uint16(entityKey))
}

// WriteUnassignPawnEntity encodes an UnassignPawnEntity record.
func WriteUnassignPawnEntity(w io.Writer, entityKey EntityKey) error {
	if err := WriteUint8(w, ActionUnassignPawnEntity.byteVal()); err != nil {
		return err
	}
	return WriteUint16(w, uint16(entityKey))
}

func (c ActionCode) byteVal() uint8 { return uint8(c) }

// ReadEntityAction decodes a single action record from r. kindMaskWidth
// resolves a kind id to its diff mask width in bytes, needed to read an
// UpdateComponent's mask before its body can be decoded;
// existingComponent resolves a component key to its live replica, since
// UpdateComponent merges into an existing instance rather than
// constructing a new one. Both callbacks are satisfied by the caller's
// local-key bookkeeping (client.ReplicaManager).
func ReadEntityAction(
	r io.Reader,
	manifest *Manifest,
	packetTick uint16,
	kindMaskWidth func(Kind) (uint8, bool),
	existingComponent func(ComponentKey) (Replica, bool),
) (EntityAction, error) {
	codeByte, err := ReadUint8(r)
	if err != nil {
		return EntityAction{}, err
	}
	code := ActionCode(codeByte)

	switch code {
	case ActionCreateEntity:
		entityKey, err := ReadUint16(r)
		if err != nil {
			return EntityAction{}, err
		}
		count, err := ReadUint8(r)
		if err != nil {
			return EntityAction{}, err
		}
		components := make([]ComponentInit, 0, count)
		for i := uint8(0); i < count; i++ {
			kind, err := ReadUint16(r)
			if err != nil {
				return EntityAction{}, err
			}
			compKey, err := ReadUint16(r)
			if err != nil {
				return EntityAction{}, err
			}
			replica, err := manifest.Create(Kind(kind), r)
			if err != nil {
				return EntityAction{}, err
			}
			components = append(components, ComponentInit{
				Kind:         Kind(kind),
				ComponentKey: ComponentKey(compKey),
				Replica:      replica,
			})
		}
		return EntityAction{Code: code, EntityKey: EntityKey(entityKey), Components: components}, nil

	case ActionDeleteEntity:
		entityKey, err := ReadUint16(r)
		if err != nil {
			return EntityAction{}, err
		}
		return EntityAction{Code: code, EntityKey: EntityKey(entityKey)}, nil

	case ActionAddComponent:
		entityKey, err := ReadUint16(r)
		if err != nil {
			return EntityAction{}, err
		}
		kind, err := ReadUint16(r)
		if err != nil {
			return EntityAction{}, err
		}
		compKey, err := ReadUint16(r)
		if err != nil {
			return EntityAction{}, err
		}
		replica, err := manifest.Create(Kind(kind), r)
		if err != nil {
			return EntityAction{}, err
		}
		return EntityAction{
			Code:         code,
			EntityKey:    EntityKey(entityKey),
			Kind:         Kind(kind),
			ComponentKey: ComponentKey(compKey),
			Replica:      replica,
		}, nil

	case ActionDeleteComponent:
		compKey, err := ReadUint16(r)
		if err != nil {
			return EntityAction{}, err
		}
		return EntityAction{Code: code, ComponentKey: ComponentKey(compKey)}, nil

	case ActionUpdateComponent:
		compKey, err := ReadUint16(r)
		if err != nil {
			return EntityAction{}, err
		}
		replica, ok := existingComponent(ComponentKey(compKey))
		if !ok {
			return EntityAction{}, fmt.Errorf("%w: update of unknown component %d", ErrUnknownAction, compKey)
		}
		width, ok := kindMaskWidth(replica.Kind())
		if !ok || width != replica.MaskBytes() {
			return EntityAction{}, ErrMaskLengthMismatch
		}
		maskBuf := make([]byte, width)
		if _, err := io.ReadFull(r, maskBuf); err != nil {
			return EntityAction{}, err
		}
		mask := ReadDiffMask(maskBuf, int(width))
		if err := replica.ReadPartial(mask, r, packetTick); err != nil {
			return EntityAction{}, err
		}
		return EntityAction{Code: code, ComponentKey: ComponentKey(compKey), Replica: replica, Mask: mask}, nil

	case ActionAssignPawnEntity:
		entityKey, err := ReadUint16(r)
		if err != nil {
			return EntityAction{}, err
		}
		return EntityAction{Code: code, EntityKey: EntityKey(entityKey)}, nil

	case ActionUnassignPawnEntity:
		entityKey, err := ReadUint16(r)
		if err != nil {
			return EntityAction{}, err
		}
		return EntityAction{Code: code, EntityKey: EntityKey(entityKey)}, nil

	default:
		return EntityAction{}, fmt.Errorf("%w: %d", ErrUnknownAction, codeByte)
	}
}
