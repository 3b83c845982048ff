package replisync

import "io"

// CommandRecord is one decoded record from the Command stream manager
// section (client->server only, manager code 3): the pawn entity it
// targets, addressed by the connection's local wire key, and the
// command's full replica body. Per spec §9 a command shares the same
// Replica trait as any other replicated type; only the manager code
// distinguishes the stream.
type CommandRecord struct {
	EntityKey EntityKey
	Kind      Kind
	Command   Replica
}

// WriteCommand encodes one command record: entity key, kind, then the
// command's full body.
func WriteCommand(w io.Writer, entityKey EntityKey, kind Kind, cmd Replica) error {
	if err := WriteUint16(w, uint16(entityKey)); err != nil {
		return err
	}
	if err := WriteUint16(w, uint16(kind)); err != nil {
		return err
	}
	return cmd.WriteFull(w)
}

// ReadCommand decodes one command record from r.
func ReadCommand(r io.Reader, manifest *Manifest) (CommandRecord, error) {
	entityKey, err := ReadUint16(r)
	if err != nil {
		return CommandRecord{}, err
	}
	kind, err := ReadUint16(r)
	if err != nil {
		return CommandRecord{}, err
	}
	cmd, err := manifest.Create(Kind(kind), r)
	if err != nil {
		return CommandRecord{}, err
	}
	return CommandRecord{EntityKey: EntityKey(entityKey), Kind: Kind(kind), Command: cmd}, nil
}

// WriteCommandsSection frames a full Command stream manager section:
// header (code 3, tick, count) followed by that many records.
func WriteCommandsSection(w io.Writer, tick uint16, records []CommandRecord) error {
	if err := WriteManagerHeader(w, ManagerCommands, tick, len(records)); err != nil {
		return err
	}
	for _, rec := range records {
		if err := WriteCommand(w, rec.EntityKey, rec.Kind, rec.Command); err != nil {
			return err
		}
	}
	return nil
}

// ReadCommandsSection reads a Command stream manager section, including
// its header.
func ReadCommandsSection(r io.Reader, manifest *Manifest) (tick uint16, records []CommandRecord, err error) {
	tick, count, err := ReadManagerHeader(r, ManagerCommands)
	if err != nil {
		return 0, nil, err
	}
	records = make([]CommandRecord, 0, count)
	for i := uint8(0); i < count; i++ {
		rec, err := ReadCommand(r, manifest)
		if err != nil {
			return tick, records, err
		}
		records = append(records, rec)
	}
	return tick, records, nil
}
