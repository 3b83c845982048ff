package server

import "github.com/replisync/replisync"

// EventKind tags which fields of a ServerEvent are meaningful.
type EventKind uint8

const (
	EventConnection EventKind = iota
	EventDisconnection
	EventAuthorization
	EventMessage
	EventCommand
	EventTick
)

func (k EventKind) String() string {
	switch k {
	case EventConnection:
		return "Connection"
	case EventDisconnection:
		return "Disconnection"
	case EventAuthorization:
		return "Authorization"
	case EventMessage:
		return "Message"
	case EventCommand:
		return "Command"
	case EventTick:
		return "Tick"
	default:
		return "Unknown"
	}
}

// ServerEvent is the world-adapter-facing event sum spec §6 names:
// Connection | Disconnection | Authorization | Message | Command | Tick.
// Exactly the fields relevant to Kind are populated.
type ServerEvent struct {
	Kind       EventKind
	User       UserKey
	EntityKey  replisync.EntityKey
	Protocol   replisync.Protocol
	Message    replisync.Message
	Disconnect DisconnectReason
}

// DisconnectReason explains why a Disconnection event fired, for
// logging and metrics; not part of the wire protocol.
type DisconnectReason uint8

const (
	DisconnectUnspecified DisconnectReason = iota
	DisconnectTimeout
	DisconnectHandshakeReplaced
	DisconnectProtocolViolation
	DisconnectTransportError
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectTimeout:
		return "timeout"
	case DisconnectHandshakeReplaced:
		return "handshake-replaced"
	case DisconnectProtocolViolation:
		return "protocol-violation"
	case DisconnectTransportError:
		return "transport-error"
	default:
		return "unspecified"
	}
}

// AckSink is the per-packet ack/nack notification contract the
// transport calls into, consumed per spec §6. The core never assumes a
// particular transport; it only reacts to Ack/Nack by sequence number.
type AckSink interface {
	// Ack retires the retry record for seq: its diff-mask
	// contribution is now permanently applied and need not be resent.
	Ack(seq uint64)
	// Nack (or a timeout the transport detects) re-merges seq's
	// retry record's dirty bits back into the live masks so the next
	// tick's writer re-covers the lost mutations.
	Nack(seq uint64)
}
