package server

import "errors"

// Errors a connection's packet processing can hit. Per spec §7 these are
// always promoted to a Disconnection of the offending connection.
var (
	ErrUnknownEntity    = errors.New("server: unknown entity")
	ErrUnknownComponent = errors.New("server: unknown component")
	ErrDuplicateKind    = errors.New("server: entity already owns a component of this kind")
	ErrNotConnected     = errors.New("server: connection is not in the Connected state")
	ErrHandshakeReplay  = errors.New("server: stale handshake timestamp")
)
