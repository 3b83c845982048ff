package replisync

import "errors"

// Protocol violations. A core that hits one of these must drop the
// offending connection and emit a single Disconnection event; see
// spec §7.
var (
	ErrUnknownKind       = errors.New("replisync: unknown replica kind")
	ErrUnknownAction     = errors.New("replisync: unknown action code")
	ErrUnknownManager    = errors.New("replisync: unknown manager code")
	ErrMaskLengthMismatch = errors.New("replisync: diff mask length does not match replica kind")
	ErrBufferTooShort    = errors.New("replisync: buffer too short to decode")
	ErrInvalidEventFormat = errors.New("replisync: invalid message payload format")
)
