package gateway

import "errors"

// Sentinel errors for the voice gateway FSM, grouped per the teacher's
// av/errors.go convention.
var (
	// ErrHandshake indicates a missing or invalid field in Ready or
	// SessionDescription, an unsupported secret key size, an
	// unsupported AEAD mode, or a SessionDescription that arrives before
	// Ready. The session is stopped when this occurs.
	ErrHandshake = errors.New("gateway: handshake failed")

	// ErrUnexpectedOpcode names a message for an opcode the current state
	// does not expect. The FSM does not return it: unknown opcodes are
	// logged at debug and dropped, and a SessionDescription before Ready
	// is reported as ErrHandshake.
	ErrUnexpectedOpcode = errors.New("gateway: unexpected opcode for current state")

	// ErrMalformedEnvelope indicates the outer {op, d} JSON envelope
	// itself failed to parse.
	ErrMalformedEnvelope = errors.New("gateway: malformed message envelope")

	// ErrNotConnected indicates an outgoing send was attempted while the
	// underlying connection is not open.
	ErrNotConnected = errors.New("gateway: not connected")
)
