package session

import "errors"

// Sentinel errors for the session package.
var (
	// ErrAlreadyConnecting indicates Connect/Reconnect was called while a
	// session was already in the process of connecting.
	ErrAlreadyConnecting = errors.New("session: already connecting")

	// ErrMissingServerInfo indicates Connect was called before both halves
	// of the two-phase connect (server info and session/stream key) were
	// staged.
	ErrMissingServerInfo = errors.New("session: missing server info or session key")

	// ErrFatalProtocol indicates the session was torn down due to a
	// WebSocket close, a heartbeat-ack timeout past the configured
	// threshold, or a decrypt failure rate past the configured threshold.
	ErrFatalProtocol = errors.New("session: fatal protocol error")

	// ErrNotLive indicates an operation requiring a live session was
	// attempted while none was active.
	ErrNotLive = errors.New("session: no live session")
)
