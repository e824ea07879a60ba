package transport

import "errors"

// Sentinel errors for transport package operations.
var (
	// ErrNotConnected indicates an operation was attempted before Connect.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrIPDiscoveryFailed indicates the retry budget was exhausted
	// without receiving a matching IP discovery response.
	ErrIPDiscoveryFailed = errors.New("transport: IP discovery failed")

	// ErrAlreadyConnected indicates Connect was called twice.
	ErrAlreadyConnected = errors.New("transport: already connected")
)
