package aead

import "errors"

// Sentinel errors for aead package operations, enabling classification via
// errors.Is(), following the teacher's av/errors.go convention.
var (
	// ErrDecrypt indicates AEAD tag verification failed; the caller must
	// drop the packet silently per the error-handling design.
	ErrDecrypt = errors.New("aead: decryption failed")

	// ErrHandshake indicates a malformed secret key or unsupported mode
	// was supplied during session setup.
	ErrHandshake = errors.New("aead: handshake validation failed")

	// ErrShortPacket indicates a packet shorter than the minimum
	// RTP-header + tag + counter length.
	ErrShortPacket = errors.New("aead: packet too short")

	// ErrNotKeyed indicates Seal or Open was called before a key was
	// installed.
	ErrNotKeyed = errors.New("aead: codec has no key installed")
)
