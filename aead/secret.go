// Package aead implements the AEAD packet codec: RTP header build/parse,
// and XChaCha20-Poly1305 seal/open with a 32-bit counter nonce expanded to
// 24 bytes. It is grounded on the teacher codebase's crypto package (the
// fixed-size Nonce type, sentinel-error validation, constructor style) but
// targets the wire-mandated primitive directly instead of NaCl secretbox.
package aead

import "fmt"

// KeySize is the length in bytes of the Discord voice session secret key.
const KeySize = 32

// SecretKey is the 32-byte session key delivered in SessionDescription.
// It must never be logged; String/GoString/Format all redact the contents,
// and Zero wipes the backing array at teardown.
type SecretKey [KeySize]byte

// String implements fmt.Stringer with a redacted representation so that
// accidental logging (via %v, %s, or println) never leaks key material.
func (k SecretKey) String() string {
	return "aead.SecretKey(redacted)"
}

// GoString implements fmt.GoStringer for the same reason as String.
func (k SecretKey) GoString() string {
	return "aead.SecretKey(redacted)"
}

// Format implements fmt.Formatter so that every verb, including %x and %v,
// is redacted rather than falling back to the default array formatting.
func (k SecretKey) Format(f fmt.State, verb rune) {
	_, _ = f.Write([]byte("aead.SecretKey(redacted)"))
}

// Zero overwrites the key material in place. Callers should not retain
// copies of a SecretKey beyond the point they hand it to Codec.InstallKey; Go's
// value semantics mean Zero only protects this specific instance.
func (k *SecretKey) Zero() {
	for i := range k {
		k[i] = 0
	}
}

// NewSecretKeyFromBytes validates and copies a wire-delivered key.
func NewSecretKeyFromBytes(b []byte) (SecretKey, error) {
	var k SecretKey
	if len(b) != KeySize {
		return k, fmt.Errorf("%w: got %d bytes, want %d", ErrHandshake, len(b), KeySize)
	}
	copy(k[:], b)
	return k, nil
}
