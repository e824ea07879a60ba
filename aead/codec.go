package aead

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"
)

// TagSize is the AEAD authentication tag length in bytes.
const TagSize = chacha20poly1305.Overhead // 16

// CounterSize is the length in bytes of the unencrypted nonce counter
// appended to every sealed packet.
const CounterSize = 4

// Codec seals and opens RTP packets using aead_xchacha20_poly1305_rtpsize:
// a 24-byte XChaCha20-Poly1305 nonce whose first 4 bytes are a 32-bit
// little-endian counter and whose remaining 20 bytes are zero. The counter
// is carried unencrypted as the last 4 bytes of the wire packet.
//
// Grounded on the teacher's crypto.Encrypt/Decrypt pair: a keyed struct
// guarding access with a mutex, explicit length validation before calling
// into the cipher, and sentinel errors distinguishing "not keyed yet" from
// "decryption failed".
type Codec struct {
	mu  sync.RWMutex
	aed cipher.AEAD
}

// NewCodec constructs an unkeyed codec. Call InstallKey once the
// SessionDescription payload arrives.
func NewCodec() *Codec {
	return &Codec{}
}

// InstallKey keys the codec for the rest of the session. It is called
// exactly once, from the session orchestrator's SessionDescription
// callback, which the gateway FSM invokes.
func (c *Codec) InstallKey(key SecretKey) error {
	aed, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Codec.InstallKey",
			"error":    err.Error(),
		}).Error("Failed to initialize AEAD cipher")
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	c.mu.Lock()
	c.aed = aed
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Codec.InstallKey",
	}).Info("AEAD codec keyed for session")
	return nil
}

// Keyed reports whether InstallKey has succeeded.
func (c *Codec) Keyed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.aed != nil
}

// Reset drops the installed cipher, returning the codec to its unkeyed
// state. Called at session teardown; any Seal/Open call racing with or
// following Reset observes ErrNotKeyed rather than operating under a
// cipher belonging to a torn-down session.
func (c *Codec) Reset() {
	c.mu.Lock()
	c.aed = nil
	c.mu.Unlock()
}

func nonceFromCounter(counter uint32) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	binary.LittleEndian.PutUint32(nonce[:4], counter)
	return nonce
}

// Seal builds the RTP header, encrypts plaintext under the counter-derived
// nonce with the header (and extension, if present) as AAD, and returns
// header || ciphertext || tag || counter(4 LE). len(output) == len(header)
// + len(plaintext) + TagSize + CounterSize.
func (c *Codec) Seal(header RTPHeader, plaintext []byte, counter uint32) ([]byte, error) {
	c.mu.RLock()
	aed := c.aed
	c.mu.RUnlock()
	if aed == nil {
		return nil, ErrNotKeyed
	}

	headerBytes := header.marshal()
	nonce := nonceFromCounter(counter)

	sealed := aed.Seal(nil, nonce, plaintext, headerBytes)

	out := make([]byte, 0, len(headerBytes)+len(sealed)+CounterSize)
	out = append(out, headerBytes...)
	out = append(out, sealed...)
	counterBytes := make([]byte, CounterSize)
	binary.LittleEndian.PutUint32(counterBytes, counter)
	out = append(out, counterBytes...)

	return out, nil
}

// Open parses the RTP header from packet, recovers the trailing counter,
// and verifies/decrypts the ciphertext. On tag mismatch it returns
// ErrDecrypt; callers must drop the packet silently rather than propagate
// the error to the host.
func (c *Codec) Open(packet []byte) (RTPHeader, []byte, error) {
	c.mu.RLock()
	aed := c.aed
	c.mu.RUnlock()
	if aed == nil {
		return RTPHeader{}, nil, ErrNotKeyed
	}

	header, headerLen, err := parseRTPHeader(packet)
	if err != nil {
		return RTPHeader{}, nil, err
	}

	if len(packet) < headerLen+TagSize+CounterSize {
		return RTPHeader{}, nil, ErrShortPacket
	}

	counterOffset := len(packet) - CounterSize
	counter := binary.LittleEndian.Uint32(packet[counterOffset:])
	nonce := nonceFromCounter(counter)

	headerBytes := packet[:headerLen]
	sealed := packet[headerLen:counterOffset]

	plaintext, err := aed.Open(nil, nonce, sealed, headerBytes)
	if err != nil {
		return RTPHeader{}, nil, ErrDecrypt
	}

	return header, plaintext, nil
}
