package aead

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() SecretKey {
	var k SecretKey
	for i := range k {
		k[i] = byte(i + 1)
	}
	return k
}

func TestCodecSealOpenRoundTrip(t *testing.T) {
	codec := NewCodec()
	require.NoError(t, codec.InstallKey(testKey()))

	header := RTPHeader{
		PayloadType: 120,
		Sequence:    42,
		Timestamp:   48000,
		SSRC:        0xAABBCCDD,
	}
	plaintext := []byte("opus payload bytes")

	packet, err := codec.Seal(header, plaintext, 7)
	require.NoError(t, err)
	assert.Equal(t, HeaderSize+len(plaintext)+TagSize+CounterSize, len(packet))

	gotHeader, gotPlaintext, err := codec.Open(packet)
	require.NoError(t, err)
	assert.Equal(t, header, gotHeader)
	assert.Equal(t, plaintext, gotPlaintext)
}

func TestCodecOpenRejectsMutatedPacket(t *testing.T) {
	codec := NewCodec()
	require.NoError(t, codec.InstallKey(testKey()))

	header := RTPHeader{PayloadType: 120, Sequence: 1, Timestamp: 480, SSRC: 1}
	packet, err := codec.Seal(header, []byte("hello"), 1)
	require.NoError(t, err)

	for i := range packet {
		mutated := bytes.Clone(packet)
		mutated[i] ^= 0xFF
		// Flipping byte 0 sets the X bit and a CSRC count of 15, so the
		// header claims more bytes than the packet holds and parsing fails
		// before any decrypt is attempted.
		expected := ErrDecrypt
		if i == 0 {
			expected = ErrShortPacket
		}
		_, _, err := codec.Open(mutated)
		assert.ErrorIs(t, err, expected, "byte %d mutation should fail to open", i)
	}
}

func TestCodecSequentialNonceCountersDiffer(t *testing.T) {
	codec := NewCodec()
	require.NoError(t, codec.InstallKey(testKey()))

	header := RTPHeader{PayloadType: 120, SSRC: 1}
	var packets [][]byte
	for i := uint32(0); i < 5; i++ {
		header.Sequence = uint16(i)
		header.Timestamp = i * 480
		p, err := codec.Seal(header, []byte{byte(i)}, i)
		require.NoError(t, err)
		packets = append(packets, p)
	}

	for i := 1; i < len(packets); i++ {
		prevCounter := packets[i-1][len(packets[i-1])-CounterSize:]
		curCounter := packets[i][len(packets[i])-CounterSize:]
		assert.NotEqual(t, prevCounter, curCounter)
	}
}

func TestCodecRequiresKeyBeforeUse(t *testing.T) {
	codec := NewCodec()
	_, err := codec.Seal(RTPHeader{}, []byte("x"), 0)
	assert.ErrorIs(t, err, ErrNotKeyed)

	_, _, err = codec.Open(make([]byte, 64))
	assert.True(t, errors.Is(err, ErrNotKeyed))
}

func TestHeaderMarshalParseRoundTrip(t *testing.T) {
	header := RTPHeader{
		Marker:      true,
		PayloadType: 101,
		Sequence:    0xBEEF,
		Timestamp:   0xDEADBEEF,
		SSRC:        0xCAFEF00D,
	}
	buf := header.marshal()
	assert.Equal(t, HeaderSize, len(buf))

	parsed, n, err := parseRTPHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, HeaderSize, n)
	assert.Equal(t, header, parsed)
}

func TestHeaderMarshalParseWithExtension(t *testing.T) {
	header := RTPHeader{
		PayloadType: 101,
		Sequence:    1,
		Timestamp:   90000,
		SSRC:        1,
		Extension:   []byte{0xBE, 0xDE, 0x00, 0x01},
	}
	buf := header.marshal()
	assert.Equal(t, HeaderSize+4, len(buf))

	parsed, n, err := parseRTPHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, HeaderSize+4, n)
	assert.Equal(t, header.Extension, parsed.Extension)
}

func TestSecretKeyZeroAndRedaction(t *testing.T) {
	key := testKey()
	assert.Equal(t, "aead.SecretKey(redacted)", key.String())
	assert.Equal(t, "aead.SecretKey(redacted)", key.GoString())

	key.Zero()
	var zero SecretKey
	assert.Equal(t, zero, key)
}

func TestNewSecretKeyFromBytesValidatesLength(t *testing.T) {
	_, err := NewSecretKeyFromBytes(make([]byte, 16))
	assert.ErrorIs(t, err, ErrHandshake)

	key, err := NewSecretKeyFromBytes(make([]byte, KeySize))
	require.NoError(t, err)
	assert.Equal(t, SecretKey{}, key)
}
