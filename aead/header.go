package aead

import (
	"encoding/binary"

	"github.com/pion/rtp"
)

// HeaderSize is the length in bytes of a bare RTP header with no CSRCs and
// no extension.
const HeaderSize = 12

// extHeaderSize is the length of the one-profile RTP extension header
// (profile id + length, 4 bytes) that the Discord voice wire format uses
// when the extension bit is set.
const extHeaderSize = 4

// RTPHeader is the subset of RTP header fields the codec needs to build
// the AAD and to hand structured fields back to callers on Open.
type RTPHeader struct {
	Marker      bool
	PayloadType uint8
	Sequence    uint16
	Timestamp   uint32
	SSRC        uint32
	// Extension, when non-nil, is the raw one-profile extension header
	// (profile id || length, 4 bytes) that follows the 12-byte header and
	// is folded into the AAD along with it. The core never needs to
	// interpret its contents.
	Extension []byte
}

// marshal writes the 12-byte RTP header into a fresh byte slice via
// pion/rtp's Header.Marshal, then, when an extension is present, sets the
// X bit and appends the raw 4-byte one-profile extension header that
// Discord voice traffic carries. pion/rtp's own extension encoding targets
// RFC 5285 one-byte/two-byte header profiles and doesn't model this raw
// profile+length-with-no-body layout, so the extension bytes are appended
// by hand rather than through pion/rtp's Extensions field.
func (h RTPHeader) marshal() []byte {
	base, err := (&rtp.Header{
		Version:        2,
		Marker:         h.Marker,
		PayloadType:    h.PayloadType,
		SequenceNumber: h.Sequence,
		Timestamp:      h.Timestamp,
		SSRC:           h.SSRC,
	}).Marshal()
	if err != nil {
		// pion/rtp.Header.Marshal only fails on CSRC overflow, which this
		// codec never constructs; a failure here indicates a pion/rtp
		// contract change.
		panic("aead: rtp header marshal: " + err.Error())
	}

	if len(h.Extension) == 0 {
		return base
	}

	buf := make([]byte, HeaderSize+extHeaderSize)
	copy(buf, base)
	buf[0] |= 0x10 // X bit
	copy(buf[HeaderSize:HeaderSize+extHeaderSize], h.Extension)
	return buf
}

// parseRTPHeader reads the RTP header from the front of packet and returns
// the structured fields together with the header's on-wire length
// (including the extension header, when the X bit is set). CSRC count in
// the low nibble of byte 0 is honored for header-length purposes even
// though Discord voice traffic never carries CSRCs.
func parseRTPHeader(packet []byte) (RTPHeader, int, error) {
	if len(packet) < HeaderSize {
		return RTPHeader{}, 0, ErrShortPacket
	}

	b0 := packet[0]
	csrcCount := int(b0 & 0x0F)
	hasExtension := b0&0x10 != 0

	b1 := packet[1]
	h := RTPHeader{
		Marker:      b1&0x80 != 0,
		PayloadType: b1 & 0x7F,
		Sequence:    binary.BigEndian.Uint16(packet[2:4]),
		Timestamp:   binary.BigEndian.Uint32(packet[4:8]),
		SSRC:        binary.BigEndian.Uint32(packet[8:12]),
	}

	offset := HeaderSize + csrcCount*4
	if hasExtension {
		if len(packet) < offset+extHeaderSize {
			return RTPHeader{}, 0, ErrShortPacket
		}
		h.Extension = append([]byte(nil), packet[offset:offset+extHeaderSize]...)
		offset += extHeaderSize
	}
	if len(packet) < offset {
		return RTPHeader{}, 0, ErrShortPacket
	}
	return h, offset, nil
}
