package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	discoveryPacketLen    = 74
	discoveryTypeRequest  = uint16(0x0001)
	discoveryTypeResponse = uint16(0x0002)
	discoveryLengthField  = uint16(0x0046)
	discoveryMaxRetries   = 100
	discoveryRetryWait    = 50 * time.Millisecond

	ipFieldOffset   = 8
	ipFieldLen      = 64
	portFieldOffset = 72
)

// buildDiscoveryRequest builds the 74-byte IP discovery request:
// 0x0001 | 0x0046 | ssrc[4] | zero[66].
func buildDiscoveryRequest(ssrc uint32) []byte {
	buf := make([]byte, discoveryPacketLen)
	binary.BigEndian.PutUint16(buf[0:2], discoveryTypeRequest)
	binary.BigEndian.PutUint16(buf[2:4], discoveryLengthField)
	binary.BigEndian.PutUint32(buf[4:8], ssrc)
	return buf
}

// parseDiscoveryResponse extracts the public IP and port from a 74-byte
// response whose first two bytes are 0x0002. The IP is a NUL-terminated
// ASCII string at offset 8; the port is big-endian at offset 72.
func parseDiscoveryResponse(buf []byte) (ip string, port uint16, ok bool) {
	if len(buf) < discoveryPacketLen {
		return "", 0, false
	}
	if binary.BigEndian.Uint16(buf[0:2]) != discoveryTypeResponse {
		return "", 0, false
	}

	ipBytes := buf[ipFieldOffset : ipFieldOffset+ipFieldLen]
	if nul := bytes.IndexByte(ipBytes, 0); nul >= 0 {
		ipBytes = ipBytes[:nul]
	}

	port = binary.BigEndian.Uint16(buf[portFieldOffset : portFieldOffset+2])
	return string(ipBytes), port, true
}

// IPDiscovery performs the STUN-like exchange described in the AEAD
// transport design: sends the request, waits for a response whose type
// field matches, and retries up to discoveryMaxRetries times. Any response
// packet that does not match the type field is ignored and still counts
// toward the retry budget.
func (t *Transport) IPDiscovery(ssrc uint32) (string, uint16, error) {
	if !t.running.Load() {
		return "", 0, ErrNotConnected
	}

	request := buildDiscoveryRequest(ssrc)

	respCh := make(chan []byte, discoveryMaxRetries)
	var prevHandler OnPacket
	prevHandler = t.SetHandler(func(payload []byte) {
		select {
		case respCh <- payload:
		default:
		}
		if prevHandler != nil {
			prevHandler(payload)
		}
	})
	defer t.SetHandler(prevHandler)

	for attempt := 0; attempt < discoveryMaxRetries; attempt++ {
		if err := t.Send(request); err != nil {
			return "", 0, err
		}

		select {
		case payload := <-respCh:
			if ip, port, ok := parseDiscoveryResponse(payload); ok {
				logrus.WithFields(logrus.Fields{
					"function": "Transport.IPDiscovery",
					"ip":       ip,
					"port":     port,
					"attempt":  attempt,
				}).Info("IP discovery succeeded")
				return ip, port, nil
			}
			// Non-matching packet; counts toward the retry budget.
		case <-time.After(discoveryRetryWait):
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Transport.IPDiscovery",
		"ssrc":     ssrc,
	}).Error("IP discovery exhausted retry budget")
	return "", 0, fmt.Errorf("%w after %d attempts", ErrIPDiscoveryFailed, discoveryMaxRetries)
}
