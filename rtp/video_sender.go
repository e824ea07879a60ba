package rtp

import "github.com/nyxchat/voicecore/aead"

// VideoSender packetizes Annex-B access units as RTP, fragmenting any NAL
// larger than the MTU with FU-A (RFC 6184 section 5.8). Like AudioSender,
// it assumes a single-writer caller and keeps no internal lock.
type VideoSender struct {
	codec *aead.Codec
	ssrc  uint32
	send  func([]byte) error

	sequence uint16
	counter  uint32
}

// NewVideoSender constructs a sender bound to ssrc.
func NewVideoSender(codec *aead.Codec, ssrc uint32, send func([]byte) error) *VideoSender {
	return &VideoSender{codec: codec, ssrc: ssrc, send: send}
}

// SendAccessUnit splits annexB into NAL units and emits one RTP packet per
// NAL (or a run of FU-A fragments for NALs over the MTU), setting the
// marker bit on the last packet of the last NAL.
func (s *VideoSender) SendAccessUnit(annexB []byte, timestamp uint32) error {
	nals := splitAnnexB(annexB)
	for i, nal := range nals {
		if len(nal) == 0 {
			continue
		}
		isLastNAL := i == len(nals)-1
		if len(nal) <= videoMTU {
			if err := s.sealAndSend(nal, timestamp, isLastNAL); err != nil {
				return err
			}
			continue
		}
		if err := s.sendFragmented(nal, timestamp, isLastNAL); err != nil {
			return err
		}
	}
	return nil
}

func (s *VideoSender) sendFragmented(nal []byte, timestamp uint32, isLastNAL bool) error {
	nalHeader := nal[0]
	fuIndicator := (nalHeader & 0xE0) | nalTypeFUA
	payload := nal[1:]

	for offset := 0; offset < len(payload); offset += fuPayloadMax {
		end := offset + fuPayloadMax
		if end > len(payload) {
			end = len(payload)
		}
		isStart := offset == 0
		isEnd := end == len(payload)

		fuHeader := nalHeader & 0x1F
		if isStart {
			fuHeader |= 0x80
		}
		if isEnd {
			fuHeader |= 0x40
		}

		buf := make([]byte, 0, 2+(end-offset))
		buf = append(buf, fuIndicator, fuHeader)
		buf = append(buf, payload[offset:end]...)

		marker := isLastNAL && isEnd
		if err := s.sealAndSend(buf, timestamp, marker); err != nil {
			return err
		}
	}
	return nil
}

func (s *VideoSender) sealAndSend(payload []byte, timestamp uint32, marker bool) error {
	s.sequence++
	s.counter++

	header := aead.RTPHeader{
		Marker:      marker,
		PayloadType: VideoPayloadType,
		Sequence:    s.sequence,
		Timestamp:   timestamp,
		SSRC:        s.ssrc,
	}

	packet, err := s.codec.Seal(header, payload, s.counter)
	if err != nil {
		return err
	}
	return s.send(packet)
}
