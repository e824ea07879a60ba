package rtp

import (
	"encoding/binary"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nyxchat/voicecore/aead"
)

type fuAccumulator struct {
	nalHeader byte
	payload   []byte
}

// VideoReceiver reassembles incoming video RTP packets into Annex-B access
// units keyed by RTP timestamp, flushing on a timestamp change or a
// marker bit.
//
// Grounded on the teacher's av/video/rtp.go FrameAssembly shape
// (sequence-aware accumulation, flush-on-boundary), reimplemented against
// RFC 6184 single-NAL/STAP-A/FU-A framing instead of VP8's.
type VideoReceiver struct {
	codec *aead.Codec
	ssrc  uint32

	onAccessUnit func(annexB []byte, timestamp uint32)

	mu            sync.Mutex
	haveTimestamp bool
	timestamp     uint32
	accumulator   []byte
	fu            *fuAccumulator
}

// NewVideoReceiver constructs a receiver filtering on ssrc and delivering
// flushed access units to onAccessUnit.
func NewVideoReceiver(codec *aead.Codec, ssrc uint32, onAccessUnit func(annexB []byte, timestamp uint32)) *VideoReceiver {
	return &VideoReceiver{codec: codec, ssrc: ssrc, onAccessUnit: onAccessUnit}
}

// HandlePacket opens packet, filters by SSRC, and feeds it into the
// reassembly state machine.
func (r *VideoReceiver) HandlePacket(packet []byte) error {
	header, payload, err := r.codec.Open(packet)
	if err != nil {
		return err
	}
	if header.SSRC != r.ssrc {
		return nil
	}
	if len(payload) < 1 {
		return ErrReassembly
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.haveTimestamp {
		r.haveTimestamp = true
		r.timestamp = header.Timestamp
	} else if header.Timestamp != r.timestamp {
		r.flushLocked()
		r.timestamp = header.Timestamp
	}

	nalType := payload[0] & 0x1F
	switch {
	case nalType >= 1 && nalType <= 23:
		r.appendNAL(payload)
	case nalType == nalTypeSTAPA:
		r.appendSTAPA(payload[1:])
	case nalType == nalTypeFUA:
		r.appendFUA(payload)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "VideoReceiver.HandlePacket",
			"nal_type": nalType,
		}).Debug("dropping unsupported NAL type")
	}

	if header.Marker {
		r.flushLocked()
	}
	return nil
}

func (r *VideoReceiver) appendNAL(nal []byte) {
	r.accumulator = append(r.accumulator, startCode4...)
	r.accumulator = append(r.accumulator, nal...)
}

func (r *VideoReceiver) appendSTAPA(data []byte) {
	for len(data) >= 2 {
		size := int(binary.BigEndian.Uint16(data[0:2]))
		data = data[2:]
		if size > len(data) {
			logrus.WithFields(logrus.Fields{
				"function": "VideoReceiver.appendSTAPA",
			}).Debug("STAP-A size field overruns packet, dropping remainder")
			return
		}
		r.appendNAL(data[:size])
		data = data[size:]
	}
}

func (r *VideoReceiver) appendFUA(payload []byte) {
	if len(payload) < 2 {
		return
	}
	fuIndicator := payload[0]
	fuHeader := payload[1]
	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	fragment := payload[2:]

	if start {
		nalHeader := (fuIndicator & 0xE0) | (fuHeader & 0x1F)
		r.fu = &fuAccumulator{
			nalHeader: nalHeader,
			payload:   append([]byte(nil), fragment...),
		}
	} else if r.fu != nil {
		r.fu.payload = append(r.fu.payload, fragment...)
	} else {
		// End (or middle) fragment arrived without ever seeing the
		// start fragment; the fragment is discarded here, so that NAL is
		// never emitted.
		return
	}

	if end && r.fu != nil {
		nal := append([]byte{r.fu.nalHeader}, r.fu.payload...)
		r.appendNAL(nal)
		r.fu = nil
	}
}

func (r *VideoReceiver) flushLocked() {
	if len(r.accumulator) == 0 {
		return
	}
	au := r.accumulator
	r.accumulator = nil
	if r.onAccessUnit != nil {
		r.onAccessUnit(au, r.timestamp)
	}
}
