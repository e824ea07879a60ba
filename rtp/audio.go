package rtp

import (
	"github.com/nyxchat/voicecore/aead"
)

// AudioSender packetizes Opus frames as RTP and hands them to the AEAD
// codec for sealing. It is driven exclusively by the audio capture
// callback goroutine, so sequence and nonce counters need no lock: the
// single-writer guarantee lives in the caller, not here.
type AudioSender struct {
	codec *aead.Codec
	ssrc  uint32
	send  func([]byte) error

	sequence uint16
	counter  uint32
}

// NewAudioSender constructs a sender bound to ssrc; send transmits the
// sealed packet (normally transport.Transport.Send).
func NewAudioSender(codec *aead.Codec, ssrc uint32, send func([]byte) error) *AudioSender {
	return &AudioSender{codec: codec, ssrc: ssrc, send: send}
}

// Send seals and transmits one Opus frame at the given RTP timestamp,
// advancing the sequence number and nonce counter together by exactly 1.
func (s *AudioSender) Send(opusPayload []byte, timestamp uint32) error {
	s.sequence++
	s.counter++

	header := aead.RTPHeader{
		PayloadType: AudioPayloadType,
		Sequence:    s.sequence,
		Timestamp:   timestamp,
		SSRC:        s.ssrc,
	}

	packet, err := s.codec.Seal(header, opusPayload, s.counter)
	if err != nil {
		return err
	}
	return s.send(packet)
}

// AudioReceiver opens incoming audio RTP packets and forwards the decoded
// SSRC, timestamp, and Opus payload to onFrame. Decrypt failures are
// returned to the caller, which per the error-handling design drops the
// packet silently rather than surfacing it further.
type AudioReceiver struct {
	codec   *aead.Codec
	onFrame func(ssrc uint32, timestamp uint32, opusPayload []byte)
}

// NewAudioReceiver constructs a receiver dispatching decoded frames to
// onFrame, keyed by SSRC.
func NewAudioReceiver(codec *aead.Codec, onFrame func(ssrc uint32, timestamp uint32, opusPayload []byte)) *AudioReceiver {
	return &AudioReceiver{codec: codec, onFrame: onFrame}
}

// HandlePacket opens packet and, if its payload type matches audio,
// forwards it to onFrame.
func (r *AudioReceiver) HandlePacket(packet []byte) error {
	header, payload, err := r.codec.Open(packet)
	if err != nil {
		return err
	}
	if header.PayloadType != AudioPayloadType {
		return nil
	}
	if r.onFrame != nil {
		r.onFrame(header.SSRC, header.Timestamp, payload)
	}
	return nil
}
