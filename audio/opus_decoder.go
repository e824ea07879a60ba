package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// PionOpusDecoder adapts github.com/pion/opus's pure-Go decoder to the
// OpusDecoder interface. Grounded on the teacher's av/audio/processor.go
// ProcessIncoming, which drives the same opus.Decoder.Decode(data, []byte)
// (bandwidth, isStereo, error) signature against a scratch byte buffer.
type PionOpusDecoder struct {
	decoder opus.Decoder
	scratch []byte
}

// NewPionOpusDecoder constructs a decoder instance. One instance must be
// held per remote SSRC; pion/opus decoders carry PLC and bandwidth-switch
// state across calls.
func NewPionOpusDecoder() *PionOpusDecoder {
	return &PionOpusDecoder{
		decoder: opus.NewDecoder(),
		scratch: make([]byte, maxDecodeSamplesPerChannel*2*2),
	}
}

// Decode implements OpusDecoder.
func (d *PionOpusDecoder) Decode(opusPayload []byte, pcmOut []int16) (int, error) {
	if len(opusPayload) == 0 {
		return 0, fmt.Errorf("audio: empty opus payload")
	}

	need := len(pcmOut) * 2
	if cap(d.scratch) < need {
		d.scratch = make([]byte, need)
	}
	scratch := d.scratch[:need]

	bandwidth, isStereo, err := d.decoder.Decode(opusPayload, scratch)
	if err != nil {
		return 0, fmt.Errorf("opus decode failed: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "PionOpusDecoder.Decode",
		"bandwidth": bandwidth.String(),
		"is_stereo": isStereo,
	}).Debug("decoded opus frame")

	n := len(scratch) / 2
	if n > len(pcmOut) {
		n = len(pcmOut)
	}
	for i := 0; i < n; i++ {
		pcmOut[i] = int16(binary.LittleEndian.Uint16(scratch[i*2:]))
	}
	return n, nil
}
