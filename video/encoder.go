package video

import (
	"sync/atomic"

	"github.com/nyxchat/voicecore/config"
)

// EncoderAdapter owns resolution/bitrate validation and keyframe-request
// bookkeeping around an injected H264Encoder. Target profile Baseline,
// CBR rate control, and low-latency mode are properties of the injected
// codec's own configuration; this adapter only validates the requested
// parameters and forwards Encode/RequestKeyframe calls.
type EncoderAdapter struct {
	codec H264Encoder
	cfg   config.VideoConfig

	keyframePending atomic.Bool
}

// NewEncoderAdapter validates cfg and constructs an adapter around codec.
func NewEncoderAdapter(codec H264Encoder, cfg config.VideoConfig) (*EncoderAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EncoderAdapter{codec: codec, cfg: cfg}, nil
}

// RequestKeyframe forces the next Encode call to emit an IDR.
func (e *EncoderAdapter) RequestKeyframe() {
	e.keyframePending.Store(true)
	e.codec.RequestKeyframe()
}

// KeyframePending reports whether a keyframe request is still
// outstanding (has not yet been satisfied by an Encode call).
func (e *EncoderAdapter) KeyframePending() bool {
	return e.keyframePending.Load()
}

// Encode produces one Annex-B access unit for surface.
func (e *EncoderAdapter) Encode(surface Surface) ([]byte, error) {
	annexB, err := e.codec.Encode(surface)
	if err != nil {
		return nil, err
	}
	e.keyframePending.Store(false)
	return annexB, nil
}

// Close releases the underlying codec.
func (e *EncoderAdapter) Close() error {
	return e.codec.Close()
}
