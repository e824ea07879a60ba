// Package audio implements the capture, playback, and decode paths of the
// voice call's audio plane: gain/gate/denoise on the way out, per-SSRC
// FIFO mixing on the way in.
//
// Grounded on the teacher's av/audio/processor.go and av/audio/codec.go
// (Encoder interface, opaque-codec pattern: the teacher's own
// SimplePCMEncoder is exactly a placeholder for an injected real codec)
// and av/audio/effects.go for the gain/gate pipeline shape. The Opus
// primitive itself stays an injected interface; this package never links
// a codec directly.
package audio

// CaptureSource drives capture callbacks with raw interleaved stereo
// PCM16 frames at 48 kHz. Start must call onFrame once per period (480
// frames/channel) from its own callback goroutine until Stop.
type CaptureSource interface {
	Start(onFrame func(samples []int16)) error
	Stop() error
}

// PlaybackSink drives playback callbacks requesting interleaved stereo
// float32 output at 48 kHz. The callback must fill out completely; the
// engine sums mixed audio into it (already zero-initialized).
type PlaybackSink interface {
	Start(onNeedSamples func(out []float32)) error
	Stop() error
}

// OpusEncoder is the injected Opus encode primitive. Encode writes into
// out (capped at 1275 bytes, the Opus maximum) and returns the number of
// bytes written.
type OpusEncoder interface {
	Encode(pcm []int16, out []byte) (n int, err error)
}

// OpusDecoder is the injected Opus decode primitive, one instance per
// remote SSRC since Opus decoders carry stream state (PLC history).
type OpusDecoder interface {
	Decode(opusPayload []byte, pcmOut []int16) (n int, err error)
}

// Denoiser runs in-place noise suppression over one mono frame of float
// samples in [-32768, 32768].
type Denoiser interface {
	Denoise(mono []float64) error
}
