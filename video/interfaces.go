// Package video implements the screen-share capture pipeline and the
// H.264 encode/decode adapters around it.
//
// Grounded on the teacher's av/video/codec.go (VP8Codec wrapping a
// *Processor, GetSupportedResolutions/ValidateFrameSize/bitrate-table
// helpers), generalized from VP8 to H.264. The codec primitives
// themselves stay injected interfaces per the opaque-codec pattern; this
// package owns resolution/bitrate validation, pacing, timestamping, and
// NV12->BGRA conversion only.
package video

// Surface is one raw captured frame, in whatever pixel format the
// injected capture backend and encoder agree on (host-specific).
type Surface struct {
	Width  int
	Height int
	Data   []byte
}

// VideoCaptureSource is a pull-based capture backend: Capture returns the
// most recently available surface without blocking for a new one. The
// capture pipeline paces calls with its own ticker rather than the source
// blocking on frame arrival.
type VideoCaptureSource interface {
	Capture() (Surface, error)
	Close() error
}

// H264Encoder is the injected H.264 encode primitive.
type H264Encoder interface {
	// Encode produces one Annex-B access unit for surface.
	Encode(surface Surface) (annexB []byte, err error)
	// RequestKeyframe forces the next Encode call to emit an IDR.
	RequestKeyframe()
	Close() error
}

// NV12Frame is one decoded frame in the codec's native NV12 layout.
type NV12Frame struct {
	Y      []byte
	UV     []byte
	Width  int
	Height int
	// Stride is the Y plane's row stride in bytes; 0 means "equal to
	// Width" (no padding).
	Stride int
}

// H264Decoder is the injected H.264 decode primitive. Decode returns
// ok=false with a nil error when the codec signals a format
// renegotiation and produces no frame this call; frame.Width and
// frame.Height then carry the new output dimensions, or 0 if unknown.
type H264Decoder interface {
	Decode(accessUnit []byte) (frame NV12Frame, ok bool, err error)
}
