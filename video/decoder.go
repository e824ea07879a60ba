package video

// DecoderAdapter converts the injected H264Decoder's NV12 output to
// top-down BGRA and tracks the current output dimensions across runtime
// format renegotiation.
type DecoderAdapter struct {
	codec  H264Decoder
	width  int
	height int
}

// NewDecoderAdapter constructs an adapter around codec.
func NewDecoderAdapter(codec H264Decoder) *DecoderAdapter {
	return &DecoderAdapter{codec: codec}
}

// Width and Height return the most recently decoded frame's dimensions.
func (d *DecoderAdapter) Width() int  { return d.width }
func (d *DecoderAdapter) Height() int { return d.height }

// Decode feeds one Annex-B access unit. On a renegotiation signal from
// the codec it returns (nil, 0, 0, nil): no frame this call, not an
// error. The cached width/height are updated whenever a frame or a
// renegotiation (which carries new dimensions) occurs.
func (d *DecoderAdapter) Decode(accessUnit []byte) (bgra []byte, width int, height int, err error) {
	frame, ok, err := d.codec.Decode(accessUnit)
	if err != nil {
		return nil, 0, 0, err
	}
	if !ok {
		if frame.Width > 0 && frame.Height > 0 {
			d.width = frame.Width
			d.height = frame.Height
		}
		return nil, 0, 0, nil
	}

	d.width = frame.Width
	d.height = frame.Height
	return nv12ToBGRA(frame), frame.Width, frame.Height, nil
}
