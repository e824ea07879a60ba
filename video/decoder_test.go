package video

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeH264Decoder struct {
	frame NV12Frame
	ok    bool
	err   error
}

func (d *fakeH264Decoder) Decode(accessUnit []byte) (NV12Frame, bool, error) {
	return d.frame, d.ok, d.err
}

func TestDecoderAdapterProducesBGRA(t *testing.T) {
	codec := &fakeH264Decoder{
		frame: NV12Frame{
			Y:      []byte{235, 235, 235, 235},
			UV:     []byte{128, 128},
			Width:  2,
			Height: 2,
		},
		ok: true,
	}
	adapter := NewDecoderAdapter(codec)

	bgra, w, h, err := adapter.Decode([]byte{0, 0, 0, 1, 0x65})
	require.NoError(t, err)
	assert.Equal(t, 2, w)
	assert.Equal(t, 2, h)
	assert.Len(t, bgra, 2*2*4)
	assert.Equal(t, 2, adapter.Width())
	assert.Equal(t, 2, adapter.Height())
}

func TestDecoderAdapterSwallowsRenegotiation(t *testing.T) {
	codec := &fakeH264Decoder{ok: false}
	adapter := NewDecoderAdapter(codec)

	bgra, w, h, err := adapter.Decode([]byte{0, 0, 0, 1, 0x67})
	require.NoError(t, err)
	assert.Nil(t, bgra)
	assert.Equal(t, 0, w)
	assert.Equal(t, 0, h)
}

func TestDecoderAdapterPropagatesCodecError(t *testing.T) {
	codec := &fakeH264Decoder{err: errors.New("decode failed")}
	adapter := NewDecoderAdapter(codec)

	_, _, _, err := adapter.Decode([]byte{0, 0, 0, 1})
	assert.Error(t, err)
}
