package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNV12ToBGRAWhitePixel(t *testing.T) {
	frame := NV12Frame{
		Y:      []byte{235, 235, 235, 235},
		UV:     []byte{128, 128},
		Width:  2,
		Height: 2,
	}
	out := nv12ToBGRA(frame)
	assert.Len(t, out, 2*2*4)
	for i := 0; i < 4; i++ {
		off := i * 4
		assert.InDelta(t, 255, int(out[off]), 2)
		assert.InDelta(t, 255, int(out[off+1]), 2)
		assert.InDelta(t, 255, int(out[off+2]), 2)
		assert.Equal(t, byte(0xFF), out[off+3])
	}
}

func TestNV12ToBGRABlackPixel(t *testing.T) {
	frame := NV12Frame{
		Y:      []byte{16, 16, 16, 16},
		UV:     []byte{128, 128},
		Width:  2,
		Height: 2,
	}
	out := nv12ToBGRA(frame)
	for i := 0; i < 4; i++ {
		off := i * 4
		assert.InDelta(t, 0, int(out[off]), 2)
		assert.InDelta(t, 0, int(out[off+1]), 2)
		assert.InDelta(t, 0, int(out[off+2]), 2)
	}
}

func TestNV12ToBGRAHonorsStride(t *testing.T) {
	// 2x1 visible image padded to a 4-pixel stride.
	frame := NV12Frame{
		Y:      []byte{235, 235, 0, 0},
		UV:     []byte{128, 128, 0, 0},
		Width:  2,
		Height: 1,
		Stride: 4,
	}
	out := nv12ToBGRA(frame)
	assert.Len(t, out, 2*1*4)
	assert.InDelta(t, 255, int(out[2]), 2) // R channel of pixel 0
}
