package audio

import (
	"math"
	"sync/atomic"
)

// meterDecay is the per-update decay factor for the peak meter: on each
// frame the previous peak decays by this factor before being compared
// against the new frame's maximum absolute sample.
const meterDecay = 0.9

// floatBits stores a float64 behind an atomic.Uint64 so gain/gate/volume
// settings can be read and written from any goroutine without a mutex.
type floatBits struct {
	bits atomic.Uint64
}

func (f *floatBits) Store(v float64) { f.bits.Store(math.Float64bits(v)) }
func (f *floatBits) Load() float64   { return math.Float64frombits(f.bits.Load()) }

// peakMeter tracks a decaying peak amplitude over interleaved int16
// frames, used for both the capture voice gate and per-SSRC playback
// diagnostics.
type peakMeter struct {
	peak floatBits
}

func newPeakMeter() *peakMeter {
	return &peakMeter{}
}

// Update folds one frame's samples into the decaying peak.
func (m *peakMeter) Update(samples []int16) {
	decayed := m.peak.Load() * meterDecay
	maxAbs := 0.0
	for _, s := range samples {
		v := math.Abs(float64(s))
		if v > maxAbs {
			maxAbs = v
		}
	}
	if maxAbs > decayed {
		m.peak.Store(maxAbs)
	} else {
		m.peak.Store(decayed)
	}
}

// Peak returns the current decaying peak amplitude, in [0, 32768].
func (m *peakMeter) Peak() float64 {
	return m.peak.Load()
}
