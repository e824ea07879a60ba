package audio

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/nyxchat/voicecore/config"
)

// frameSamplesPerChannel is the fixed capture/decode period: 480
// frames/channel (10 ms) at 48 kHz, per the resolved capture-cadence
// reading of the wire format (see SPEC_FULL.md section 4.4).
const frameSamplesPerChannel = 480

// maxOpusFrameBytes is the Opus-specified maximum encoded frame size.
const maxOpusFrameBytes = 1275

// maxDecodeSamplesPerChannel is 120 ms at 48 kHz, the largest a single
// Opus decode (including PLC concealment) is ever asked to produce.
const maxDecodeSamplesPerChannel = 5760

// peerState is one remote SSRC's decode/playback state.
type peerState struct {
	decoder OpusDecoder
	meter   *peakMeter

	muted  atomic.Bool
	volume floatBits

	mu   sync.Mutex
	fifo []int16
}

// Engine owns the capture, playback, and decode paths for one voice
// session's audio plane.
type Engine struct {
	encoder    OpusEncoder
	newDecoder func() OpusDecoder
	denoiser   Denoiser

	captureGain   floatBits
	captureGate   floatBits
	playbackGain  floatBits
	mixMono       atomic.Bool
	noiseSuppress atomic.Bool

	rtpTimestamp atomic.Uint32
	captureMeter *peakMeter

	// FrameEncoded is invoked with one encoded Opus frame and the RTP
	// timestamp it was captured at. Wired to the RTP audio sender.
	FrameEncoded func(opus []byte, timestamp uint32)

	mu    sync.RWMutex
	peers map[uint32]*peerState
}

// NewEngine constructs an engine from the given config and codec
// primitives. newDecoder is called once per newly observed SSRC.
func NewEngine(cfg config.AudioConfig, encoder OpusEncoder, newDecoder func() OpusDecoder, denoiser Denoiser) *Engine {
	e := &Engine{
		encoder:      encoder,
		newDecoder:   newDecoder,
		denoiser:     denoiser,
		captureMeter: newPeakMeter(),
		peers:        make(map[uint32]*peerState),
	}
	e.captureGain.Store(cfg.CaptureGain)
	e.captureGate.Store(cfg.CaptureGate)
	e.playbackGain.Store(cfg.PlaybackGain)
	e.mixMono.Store(cfg.MixMono)
	e.noiseSuppress.Store(cfg.NoiseSuppress)
	return e
}

// SetCaptureGain updates the runtime capture gain.
func (e *Engine) SetCaptureGain(v float64) { e.captureGain.Store(v) }

// SetCaptureGate updates the runtime voice gate threshold.
func (e *Engine) SetCaptureGate(v float64) { e.captureGate.Store(v) }

// SetPlaybackGain updates the runtime master playback gain.
func (e *Engine) SetPlaybackGain(v float64) { e.playbackGain.Store(v) }

// RTPTimestamp returns the current audio RTP clock value.
func (e *Engine) RTPTimestamp() uint32 { return e.rtpTimestamp.Load() }

// CapturePeak returns the capture path's current decaying peak in [0,1].
func (e *Engine) CapturePeak() float64 { return e.captureMeter.Peak() / 32768.0 }

// HandleCaptureFrame runs one captured frame through gain, mono-mix,
// denoise, the peak meter, the voice gate, and Opus encode, in that
// order, then advances the RTP clock unconditionally.
//
// samples must be 960 interleaved int16 values (480 frames/channel,
// stereo, 10 ms) — the OS capture period this engine is configured for.
func (e *Engine) HandleCaptureFrame(samples []int16) {
	gain := e.captureGain.Load()
	if gain != 1.0 {
		applyGain(samples, gain)
	}

	if e.mixMono.Load() {
		mixToMono(samples)
	}

	if e.noiseSuppress.Load() && e.denoiser != nil && len(samples) == frameSamplesPerChannel*2 {
		e.denoise(samples)
	}

	e.captureMeter.Update(samples)

	timestamp := e.rtpTimestamp.Load()
	gated := e.captureMeter.Peak()/32768.0 <= e.captureGate.Load()
	if !gated {
		e.encodeAndDeliver(samples, timestamp)
	}

	e.rtpTimestamp.Add(frameSamplesPerChannel)
}

func (e *Engine) denoise(samples []int16) {
	mono := make([]float64, frameSamplesPerChannel)
	for i := 0; i < frameSamplesPerChannel; i++ {
		mono[i] = (float64(samples[i*2]) + float64(samples[i*2+1])) / 2
	}
	if err := e.denoiser.Denoise(mono); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.denoise",
			"error":    err.Error(),
		}).Debug("denoiser failed, passing audio through unchanged")
		return
	}
	for i := 0; i < frameSamplesPerChannel; i++ {
		v := clampInt16Float(mono[i])
		samples[i*2] = v
		samples[i*2+1] = v
	}
}

func (e *Engine) encodeAndDeliver(samples []int16, timestamp uint32) {
	buf := make([]byte, maxOpusFrameBytes)
	n, err := e.encoder.Encode(samples, buf)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.encodeAndDeliver",
			"error":    err.Error(),
		}).Warn("Opus encode failed, dropping frame")
		return
	}
	if e.FrameEncoded != nil {
		e.FrameEncoded(buf[:n], timestamp)
	}
}

// HandlePlaybackNeedSamples fills out (interleaved stereo float32) by
// summing each live, unmuted SSRC's FIFO contents scaled by the master
// playback gain and that SSRC's volume. out is assumed zero-initialized;
// underflowing SSRCs simply contribute nothing, leaving silence.
func (e *Engine) HandlePlaybackNeedSamples(out []float32) {
	playbackGain := e.playbackGain.Load()

	e.mu.RLock()
	peers := make([]*peerState, 0, len(e.peers))
	for _, p := range e.peers {
		peers = append(peers, p)
	}
	e.mu.RUnlock()

	for _, p := range peers {
		if p.muted.Load() {
			continue
		}
		vol := float32(playbackGain * p.volume.Load())

		p.mu.Lock()
		n := len(out)
		if n > len(p.fifo) {
			n = len(p.fifo)
		}
		chunk := p.fifo[:n]
		p.fifo = p.fifo[n:]
		p.mu.Unlock()

		for i, s := range chunk {
			out[i] += float32(s) / 32768.0 * vol
		}
	}
}

// FeedOpus decodes one Opus packet for ssrc and appends the result to
// that SSRC's playback FIFO. Muted SSRCs skip decode entirely.
func (e *Engine) FeedOpus(ssrc uint32, opusPayload []byte) {
	p := e.peer(ssrc)
	if p.muted.Load() {
		return
	}

	pcm := make([]int16, maxDecodeSamplesPerChannel*2)
	n, err := p.decoder.Decode(opusPayload, pcm)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.FeedOpus",
			"ssrc":     ssrc,
			"error":    err.Error(),
		}).Debug("Opus decode failed, dropping packet")
		return
	}
	pcm = pcm[:n]
	p.meter.Update(pcm)

	p.mu.Lock()
	p.fifo = append(p.fifo, pcm...)
	p.mu.Unlock()
}

// OnSpeaking lazily creates per-SSRC decode state for ssrc, applying any
// previously staged volume.
func (e *Engine) OnSpeaking(ssrc uint32) {
	e.peer(ssrc)
}

// SetVolume sets ssrc's playback volume, creating its state if needed
// (staging the setting ahead of the first Speaking event).
func (e *Engine) SetVolume(ssrc uint32, volume float64) {
	e.peer(ssrc).volume.Store(volume)
}

// SetMuted sets ssrc's mute flag.
func (e *Engine) SetMuted(ssrc uint32, muted bool) {
	e.peer(ssrc).muted.Store(muted)
}

// RemoveSSRC destroys ssrc's decode/playback state.
func (e *Engine) RemoveSSRC(ssrc uint32) {
	e.mu.Lock()
	delete(e.peers, ssrc)
	e.mu.Unlock()
}

// RemoveAllSSRCs destroys all per-SSRC state, used on session teardown.
func (e *Engine) RemoveAllSSRCs() {
	e.mu.Lock()
	e.peers = make(map[uint32]*peerState)
	e.mu.Unlock()
}

func (e *Engine) peer(ssrc uint32) *peerState {
	e.mu.RLock()
	p, ok := e.peers[ssrc]
	e.mu.RUnlock()
	if ok {
		return p
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.peers[ssrc]; ok {
		return p
	}
	p = &peerState{meter: newPeakMeter()}
	p.volume.Store(1.0)
	if e.newDecoder != nil {
		p.decoder = e.newDecoder()
	}
	e.peers[ssrc] = p
	return p
}

func applyGain(samples []int16, gain float64) {
	for i, s := range samples {
		v := float64(s) * gain
		samples[i] = clampInt16Float(v)
	}
}

func mixToMono(samples []int16) {
	for i := 0; i+1 < len(samples); i += 2 {
		mixed := (int32(samples[i]) + int32(samples[i+1])) / 2
		v := int16(mixed)
		samples[i] = v
		samples[i+1] = v
	}
}

func clampInt16Float(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
