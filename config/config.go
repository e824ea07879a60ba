// Package config enumerates the configuration surface consumed by the
// voice core: device selection, gain/gate scalars, per-peer volume and
// mute state, and video source/encode parameters.
package config

import "fmt"

// DeviceID is an opaque, host-specific device identifier blob. The core
// never interprets its contents; only the injected capture/playback
// backend does.
type DeviceID []byte

// AudioConfig holds the mutable audio engine settings enumerated in the
// configuration surface. All fields are safe to read concurrently through
// the audio.Engine accessors; this struct itself is a plain value used only
// to seed or snapshot that state.
type AudioConfig struct {
	CaptureDevice  DeviceID
	PlaybackDevice DeviceID
	CaptureGain    float64 // 0.0 .. +Inf
	CaptureGate    float64 // 0.0 .. 1.0, relative to full scale
	PlaybackGain   float64
	MixMono        bool
	NoiseSuppress  bool
	OpusBitRate    uint32 // e.g. 64000 for voice, 128000 for loopback music
}

// DefaultAudioConfig returns the nominal voice-call settings.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		CaptureGain:  1.0,
		CaptureGate:  0.0,
		PlaybackGain: 1.0,
		OpusBitRate:  64000,
	}
}

// Validate checks the audio configuration for out-of-range scalars.
func (c AudioConfig) Validate() error {
	if c.CaptureGain < 0 {
		return fmt.Errorf("capture gain must be non-negative, got %f", c.CaptureGain)
	}
	if c.CaptureGate < 0 || c.CaptureGate > 1 {
		return fmt.Errorf("capture gate must be within [0,1], got %f", c.CaptureGate)
	}
	if c.PlaybackGain < 0 {
		return fmt.Errorf("playback gain must be non-negative, got %f", c.PlaybackGain)
	}
	return nil
}

// VideoSource selects between a display (desktop/output pair) and a
// specific window as the capture origin.
type VideoSource struct {
	Kind    VideoSourceKind
	Adapter int    // Kind == SourceDisplay
	Output  int    // Kind == SourceDisplay
	Handle  uint64 // Kind == SourceWindow, host-specific window handle
}

// VideoSourceKind distinguishes the two supported capture origins.
type VideoSourceKind int

const (
	SourceDisplay VideoSourceKind = iota
	SourceWindow
)

// VideoConfig holds the encode/capture parameters for a screen-share
// session.
type VideoConfig struct {
	Source           VideoSource
	Width            int
	Height           int
	FPS              int
	Bitrate          uint32
	KeyframeInterval int // frames between forced IDR
}

// DefaultVideoConfig returns the nominal 30 fps screen-share settings.
func DefaultVideoConfig() VideoConfig {
	return VideoConfig{
		Width:            1280,
		Height:           720,
		FPS:              30,
		Bitrate:          2_000_000,
		KeyframeInterval: 300,
	}
}

// Validate checks the video configuration for unusable dimensions or rates.
func (c VideoConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid video dimensions: %dx%d", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("invalid video fps: %d", c.FPS)
	}
	if c.Bitrate == 0 {
		return fmt.Errorf("video bitrate must be positive")
	}
	return nil
}

// PeerSettings holds the per-SSRC runtime controls a host may apply before
// or after a peer's Speaking event arrives.
type PeerSettings struct {
	Volume float64
	Muted  bool
}

// DefaultPeerSettings returns unity volume, unmuted.
func DefaultPeerSettings() PeerSettings {
	return PeerSettings{Volume: 1.0}
}
