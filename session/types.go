package session

import (
	"github.com/nyxchat/voicecore/audio"
	"github.com/nyxchat/voicecore/config"
	"github.com/nyxchat/voicecore/gateway"
	"github.com/nyxchat/voicecore/vclog"
	"github.com/nyxchat/voicecore/video"
)

// ConnectionState mirrors the gateway FSM's lifecycle stage.
type ConnectionState = gateway.State

// LogLevel mirrors the vclog sink's level enum.
type LogLevel = vclog.Level

// SpeakingFlags mirrors the gateway opcode-5 bitset.
type SpeakingFlags = gateway.SpeakingFlags

// SessionKind distinguishes a voice session from a stream (screen-share)
// session.
type SessionKind = gateway.SessionKind

const (
	SessionVoice  = gateway.SessionVoice
	SessionStream = gateway.SessionStream
)

// ConnectParams carries the assembled identity and server info the
// orchestrator needs once both halves of the two-phase connect are staged.
type ConnectParams struct {
	Endpoint  string
	Token     string
	ServerID  string
	UserID    string
	SessionID string
	Kind      SessionKind
}

// Callbacks are the core-to-host hooks the orchestrator drives. All but
// OnSessionEnd are invoked synchronously on whichever goroutine observed
// the triggering event (the gateway goroutine for state/speaking, the UDP
// receive goroutine for decoded video frames); OnSessionEnd runs on the
// goroutine that the orchestrator's fatal-error teardown starts.
type Callbacks struct {
	OnStateChange  func(ConnectionState)
	OnSpeaking     func(userID uint64, ssrc uint32, flags SpeakingFlags)
	OnLog          func(level LogLevel, message string)
	OnDecodedFrame func(bgra []byte, width, height int)
	OnSessionEnd   func(err error)
}

// Deps are the injected backend factories the orchestrator builds a
// session's media pipelines from. Every factory is called at most once per
// live session except NewOpusDecoder and NewH264Decoder, which are called
// once per newly observed remote SSRC.
type Deps struct {
	NewMicCaptureSource      func() (audio.CaptureSource, error)
	NewLoopbackCaptureSource func() (audio.CaptureSource, error)
	NewPlaybackSink          func() (audio.PlaybackSink, error)
	NewOpusEncoder           func(bitrate uint32) (audio.OpusEncoder, error)
	NewOpusDecoder           func() audio.OpusDecoder
	Denoiser                 audio.Denoiser

	NewVideoCaptureSource func() (video.VideoCaptureSource, error)
	NewH264Encoder        func(cfg config.VideoConfig) (video.H264Encoder, error)
	NewH264Decoder        func() (video.H264Decoder, error)

	AudioConfig config.AudioConfig
	VideoConfig config.VideoConfig

	// GatewayVersion is the voice gateway API version in the wss:// query
	// string. Defaults to 7.
	GatewayVersion int

	// HeartbeatMissThreshold is the number of consecutive missed
	// heartbeat-ack watchdog checks that trigger ErrFatalProtocol.
	// Defaults to 2.
	HeartbeatMissThreshold int

	// DecryptFailureThreshold is the number of consecutive decrypt
	// failures on incoming media packets that trigger ErrFatalProtocol.
	// Defaults to 20.
	DecryptFailureThreshold int
}

func (d *Deps) applyDefaults() {
	if d.GatewayVersion == 0 {
		d.GatewayVersion = 7
	}
	if d.HeartbeatMissThreshold == 0 {
		d.HeartbeatMissThreshold = 2
	}
	if d.DecryptFailureThreshold == 0 {
		d.DecryptFailureThreshold = 20
	}
}
