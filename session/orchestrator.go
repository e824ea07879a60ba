// Package session owns one voice or stream (screen-share) session end to
// end: the gateway FSM, the UDP media transport, the AEAD codec, and the
// audio/video pipelines wired between them.
//
// Grounded on the teacher's av/manager.go (Manager owning a calls map,
// TransportInterface abstraction, constructor validation,
// registerPacketHandlers), generalized from a multi-call Tox manager to a
// single-session orchestrator that owns exactly one gateway.FSM, one
// transport.Transport, and one aead.Codec.
package session

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nyxchat/voicecore/aead"
	"github.com/nyxchat/voicecore/audio"
	"github.com/nyxchat/voicecore/gateway"
	"github.com/nyxchat/voicecore/gatewaydial"
	"github.com/nyxchat/voicecore/quality"
	"github.com/nyxchat/voicecore/rtp"
	"github.com/nyxchat/voicecore/transport"
	"github.com/nyxchat/voicecore/vclog"
	"github.com/nyxchat/voicecore/video"
)

// closeCodeClientDisconnect is the WebSocket close code sent when the
// orchestrator tears down a session on its own initiative.
const closeCodeClientDisconnect = 4014

// udpKeepaliveInterval is the period of the fixed 2-byte UDP keepalive
// datagram sent once the media transport is connected.
const udpKeepaliveInterval = 10 * time.Second

// heartbeatWatchdogInterval is comfortably longer than the voice gateway's
// typical Hello-advertised heartbeat interval, so a healthy session always
// observes at least one HeartbeatAck between consecutive watchdog ticks.
const heartbeatWatchdogInterval = 45 * time.Second

// opusSilenceFrame is the 3-byte Opus "silence" packet sent once the
// session key is installed, opening the UDP NAT binding before any real
// audio is captured.
var opusSilenceFrame = []byte{0xF8, 0xFF, 0xFE}

type videoReceiverEntry struct {
	receiver *rtp.VideoReceiver
	decoder  *video.DecoderAdapter
}

// Orchestrator owns exactly one live voice or stream session: one
// gateway.FSM, one transport.Transport, one aead.Codec, and whichever
// audio/video pipelines that session's kind requires.
type Orchestrator struct {
	deps Deps
	cb   Callbacks

	quality *quality.Counters

	mu      sync.Mutex
	live    bool
	kind    SessionKind
	traceID string

	fsm    *gateway.FSM
	wsConn *gatewaydial.Conn
	transportConn *transport.Transport
	codec         *aead.Codec

	audioSSRC uint32
	videoSSRC uint32
	rtxSSRC   uint32

	audioEngine   *audio.Engine
	audioSender   *rtp.AudioSender
	audioReceiver *rtp.AudioReceiver
	captureSource audio.CaptureSource
	playbackSink  audio.PlaybackSink

	videoPipeline       *video.CapturePipeline
	videoEncoderAdapter *video.EncoderAdapter
	videoSender         *rtp.VideoSender

	videoReceiversMu sync.Mutex
	videoReceivers   map[uint32]*videoReceiverEntry

	consecutiveDecryptFailures atomic.Int32

	ackSinceLastCheck atomic.Bool
	heartbeatMisses   atomic.Int32
	watchdogStop      chan struct{}
	watchdogWG        sync.WaitGroup

	connecting atomic.Bool
}

// New constructs an orchestrator. No session is live until Connect
// succeeds.
func New(deps Deps, cb Callbacks) *Orchestrator {
	deps.applyDefaults()
	if cb.OnLog != nil {
		onLog := cb.OnLog
		vclog.SetSink(func(level vclog.Level, message string) {
			onLog(level, message)
		})
	}
	return &Orchestrator{
		deps:           deps,
		cb:             cb,
		quality:        quality.New(),
		videoReceivers: make(map[uint32]*videoReceiverEntry),
	}
}

// Quality returns a point-in-time snapshot of this orchestrator's
// diagnostic counters.
func (o *Orchestrator) Quality() quality.Snapshot {
	return o.quality.Snapshot()
}

// State returns the underlying gateway FSM's lifecycle stage, or
// StateDisconnected if no session is live.
func (o *Orchestrator) State() ConnectionState {
	o.mu.Lock()
	fsm := o.fsm
	o.mu.Unlock()
	if fsm == nil {
		return gateway.StateDisconnected
	}
	return fsm.State()
}

// TraceID returns the current session's diagnostic correlation id, or the
// empty string if no session is live. The orchestrator's audio
// send-failure log entries carry this id as the trace_id field, so a host
// aggregating logs from many sessions can group them back together; its
// other log entries do not carry it.
func (o *Orchestrator) TraceID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.traceID
}

// CurrentKind reports the kind of the currently live session, or
// ErrNotLive if none is active.
func (o *Orchestrator) CurrentKind() (SessionKind, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.live {
		return 0, ErrNotLive
	}
	return o.kind, nil
}

// Connect builds and starts a voice or stream session from params. If a
// session is already live it is torn down first. Concurrent Connect calls
// on the same orchestrator do not stack: a call that arrives while another
// is still dialing returns ErrAlreadyConnecting rather than tearing down
// the in-flight attempt.
func (o *Orchestrator) Connect(params ConnectParams) error {
	if params.Endpoint == "" || params.Token == "" || params.SessionID == "" {
		return ErrMissingServerInfo
	}

	if !o.connecting.CompareAndSwap(false, true) {
		return ErrAlreadyConnecting
	}
	defer o.connecting.Store(false)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.live {
		o.teardownLocked()
	}

	o.kind = params.Kind
	o.traceID = uuid.NewString()
	o.videoReceiversMu.Lock()
	o.videoReceivers = make(map[uint32]*videoReceiverEntry)
	o.videoReceiversMu.Unlock()

	identity := gateway.Identity{
		ServerID:  params.ServerID,
		UserID:    params.UserID,
		SessionID: params.SessionID,
		Token:     params.Token,
		Video:     params.Kind == SessionStream,
		Kind:      params.Kind,
	}

	proxy := &connProxy{}
	fsm := gateway.New(proxy, identity, gateway.Callbacks{
		OnReady:              o.onReady,
		OnSessionDescription: o.onSessionDescription,
		OnSpeaking:           o.onSpeakingFrame,
		OnHeartbeatAck:       o.onHeartbeatAck,
		OnStateChange:        o.onStateChange,
		OnClose:              o.onGatewayClose,
	})

	o.fsm = fsm
	o.codec = aead.NewCodec()
	o.transportConn = transport.New(o.handleUDPPacket)

	conn, err := gatewaydial.Dial(params.Endpoint, o.deps.GatewayVersion, gatewaydial.Callbacks{
		OnConnReady: proxy.conn.Store,
		OnOpen:      fsm.HandleOpen,
		OnMessage:   fsm.HandleMessage,
		OnClose:     fsm.HandleClose,
	})
	if err != nil {
		o.fsm = nil
		o.codec = nil
		o.transportConn = nil
		return fmt.Errorf("session: dial voice gateway: %w", err)
	}
	o.wsConn = conn

	o.ackSinceLastCheck.Store(true)
	o.heartbeatMisses.Store(0)
	o.startHeartbeatWatchdog()

	o.live = true
	return nil
}

// Reconnect replaces a dropped WebSocket with a fresh one and sends
// opcode-7 Resume instead of redoing the full Identify handshake, reusing
// the still-live UDP transport and AEAD key. If no session is currently
// live (the prior one already tore itself down, e.g. via a gateway close
// callback), it falls back to a full Connect.
func (o *Orchestrator) Reconnect(params ConnectParams) error {
	o.mu.Lock()
	reuse := o.live && o.transportConn != nil && o.codec != nil && o.codec.Keyed()
	o.mu.Unlock()
	if !reuse {
		return o.Connect(params)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	identity := gateway.Identity{
		ServerID:  params.ServerID,
		UserID:    params.UserID,
		SessionID: params.SessionID,
		Token:     params.Token,
		Video:     params.Kind == SessionStream,
		Kind:      params.Kind,
	}

	proxy := &connProxy{}
	fsm := gateway.New(proxy, identity, gateway.Callbacks{
		OnReady:              o.onReady,
		OnSessionDescription: o.onSessionDescription,
		OnSpeaking:           o.onSpeakingFrame,
		OnHeartbeatAck:       o.onHeartbeatAck,
		OnStateChange:        o.onStateChange,
		OnClose:              o.onGatewayClose,
	})

	if o.wsConn != nil {
		_ = o.wsConn.Close(1000)
	}
	o.fsm = fsm

	conn, err := gatewaydial.Dial(params.Endpoint, o.deps.GatewayVersion, gatewaydial.Callbacks{
		OnConnReady: proxy.conn.Store,
		OnOpen: func() {
			fsm.HandleOpen()
			_ = fsm.SendResume()
		},
		OnMessage: fsm.HandleMessage,
		OnClose:   fsm.HandleClose,
	})
	if err != nil {
		return fmt.Errorf("session: resume dial: %w", err)
	}
	o.wsConn = conn

	o.ackSinceLastCheck.Store(true)
	o.heartbeatMisses.Store(0)
	return nil
}

// Stop idempotently tears down any live session.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.live {
		return nil
	}
	o.teardownLocked()
	return nil
}

func (o *Orchestrator) teardownLocked() {
	if o.videoPipeline != nil {
		_ = o.videoPipeline.Stop()
		o.videoPipeline = nil
	}
	if o.videoEncoderAdapter != nil {
		_ = o.videoEncoderAdapter.Close()
		o.videoEncoderAdapter = nil
	}
	if o.captureSource != nil {
		_ = o.captureSource.Stop()
		o.captureSource = nil
	}
	if o.playbackSink != nil {
		_ = o.playbackSink.Stop()
		o.playbackSink = nil
	}
	if o.audioEngine != nil {
		o.audioEngine.RemoveAllSSRCs()
		o.audioEngine = nil
	}

	o.videoReceiversMu.Lock()
	o.videoReceivers = make(map[uint32]*videoReceiverEntry)
	o.videoReceiversMu.Unlock()

	if o.transportConn != nil {
		_ = o.transportConn.Close()
		o.transportConn = nil
	}
	if o.wsConn != nil {
		_ = o.wsConn.Close(closeCodeClientDisconnect)
		o.wsConn = nil
	}
	if o.codec != nil {
		o.codec.Reset()
		o.codec = nil
	}

	o.stopHeartbeatWatchdogLocked()

	o.fsm = nil
	o.audioSender = nil
	o.audioReceiver = nil
	o.videoSender = nil
	o.audioSSRC, o.videoSSRC, o.rtxSSRC = 0, 0, 0
	o.live = false
	o.traceID = ""
}

// handleFatal runs the actual teardown on its own goroutine, since some
// callers (the heartbeat watchdog, the video pipeline's OnSessionEnd) run
// on a goroutine that teardown itself joins via WaitGroup; calling
// teardown inline from such a goroutine would deadlock.
func (o *Orchestrator) handleFatal(err error) {
	go func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if !o.live {
			return
		}
		o.teardownLocked()
		if o.cb.OnSessionEnd != nil {
			o.cb.OnSessionEnd(err)
		}
	}()
}

func (o *Orchestrator) onReady(ssrc uint32, serverIP string, serverPort uint16, modes []string) (string, uint16, error) {
	o.audioSSRC = ssrc
	o.videoSSRC = ssrc + 1
	o.rtxSSRC = ssrc + 2

	if err := o.transportConn.Connect(serverIP, serverPort); err != nil {
		return "", 0, err
	}
	o.transportConn.StartKeepalive(udpKeepaliveInterval)

	localIP, localPort, err := o.transportConn.IPDiscovery(ssrc)
	if err != nil {
		return "", 0, err
	}

	o.audioSender = rtp.NewAudioSender(o.codec, o.audioSSRC, o.transportConn.Send)
	o.audioReceiver = rtp.NewAudioReceiver(o.codec, o.onAudioFrame)
	if o.kind == SessionStream {
		o.videoSender = rtp.NewVideoSender(o.codec, o.videoSSRC, o.transportConn.Send)
	}

	return localIP, localPort, nil
}

func (o *Orchestrator) onSessionDescription(mode string, secretKeyBytes []byte) error {
	key, err := aead.NewSecretKeyFromBytes(secretKeyBytes)
	if err != nil {
		return err
	}
	if err := o.codec.InstallKey(key); err != nil {
		key.Zero()
		return err
	}
	key.Zero()

	if o.audioSender != nil {
		_ = o.audioSender.Send(opusSilenceFrame, 0)
	}

	if o.kind == SessionStream {
		return o.startStreamSession()
	}
	return o.startVoiceSession()
}

func (o *Orchestrator) startVoiceSession() error {
	if o.deps.NewOpusEncoder == nil {
		return fmt.Errorf("session: no opus encoder configured")
	}
	encoder, err := o.deps.NewOpusEncoder(o.deps.AudioConfig.OpusBitRate)
	if err != nil {
		return fmt.Errorf("session: opus encoder: %w", err)
	}

	engine := audio.NewEngine(o.deps.AudioConfig, encoder, o.newOpusDecoder(), o.deps.Denoiser)
	engine.FrameEncoded = o.onFrameEncoded
	o.audioEngine = engine

	if o.deps.NewMicCaptureSource != nil {
		mic, err := o.deps.NewMicCaptureSource()
		if err != nil {
			return fmt.Errorf("session: mic capture source: %w", err)
		}
		if err := mic.Start(engine.HandleCaptureFrame); err != nil {
			return fmt.Errorf("session: mic capture start: %w", err)
		}
		o.captureSource = mic
	}

	if o.deps.NewPlaybackSink != nil {
		sink, err := o.deps.NewPlaybackSink()
		if err != nil {
			return fmt.Errorf("session: playback sink: %w", err)
		}
		if err := sink.Start(engine.HandlePlaybackNeedSamples); err != nil {
			return fmt.Errorf("session: playback start: %w", err)
		}
		o.playbackSink = sink
	}

	return nil
}

func (o *Orchestrator) startStreamSession() error {
	width, height := o.deps.VideoConfig.Width, o.deps.VideoConfig.Height
	if err := o.fsm.SendVideo(o.audioSSRC, o.videoSSRC, o.rtxSSRC,
		int(o.deps.VideoConfig.Bitrate), o.deps.VideoConfig.FPS, width, height); err != nil {
		return fmt.Errorf("session: send video stream description: %w", err)
	}

	if o.deps.NewH264Encoder == nil || o.deps.NewVideoCaptureSource == nil {
		return fmt.Errorf("session: no video capture/encoder configured")
	}
	h264enc, err := o.deps.NewH264Encoder(o.deps.VideoConfig)
	if err != nil {
		return fmt.Errorf("session: h264 encoder: %w", err)
	}
	encoderAdapter, err := video.NewEncoderAdapter(h264enc, o.deps.VideoConfig)
	if err != nil {
		return fmt.Errorf("session: encoder adapter: %w", err)
	}
	o.videoEncoderAdapter = encoderAdapter

	pipeline := video.NewCapturePipeline(o.deps.NewVideoCaptureSource, encoderAdapter, o.deps.VideoConfig.FPS)
	pipeline.OnAccessUnit = o.onAccessUnitEncoded
	pipeline.OnSessionEnd = func() {
		o.handleFatal(fmt.Errorf("session: video capture session ended"))
	}
	if err := pipeline.Start(); err != nil {
		return fmt.Errorf("session: video pipeline start: %w", err)
	}
	o.videoPipeline = pipeline

	if err := o.startStreamAudio(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Orchestrator.startStreamSession",
			"error":    err.Error(),
		}).Warn("loopback audio pipeline failed to start, streaming video only")
	}

	return nil
}

func (o *Orchestrator) startStreamAudio() error {
	if o.deps.NewLoopbackCaptureSource == nil {
		return fmt.Errorf("session: no loopback capture source configured")
	}
	if o.deps.NewOpusEncoder == nil {
		return fmt.Errorf("session: no opus encoder configured")
	}
	loopback, err := o.deps.NewLoopbackCaptureSource()
	if err != nil {
		return err
	}
	encoder, err := o.deps.NewOpusEncoder(o.deps.AudioConfig.OpusBitRate)
	if err != nil {
		return err
	}

	engine := audio.NewEngine(o.deps.AudioConfig, encoder, o.newOpusDecoder(), o.deps.Denoiser)
	engine.FrameEncoded = o.onFrameEncoded

	if err := loopback.Start(engine.HandleCaptureFrame); err != nil {
		return err
	}
	o.audioEngine = engine
	o.captureSource = loopback
	return nil
}

func (o *Orchestrator) newOpusDecoder() func() audio.OpusDecoder {
	if o.deps.NewOpusDecoder != nil {
		return o.deps.NewOpusDecoder
	}
	return func() audio.OpusDecoder { return audio.NewPionOpusDecoder() }
}

func (o *Orchestrator) onFrameEncoded(opusPayload []byte, timestamp uint32) {
	if o.audioSender == nil {
		return
	}
	if err := o.audioSender.Send(opusPayload, timestamp); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Orchestrator.onFrameEncoded",
			"trace_id": o.traceID,
			"error":    err.Error(),
		}).Warn("failed to send audio RTP packet")
		return
	}
	o.quality.IncAudioSent()
}

func (o *Orchestrator) onAccessUnitEncoded(annexB []byte, timestamp90k uint32) {
	if o.videoSender == nil {
		return
	}
	if err := o.videoSender.SendAccessUnit(annexB, timestamp90k); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Orchestrator.onAccessUnitEncoded",
			"error":    err.Error(),
		}).Warn("failed to send video RTP access unit")
		return
	}
	o.quality.IncVideoSent()
}

func (o *Orchestrator) onAudioFrame(ssrc uint32, timestamp uint32, opusPayload []byte) {
	if o.audioEngine == nil {
		return
	}
	o.audioEngine.FeedOpus(ssrc, opusPayload)
	o.quality.IncAudioReceived()
}

func (o *Orchestrator) onSpeakingFrame(userID uint64, ssrc uint32, flags SpeakingFlags) {
	if o.audioEngine != nil {
		o.audioEngine.OnSpeaking(ssrc)
	}
	if o.cb.OnSpeaking != nil {
		o.cb.OnSpeaking(userID, ssrc, flags)
	}
}

func (o *Orchestrator) onStateChange(state ConnectionState) {
	if o.cb.OnStateChange != nil {
		o.cb.OnStateChange(state)
	}
}

func (o *Orchestrator) onHeartbeatAck() {
	o.quality.IncHeartbeatAck()
	o.ackSinceLastCheck.Store(true)
}

func (o *Orchestrator) onGatewayClose(code int, reason string) {
	o.handleFatal(fmt.Errorf("%w: gateway closed (%d %s)", ErrFatalProtocol, code, reason))
}

func (o *Orchestrator) startHeartbeatWatchdog() {
	o.watchdogStop = make(chan struct{})
	o.watchdogWG.Add(1)
	go func() {
		defer o.watchdogWG.Done()
		ticker := time.NewTicker(heartbeatWatchdogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-o.watchdogStop:
				return
			case <-ticker.C:
				if o.ackSinceLastCheck.Swap(false) {
					o.heartbeatMisses.Store(0)
					continue
				}
				misses := o.heartbeatMisses.Add(1)
				if int(misses) >= o.deps.HeartbeatMissThreshold {
					o.handleFatal(fmt.Errorf("%w: heartbeat ack timeout", ErrFatalProtocol))
					return
				}
			}
		}
	}()
}

func (o *Orchestrator) stopHeartbeatWatchdogLocked() {
	if o.watchdogStop == nil {
		return
	}
	close(o.watchdogStop)
	o.watchdogStop = nil
	o.watchdogWG.Wait()
}

// handleUDPPacket dispatches one decrypted-pending datagram by its
// cleartext RTP payload type and SSRC (both sit ahead of the ciphertext,
// per the AEAD framing, so no decrypt is needed to route the packet).
func (o *Orchestrator) handleUDPPacket(payload []byte) {
	if len(payload) < 12 {
		return
	}
	pt := payload[1] & 0x7F
	ssrc := binary.BigEndian.Uint32(payload[8:12])

	switch pt {
	case rtp.AudioPayloadType:
		if o.audioReceiver == nil {
			return
		}
		if err := o.audioReceiver.HandlePacket(payload); err != nil {
			o.noteDecryptFailure(err)
			return
		}
		o.noteDecryptSuccess()
	case rtp.VideoPayloadType:
		o.handleVideoPacket(ssrc, payload)
	default:
		// IP discovery responses and keepalive echoes land here; both are
		// silently dropped since their type byte never matches a real RTP
		// payload type.
	}
}

func (o *Orchestrator) handleVideoPacket(ssrc uint32, payload []byte) {
	entry := o.videoReceiverFor(ssrc)
	if entry == nil {
		return
	}
	if err := entry.receiver.HandlePacket(payload); err != nil {
		o.noteDecryptFailure(err)
		if errors.Is(err, rtp.ErrReassembly) {
			o.quality.IncReassemblyDrop()
		}
		return
	}
	o.noteDecryptSuccess()
}

func (o *Orchestrator) videoReceiverFor(ssrc uint32) *videoReceiverEntry {
	o.videoReceiversMu.Lock()
	defer o.videoReceiversMu.Unlock()

	if e, ok := o.videoReceivers[ssrc]; ok {
		return e
	}
	if o.deps.NewH264Decoder == nil {
		return nil
	}
	codec, err := o.deps.NewH264Decoder()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Orchestrator.videoReceiverFor",
			"ssrc":     ssrc,
			"error":    err.Error(),
		}).Warn("failed to construct H.264 decoder for new video SSRC")
		return nil
	}

	entry := &videoReceiverEntry{decoder: video.NewDecoderAdapter(codec)}
	entry.receiver = rtp.NewVideoReceiver(o.codec, ssrc, func(annexB []byte, timestamp uint32) {
		o.onVideoAccessUnit(entry, annexB, timestamp)
	})
	o.videoReceivers[ssrc] = entry
	return entry
}

func (o *Orchestrator) onVideoAccessUnit(entry *videoReceiverEntry, annexB []byte, timestamp uint32) {
	bgra, width, height, err := entry.decoder.Decode(annexB)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Orchestrator.onVideoAccessUnit",
			"error":    err.Error(),
		}).Warn("H.264 decode failed, dropping access unit")
		return
	}
	if bgra == nil {
		return
	}
	o.quality.IncVideoReceived()
	if o.cb.OnDecodedFrame != nil {
		o.cb.OnDecodedFrame(bgra, width, height)
	}
}

func (o *Orchestrator) noteDecryptFailure(err error) {
	if !errors.Is(err, aead.ErrDecrypt) {
		return
	}
	o.quality.IncDecryptFailure()
	consecutive := o.consecutiveDecryptFailures.Add(1)
	if int(consecutive) >= o.deps.DecryptFailureThreshold {
		o.handleFatal(fmt.Errorf("%w: decrypt failure rate exceeded", ErrFatalProtocol))
	}
}

func (o *Orchestrator) noteDecryptSuccess() {
	o.consecutiveDecryptFailures.Store(0)
}
