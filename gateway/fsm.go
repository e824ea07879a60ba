// Package gateway implements the voice gateway's WebSocket-framed state
// machine: Hello -> Identify -> Ready -> SelectProtocol ->
// SessionDescription -> Connected, plus the heartbeat loop.
//
// Grounded on the teacher's av/signaling.go state-machine shape and on the
// reference Discord voice-gateway opcode/payload encoding retrieved from
// the kausikk-discordyt gateway source (opcode numbering, voiceHelloData/
// voiceReadyData/voiceSessDesc JSON shapes) — reimplemented from scratch in
// the teacher's idiom: sentinel errors, logrus structured logging,
// constructor validation.
package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const secretKeySize = 32

// aeadModeName is the only encryption mode this core supports.
const aeadModeName = "aead_xchacha20_poly1305_rtpsize"

// FSM drives one voice gateway session's opcode protocol.
type FSM struct {
	conn     Conn
	identity Identity
	cb       Callbacks

	state atomic.Int32

	ssrc atomic.Uint32

	// readySeen is set once a Ready payload has been handled successfully;
	// SessionDescription is rejected until then.
	readySeen atomic.Bool

	heartbeatStop chan struct{}
	heartbeatOnce sync.Once
	wg            sync.WaitGroup

	mu sync.Mutex // guards heartbeatStop creation/teardown races
}

// New constructs an FSM bound to conn and identity. Any callback may be
// nil and is then simply never called, except OnReady: with no OnReady
// installed, every Ready payload fails with ErrHandshake.
func New(conn Conn, identity Identity, cb Callbacks) *FSM {
	f := &FSM{
		conn:     conn,
		identity: identity,
		cb:       cb,
	}
	f.state.Store(int32(StateDisconnected))
	return f
}

// State returns the current lifecycle stage. Safe from any goroutine.
func (f *FSM) State() State {
	return State(f.state.Load())
}

func (f *FSM) setState(s State) {
	f.state.Store(int32(s))
	if f.cb.OnStateChange != nil {
		f.cb.OnStateChange(s)
	}
}

// SSRC returns the audio SSRC assigned by Ready, or 0 before it arrives.
func (f *FSM) SSRC() uint32 {
	return f.ssrc.Load()
}

// HandleOpen marks the connection as open and awaits Hello.
func (f *FSM) HandleOpen() {
	f.setState(StateEstablishing)
	logrus.WithFields(logrus.Fields{
		"function": "FSM.HandleOpen",
	}).Info("voice gateway connection opened")
}

// HandleClose tears down the heartbeat loop and transitions to
// Disconnected, unless already there.
func (f *FSM) HandleClose(code int, reason string) {
	if f.State() == StateDisconnected {
		return
	}
	f.stopHeartbeat()
	f.setState(StateDisconnected)
	logrus.WithFields(logrus.Fields{
		"function": "FSM.HandleClose",
		"code":     code,
		"reason":   reason,
	}).Warn("voice gateway connection closed")
	if f.cb.OnClose != nil {
		f.cb.OnClose(code, reason)
	}
}

// HandleMessage parses and dispatches one incoming frame.
func (f *FSM) HandleMessage(raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	switch env.Op {
	case OpHello:
		return f.handleHello(env.D)
	case OpReady:
		return f.handleReady(env.D)
	case OpSessionDescription:
		return f.handleSessionDescription(env.D)
	case OpSpeaking:
		return f.handleSpeaking(env.D)
	case OpHeartbeatAck:
		return f.handleHeartbeatAck(env.D)
	case OpResumed:
		return f.handleResumed()
	case OpClientDisconnect:
		return f.handleClientDisconnect(env.D)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "FSM.HandleMessage",
			"opcode":   int(env.Op),
		}).Debug("unhandled voice gateway opcode")
		return nil
	}
}

func (f *FSM) handleHello(d json.RawMessage) error {
	var hello helloData
	if err := json.Unmarshal(d, &hello); err != nil || hello.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: invalid Hello payload", ErrHandshake)
	}

	f.startHeartbeat(time.Duration(hello.HeartbeatInterval) * time.Millisecond)

	return f.sendIdentify()
}

func (f *FSM) sendIdentify() error {
	payload := identifyData{
		ServerID:  f.identity.ServerID,
		UserID:    f.identity.UserID,
		SessionID: f.identity.SessionID,
		Token:     f.identity.Token,
		Video:     f.identity.Video,
	}
	return f.send(OpIdentify, payload)
}

func (f *FSM) handleReady(d json.RawMessage) error {
	var ready readyData
	if err := json.Unmarshal(d, &ready); err != nil || ready.IP == "" || ready.Port == 0 {
		return fmt.Errorf("%w: invalid Ready payload", ErrHandshake)
	}

	supportsMode := false
	for _, m := range ready.Modes {
		if m == aeadModeName {
			supportsMode = true
			break
		}
	}
	if !supportsMode {
		logrus.WithFields(logrus.Fields{
			"function": "FSM.handleReady",
			"modes":    ready.Modes,
		}).Warn("server did not advertise aead_xchacha20_poly1305_rtpsize; continuing anyway")
	}

	f.ssrc.Store(ready.SSRC)

	if f.cb.OnReady == nil {
		return fmt.Errorf("%w: no Ready handler installed", ErrHandshake)
	}
	localIP, localPort, err := f.cb.OnReady(ready.SSRC, ready.IP, ready.Port, ready.Modes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	f.readySeen.Store(true)

	return f.sendSelectProtocol(localIP, localPort)
}

func (f *FSM) sendSelectProtocol(address string, port uint16) error {
	payload := selectProtocolData{
		Protocol: "udp",
		Data: selectProtocolDataFields{
			Address: address,
			Port:    port,
			Mode:    aeadModeName,
		},
	}
	return f.send(OpSelectProtocol, payload)
}

func (f *FSM) handleSessionDescription(d json.RawMessage) error {
	if !f.readySeen.Load() {
		return fmt.Errorf("%w: SessionDescription before Ready", ErrHandshake)
	}
	var sess sessionDescriptionData
	if err := json.Unmarshal(d, &sess); err != nil || len(sess.SecretKey) != secretKeySize {
		return fmt.Errorf("%w: invalid SessionDescription payload", ErrHandshake)
	}
	if sess.Mode != aeadModeName {
		return fmt.Errorf("%w: unsupported mode %q", ErrHandshake, sess.Mode)
	}

	if f.cb.OnSessionDescription != nil {
		if err := f.cb.OnSessionDescription(sess.Mode, sess.SecretKey); err != nil {
			return fmt.Errorf("%w: %v", ErrHandshake, err)
		}
	}

	flags := SpeakingMicrophone
	if f.identity.Kind == SessionStream {
		flags = SpeakingSoundshare
	}
	if err := f.SendSpeaking(0, f.ssrc.Load(), flags); err != nil {
		return err
	}

	f.setState(StateConnected)
	logrus.WithFields(logrus.Fields{
		"function": "FSM.handleSessionDescription",
	}).Info("voice gateway session established")
	return nil
}

func (f *FSM) handleSpeaking(d json.RawMessage) error {
	var sp speakingData
	if err := json.Unmarshal(d, &sp); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "FSM.handleSpeaking",
			"error":    err.Error(),
		}).Debug("dropping malformed Speaking payload")
		return nil
	}
	userID, err := strconv.ParseUint(sp.UserID, 10, 64)
	if err != nil {
		return nil
	}
	if f.cb.OnSpeaking != nil {
		f.cb.OnSpeaking(userID, sp.SSRC, sp.Speaking)
	}
	return nil
}

func (f *FSM) handleHeartbeatAck(d json.RawMessage) error {
	if f.cb.OnHeartbeatAck != nil {
		f.cb.OnHeartbeatAck()
	}
	return nil
}

func (f *FSM) handleResumed() error {
	f.setState(StateConnected)
	if f.cb.OnResumed != nil {
		f.cb.OnResumed()
	}
	return nil
}

func (f *FSM) handleClientDisconnect(d json.RawMessage) error {
	// Informational: some other participant left. No FSM state change.
	return nil
}

// SendSpeaking sends opcode 5. userID is omitted from the wire payload
// (clients never set it; only the server echoes it back).
func (f *FSM) SendSpeaking(userID uint64, ssrc uint32, flags SpeakingFlags) error {
	return f.send(OpSpeaking, speakingData{SSRC: ssrc, Speaking: flags})
}

// SendVideo sends the opcode-12 stream-description payload used by stream
// (screen-share) sessions once Connected.
func (f *FSM) SendVideo(audioSSRC, videoSSRC, rtxSSRC uint32, maxBitrate, maxFramerate, width, height int) error {
	payload := videoData{
		AudioSSRC: audioSSRC,
		VideoSSRC: videoSSRC,
		RTXSSRC:   rtxSSRC,
		Streams: []videoStream{{
			Type:         "video",
			RID:          "100",
			SSRC:         videoSSRC,
			Active:       true,
			Quality:      100,
			MaxBitrate:   maxBitrate,
			MaxFramerate: maxFramerate,
			MaxResolution: videoResolution{
				Type:   "fixed",
				Width:  width,
				Height: height,
			},
		}},
		Codecs: []videoCodec{{
			Name:           "H264",
			Type:           "video",
			Priority:       1000,
			PayloadType:    101,
			RTXPayloadType: 102,
		}},
	}
	return f.send(OpVideo, payload)
}

// SendResume sends opcode 7, used by the session orchestrator's reconnect
// path to avoid redoing the full Identify handshake.
func (f *FSM) SendResume() error {
	return f.send(OpResume, resumeData{
		ServerID:  f.identity.ServerID,
		SessionID: f.identity.SessionID,
		Token:     f.identity.Token,
	})
}

func (f *FSM) send(op Opcode, payload interface{}) error {
	if f.conn == nil {
		return ErrNotConnected
	}
	raw, err := encode(op, payload)
	if err != nil {
		return err
	}
	if err := f.conn.Send(raw); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "FSM.send",
			"opcode":   op.String(),
			"error":    err.Error(),
		}).Warn("failed to send voice gateway frame")
		return err
	}
	return nil
}

func (f *FSM) startHeartbeat(interval time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeatStop = make(chan struct{})
	f.heartbeatOnce = sync.Once{}
	stop := f.heartbeatStop

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = f.send(OpHeartbeat, uint64(time.Now().UnixMilli()))
			}
		}
	}()
}

func (f *FSM) stopHeartbeat() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heartbeatStop == nil {
		return
	}
	f.heartbeatOnce.Do(func() {
		close(f.heartbeatStop)
	})
	f.wg.Wait()
}
