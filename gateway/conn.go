package gateway

// Conn is the injected duplex text-channel the FSM sends opcodes over. The
// host owns the actual WebSocket read loop and calls HandleOpen/HandleClose/
// HandleMessage as frames arrive; the FSM never reads directly.
//
// Grounded on the teacher's av/signaling.go transport-abstraction shape,
// narrowed to the two operations a JSON-over-WebSocket opcode protocol
// needs.
type Conn interface {
	// Send writes one complete text frame.
	Send(payload []byte) error
	// Close closes the connection with the given WebSocket close code.
	Close(code int) error
}

// SessionKind distinguishes a voice session from a stream (screen-share)
// session; it decides which Speaking flag accompanies SessionDescription.
type SessionKind int

const (
	SessionVoice SessionKind = iota
	SessionStream
)

// Identity carries the fields the opcode-0 Identify payload needs.
type Identity struct {
	ServerID  string
	UserID    string
	SessionID string
	Token     string
	Video     bool
	Kind      SessionKind
}

// ReadyHandler is invoked once a Ready payload's fields are validated. It
// must connect the UDP transport, start the keepalive goroutine, and run
// IP discovery, returning the local address to advertise via
// SelectProtocol.
type ReadyHandler func(ssrc uint32, serverIP string, serverPort uint16, modes []string) (localIP string, localPort uint16, err error)

// SessionHandler is invoked once a SessionDescription payload's secret key
// is validated. It must install the key in the AEAD codec, send a silence
// frame to traverse NAT, and start the UDP receive loop and audio capture.
type SessionHandler func(mode string, secretKey []byte) error

// Callbacks are the host/orchestrator hooks the FSM drives as opcodes
// arrive. All are invoked synchronously on the goroutine that delivered
// the triggering event (HandleOpen/HandleMessage/HandleClose).
type Callbacks struct {
	OnReady              ReadyHandler
	OnSessionDescription SessionHandler
	OnSpeaking           func(userID uint64, ssrc uint32, flags SpeakingFlags)
	OnHeartbeatAck       func()
	OnResumed            func()
	OnStateChange        func(State)
	OnClose              func(code int, reason string)
}
