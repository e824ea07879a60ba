package gateway

// Opcode identifies a voice gateway message's d-field shape. Numeric values
// are fixed by the wire protocol, not an internal choice.
type Opcode int

const (
	OpIdentify         Opcode = 0
	OpSelectProtocol   Opcode = 1
	OpReady            Opcode = 2
	OpHeartbeat        Opcode = 3
	OpSessionDescription Opcode = 4
	OpSpeaking         Opcode = 5
	OpHeartbeatAck     Opcode = 6
	OpResume           Opcode = 7
	OpHello            Opcode = 8
	OpResumed          Opcode = 9
	OpVideo            Opcode = 12
	OpClientDisconnect Opcode = 13
)

func (o Opcode) String() string {
	switch o {
	case OpIdentify:
		return "Identify"
	case OpSelectProtocol:
		return "SelectProtocol"
	case OpReady:
		return "Ready"
	case OpHeartbeat:
		return "Heartbeat"
	case OpSessionDescription:
		return "SessionDescription"
	case OpSpeaking:
		return "Speaking"
	case OpHeartbeatAck:
		return "HeartbeatAck"
	case OpResume:
		return "Resume"
	case OpHello:
		return "Hello"
	case OpResumed:
		return "Resumed"
	case OpVideo:
		return "Video"
	case OpClientDisconnect:
		return "ClientDisconnect"
	default:
		return "Unknown"
	}
}

// State is the voice gateway connection's lifecycle stage.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateEstablishing
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateEstablishing:
		return "Establishing"
	case StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// SpeakingFlags is the bitset carried on opcode 5.
type SpeakingFlags uint32

const (
	SpeakingMicrophone SpeakingFlags = 1 << 0
	SpeakingSoundshare SpeakingFlags = 1 << 1
	SpeakingPriority   SpeakingFlags = 1 << 2
)

// Close codes the voice gateway or this client may use.
const (
	CloseNormal            = 1000
	CloseClientDisconnect  = 4014
	CloseTimeout           = 4009
)
