package gateway

import "encoding/json"

// envelope is the outer {op, d} shape every voice gateway message shares.
type envelope struct {
	Op Opcode          `json:"op"`
	D  json.RawMessage `json:"d"`
}

func encode(op Opcode, d interface{}) ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Op: op, D: raw})
}

// helloData is the opcode-8 payload.
type helloData struct {
	HeartbeatInterval float64 `json:"heartbeat_interval"`
}

// identifyData is the opcode-0 payload. Snowflakes are strings on the wire.
type identifyData struct {
	ServerID  string `json:"server_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
	Video     bool   `json:"video"`
}

// readyData is the opcode-2 payload.
type readyData struct {
	SSRC  uint32   `json:"ssrc"`
	IP    string   `json:"ip"`
	Port  uint16   `json:"port"`
	Modes []string `json:"modes"`
}

// selectProtocolData is the opcode-1 payload this client sends.
type selectProtocolData struct {
	Protocol string                   `json:"protocol"`
	Data     selectProtocolDataFields `json:"data"`
}

type selectProtocolDataFields struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
	Mode    string `json:"mode"`
}

// sessionDescriptionData is the opcode-4 payload.
type sessionDescriptionData struct {
	Mode      string `json:"mode"`
	SecretKey []byte `json:"secret_key"`
}

// speakingData is the opcode-5 payload, sent and received.
type speakingData struct {
	UserID string        `json:"user_id,omitempty"`
	SSRC   uint32        `json:"ssrc"`
	Speaking SpeakingFlags `json:"speaking"`
}

// heartbeatAckData is the opcode-6 payload; its contents are not
// interpreted, only its arrival.
type heartbeatAckData struct {
	T uint64 `json:"t"`
}

// resumeData is the opcode-7 payload.
type resumeData struct {
	ServerID  string `json:"server_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

// videoStream is one entry of the opcode-12 streams array.
type videoStream struct {
	Type         string `json:"type"`
	RID          string `json:"rid"`
	SSRC         uint32 `json:"ssrc"`
	Active       bool   `json:"active"`
	Quality      int    `json:"quality"`
	MaxBitrate   int    `json:"max_bitrate"`
	MaxFramerate int    `json:"max_framerate"`
	MaxResolution videoResolution `json:"max_resolution"`
}

type videoResolution struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// videoCodec is one entry of the opcode-12 codecs array.
type videoCodec struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Priority       int    `json:"priority"`
	PayloadType    uint8  `json:"payload_type"`
	RTXPayloadType uint8  `json:"rtx_payload_type"`
}

// videoData is the opcode-12 payload.
type videoData struct {
	AudioSSRC uint32        `json:"audio_ssrc"`
	VideoSSRC uint32        `json:"video_ssrc"`
	RTXSSRC   uint32        `json:"rtx_ssrc"`
	Streams   []videoStream `json:"streams"`
	Codecs    []videoCodec  `json:"codecs"`
}
