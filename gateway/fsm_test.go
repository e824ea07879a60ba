package gateway

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []envelope
	closed bool
	code   int
}

func (c *fakeConn) Send(payload []byte) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}
	c.mu.Lock()
	c.frames = append(c.frames, env)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close(code int) error {
	c.mu.Lock()
	c.closed = true
	c.code = code
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) last() envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames[len(c.frames)-1]
}

func (c *fakeConn) ops() []Opcode {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops := make([]Opcode, len(c.frames))
	for i, f := range c.frames {
		ops[i] = f.Op
	}
	return ops
}

func helloMsg(t *testing.T, intervalMs float64) []byte {
	t.Helper()
	raw, err := encode(OpHello, helloData{HeartbeatInterval: intervalMs})
	require.NoError(t, err)
	return raw
}

func readyMsg(t *testing.T, ssrc uint32, ip string, port uint16, modes []string) []byte {
	t.Helper()
	raw, err := encode(OpReady, readyData{SSRC: ssrc, IP: ip, Port: port, Modes: modes})
	require.NoError(t, err)
	return raw
}

func sessionDescMsg(t *testing.T, mode string, key []byte) []byte {
	t.Helper()
	raw, err := encode(OpSessionDescription, sessionDescriptionData{Mode: mode, SecretKey: key})
	require.NoError(t, err)
	return raw
}

func speakingMsg(t *testing.T, userID string, ssrc uint32, flags SpeakingFlags) []byte {
	t.Helper()
	raw, err := encode(OpSpeaking, speakingData{UserID: userID, SSRC: ssrc, Speaking: flags})
	require.NoError(t, err)
	return raw
}

func TestFSMHappyPathVoiceJoin(t *testing.T) {
	conn := &fakeConn{}
	var states []State
	var sessionSecretKey []byte

	identity := Identity{ServerID: "10", UserID: "5", SessionID: "S", Token: "t1", Kind: SessionVoice}
	cb := Callbacks{
		OnStateChange: func(s State) { states = append(states, s) },
		OnReady: func(ssrc uint32, ip string, port uint16, modes []string) (string, uint16, error) {
			return "9.9.9.9", 55555, nil
		},
		OnSessionDescription: func(mode string, key []byte) error {
			sessionSecretKey = append([]byte(nil), key...)
			return nil
		},
	}

	f := New(conn, identity, cb)
	assert.Equal(t, StateDisconnected, f.State())

	f.HandleOpen()
	require.NoError(t, f.HandleMessage(helloMsg(t, 40000)))
	require.NoError(t, f.HandleMessage(readyMsg(t, 0xABCD0000, "1.2.3.4", 50001, []string{aeadModeName})))
	key := make([]byte, 32)
	for i := range key {
		key[i] = 0x01
	}
	require.NoError(t, f.HandleMessage(sessionDescMsg(t, aeadModeName, key)))

	assert.Equal(t, StateConnected, f.State())
	assert.Equal(t, []State{StateEstablishing, StateConnected}, states)
	assert.Equal(t, key, sessionSecretKey)
	assert.Equal(t, uint32(0xABCD0000), f.SSRC())

	ops := conn.ops()
	require.GreaterOrEqual(t, len(ops), 3)
	assert.Equal(t, OpIdentify, ops[0])
	assert.Equal(t, OpSelectProtocol, ops[1])
	assert.Equal(t, OpSpeaking, ops[2])

	var identify identifyData
	require.NoError(t, json.Unmarshal(conn.frames[0].D, &identify))
	assert.Equal(t, "10", identify.ServerID)

	var selProto selectProtocolData
	require.NoError(t, json.Unmarshal(conn.frames[1].D, &selProto))
	assert.Equal(t, "9.9.9.9", selProto.Data.Address)
	assert.Equal(t, uint16(55555), selProto.Data.Port)
	assert.Equal(t, aeadModeName, selProto.Data.Mode)

	var speaking speakingData
	require.NoError(t, json.Unmarshal(conn.frames[2].D, &speaking))
	assert.Equal(t, SpeakingMicrophone, speaking.Speaking)
}

func TestFSMOrderingRejectsSessionDescriptionBeforeReady(t *testing.T) {
	conn := &fakeConn{}
	identity := Identity{ServerID: "1", UserID: "2", SessionID: "s", Token: "t"}
	f := New(conn, identity, Callbacks{})

	f.HandleOpen()
	require.NoError(t, f.HandleMessage(helloMsg(t, 10000)))

	key := make([]byte, 32)
	err := f.HandleMessage(sessionDescMsg(t, aeadModeName, key))
	assert.ErrorIs(t, err, ErrHandshake)
	assert.NotEqual(t, StateConnected, f.State())
}

func TestFSMReachesConnectedOnlyAfterFullSequence(t *testing.T) {
	conn := &fakeConn{}
	identity := Identity{ServerID: "1", UserID: "2", SessionID: "s", Token: "t"}
	cb := Callbacks{
		OnReady: func(ssrc uint32, ip string, port uint16, modes []string) (string, uint16, error) {
			return "0.0.0.0", 1, nil
		},
	}
	f := New(conn, identity, cb)

	assert.Equal(t, StateDisconnected, f.State())
	f.HandleOpen()
	assert.Equal(t, StateEstablishing, f.State())

	require.NoError(t, f.HandleMessage(helloMsg(t, 10000)))
	assert.Equal(t, StateEstablishing, f.State())

	require.NoError(t, f.HandleMessage(readyMsg(t, 1, "1.1.1.1", 1, []string{aeadModeName})))
	assert.Equal(t, StateEstablishing, f.State())

	key := make([]byte, 32)
	require.NoError(t, f.HandleMessage(sessionDescMsg(t, aeadModeName, key)))
	assert.Equal(t, StateConnected, f.State())
}

func TestFSMSpeakingMapsUserToSSRC(t *testing.T) {
	conn := &fakeConn{}
	var gotUser uint64
	var gotSSRC uint32
	var gotFlags SpeakingFlags
	cb := Callbacks{
		OnSpeaking: func(userID uint64, ssrc uint32, flags SpeakingFlags) {
			gotUser, gotSSRC, gotFlags = userID, ssrc, flags
		},
	}
	f := New(conn, Identity{}, cb)

	require.NoError(t, f.HandleMessage(speakingMsg(t, "99", 0xAAAA, SpeakingMicrophone)))
	assert.Equal(t, uint64(99), gotUser)
	assert.Equal(t, uint32(0xAAAA), gotSSRC)
	assert.Equal(t, SpeakingMicrophone, gotFlags)
}

func TestFSMHandleCloseIsIdempotent(t *testing.T) {
	conn := &fakeConn{}
	var closeCount int
	cb := Callbacks{OnClose: func(code int, reason string) { closeCount++ }}
	f := New(conn, Identity{}, cb)
	f.HandleOpen()

	f.HandleClose(CloseClientDisconnect, "bye")
	f.HandleClose(CloseClientDisconnect, "bye again")

	assert.Equal(t, 1, closeCount)
	assert.Equal(t, StateDisconnected, f.State())
}

func TestFSMUnknownOpcodeIsIgnored(t *testing.T) {
	conn := &fakeConn{}
	f := New(conn, Identity{}, Callbacks{})
	raw, err := encode(Opcode(999), map[string]string{"x": "y"})
	require.NoError(t, err)
	assert.NoError(t, f.HandleMessage(raw))
}
