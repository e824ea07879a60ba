package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// unreachableEndpoint is a loopback address nothing listens on; dialing it
// fails almost immediately with connection-refused rather than waiting out
// the full WebSocket handshake timeout, making it safe to use in a fast
// unit test that only cares whether HostDispatch attempted to connect.
const unreachableEndpoint = "127.0.0.1:1"

func TestHostDispatchWaitsForBothVoiceHalves(t *testing.T) {
	orch := New(Deps{}, Callbacks{})
	hd := NewHostDispatch(orch)

	hd.OnVoiceStateUpdate("sess-1", 42, 7)
	assert.Equal(t, "sess-1", hd.voiceSessionID)
	_, err := orch.CurrentKind()
	assert.ErrorIs(t, err, ErrNotLive, "must not attempt to connect before server info arrives")

	hd.OnVoiceServerUpdate(unreachableEndpoint, "tok", 9)
	_, err = orch.CurrentKind()
	assert.ErrorIs(t, err, ErrNotLive, "dial against an unreachable endpoint must not leave a live session")
}

func TestHostDispatchWaitsForBothStreamHalves(t *testing.T) {
	orch := New(Deps{}, Callbacks{})
	hd := NewHostDispatch(orch)

	hd.OnStreamCreate("stream-1")
	assert.Equal(t, "stream-1", hd.streamKey)
	_, err := orch.CurrentKind()
	assert.ErrorIs(t, err, ErrNotLive)

	hd.OnStreamServerUpdate("stream-1", unreachableEndpoint, "tok")
	_, err = orch.CurrentKind()
	assert.ErrorIs(t, err, ErrNotLive)
}

func TestHostDispatchVoiceLeaveStopsAndClearsStagedSession(t *testing.T) {
	orch := New(Deps{}, Callbacks{})
	hd := NewHostDispatch(orch)

	hd.OnVoiceStateUpdate("sess-1", 42, 7)
	hd.OnVoiceStateUpdate("", 42, 0)

	assert.Equal(t, "", hd.voiceSessionID)
	assert.NoError(t, orch.Stop())
}

func TestHostDispatchStreamDeleteIgnoresMismatchedKey(t *testing.T) {
	orch := New(Deps{}, Callbacks{})
	hd := NewHostDispatch(orch)

	hd.OnStreamCreate("stream-1")
	hd.OnStreamDelete("some-other-stream")

	assert.Equal(t, "stream-1", hd.streamKey, "delete for a different stream key must not clear staged state")
}

func TestHostDispatchStreamDeleteClearsMatchingKey(t *testing.T) {
	orch := New(Deps{}, Callbacks{})
	hd := NewHostDispatch(orch)

	hd.OnStreamCreate("stream-1")
	hd.OnStreamDelete("stream-1")

	assert.Equal(t, "", hd.streamKey)
}
