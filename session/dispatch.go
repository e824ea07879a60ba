package session

import (
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// HostDispatch translates the primary chat gateway's voice/stream dispatch
// shapes into Orchestrator.Connect/Stop calls. Not present in the distilled
// spec's component table but implied by the external-interface surface;
// grounded on the teacher's av/manager.go registerPacketHandlers pattern of
// a thin adapter between an external dispatch shape and the manager's own
// calls.
//
// One HostDispatch drives one Orchestrator; since the orchestrator owns at
// most one live session, connecting a stream tears down a live voice
// session and vice versa.
type HostDispatch struct {
	orch *Orchestrator

	mu sync.Mutex

	userID string

	voiceEndpoint  string
	voiceToken     string
	voiceGuildID   string
	voiceSessionID string

	streamKey      string
	streamEndpoint string
	streamToken    string
}

// NewHostDispatch constructs a dispatcher bound to orch.
func NewHostDispatch(orch *Orchestrator) *HostDispatch {
	return &HostDispatch{orch: orch}
}

// OnVoiceStateUpdate stages the session id for the voice channel userID is
// now in. channelID == 0 means userID (the local user) left voice entirely,
// which stops any live session.
func (h *HostDispatch) OnVoiceStateUpdate(sessionID string, userID, channelID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.userID = strconv.FormatUint(userID, 10)

	if channelID == 0 {
		h.voiceSessionID = ""
		if err := h.orch.Stop(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "HostDispatch.OnVoiceStateUpdate",
				"error":    err.Error(),
			}).Warn("failed to stop voice session on disconnect")
		}
		return
	}

	h.voiceSessionID = sessionID
	h.maybeConnectVoiceLocked()
}

// OnVoiceServerUpdate stages the transport info for the voice session.
func (h *HostDispatch) OnVoiceServerUpdate(endpoint, token string, guildID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.voiceEndpoint = endpoint
	h.voiceToken = token
	h.voiceGuildID = strconv.FormatUint(guildID, 10)
	h.maybeConnectVoiceLocked()
}

func (h *HostDispatch) maybeConnectVoiceLocked() {
	if h.voiceSessionID == "" || h.voiceEndpoint == "" || h.voiceToken == "" {
		return
	}
	params := ConnectParams{
		Endpoint:  h.voiceEndpoint,
		Token:     h.voiceToken,
		ServerID:  h.voiceGuildID,
		UserID:    h.userID,
		SessionID: h.voiceSessionID,
		Kind:      SessionVoice,
	}
	if err := h.orch.Connect(params); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HostDispatch.maybeConnectVoiceLocked",
			"error":    err.Error(),
		}).Error("failed to connect voice session")
	}
}

// OnStreamCreate stages streamKey, the identifier the subsequent
// OnStreamServerUpdate for this stream will carry.
func (h *HostDispatch) OnStreamCreate(streamKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streamKey = streamKey
	h.maybeConnectStreamLocked()
}

// OnStreamServerUpdate stages the transport info for streamKey. A stream
// session's Identify ServerID is the server id parsed out of a streamKey
// of the form guild:<server_id>:<channel_id>:<user_id>; a key of any other
// form is used as the ServerID unchanged.
func (h *HostDispatch) OnStreamServerUpdate(streamKey, endpoint, token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streamKey = streamKey
	h.streamEndpoint = endpoint
	h.streamToken = token
	h.maybeConnectStreamLocked()
}

func (h *HostDispatch) maybeConnectStreamLocked() {
	if h.streamKey == "" || h.streamEndpoint == "" || h.streamToken == "" {
		return
	}
	serverID := h.streamKey
	if parts := strings.Split(h.streamKey, ":"); len(parts) == 4 && parts[0] == "guild" {
		serverID = parts[1]
	}
	params := ConnectParams{
		Endpoint:  h.streamEndpoint,
		Token:     h.streamToken,
		ServerID:  serverID,
		UserID:    h.userID,
		SessionID: h.streamKey,
		Kind:      SessionStream,
	}
	if err := h.orch.Connect(params); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HostDispatch.maybeConnectStreamLocked",
			"error":    err.Error(),
		}).Error("failed to connect stream session")
	}
}

// OnStreamDelete ends the streaming session for streamKey, if it is the
// one currently staged or live.
func (h *HostDispatch) OnStreamDelete(streamKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if streamKey != h.streamKey {
		return
	}
	h.streamKey = ""
	h.streamEndpoint = ""
	h.streamToken = ""
	if err := h.orch.Stop(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HostDispatch.OnStreamDelete",
			"error":    err.Error(),
		}).Warn("failed to stop stream session")
	}
}
