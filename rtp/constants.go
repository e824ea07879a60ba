// Package rtp packetizes and depacketizes the two media substreams over
// the AEAD-sealed RTP wire format: Opus audio (PT=120) and H.264 video
// (PT=101, RFC 6184 FU-A/STAP-A).
//
// Grounded on the teacher's av/rtp/packet.go (AudioPacketizer/
// AudioDepacketizer: sequence/timestamp/SSRC bookkeeping) for the audio
// half, and av/video/rtp.go (VP8 RTPPacketizer/RTPDepacketizer/
// FrameAssembly) for the general shape of the video half, reimplemented
// against H.264/RFC 6184 framing rather than VP8.
package rtp

// AudioPayloadType is the RTP payload type byte for Opus audio.
const AudioPayloadType = 120

// VideoPayloadType is the RTP payload type byte for H.264 video.
const VideoPayloadType = 101

// videoMTU is the largest NAL unit size sent as a single RTP packet.
const videoMTU = 1200

// fuPayloadMax is the largest FU-A fragment payload, leaving room for the
// 2-byte FU indicator/header within the MTU budget.
const fuPayloadMax = 1198

const (
	nalTypeSTAPA = 24
	nalTypeFUA   = 28
)
