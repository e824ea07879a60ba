// Package quality exposes read-only diagnostic counters for one voice
// session. It supplements the distilled spec, which defines error
// handling but no observability surface, following the teacher's own
// av/quality.go / av/metrics.go pattern: plain atomic counters with a
// Snapshot method. Purely diagnostic — it never gates transmission or
// feeds back into the session's behavior.
package quality

import "sync/atomic"

// Counters tracks per-session packet and liveness statistics.
type Counters struct {
	audioPacketsSent     atomic.Uint64
	audioPacketsReceived atomic.Uint64
	videoPacketsSent     atomic.Uint64
	videoPacketsReceived atomic.Uint64
	decryptFailures      atomic.Uint64
	reassemblyDrops      atomic.Uint64
	heartbeatAcks        atomic.Uint64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	AudioPacketsSent     uint64
	AudioPacketsReceived uint64
	VideoPacketsSent     uint64
	VideoPacketsReceived uint64
	DecryptFailures      uint64
	ReassemblyDrops      uint64
	HeartbeatAcks        uint64
}

// New constructs a zeroed counter set.
func New() *Counters {
	return &Counters{}
}

func (c *Counters) IncAudioSent()     { c.audioPacketsSent.Add(1) }
func (c *Counters) IncAudioReceived() { c.audioPacketsReceived.Add(1) }
func (c *Counters) IncVideoSent()     { c.videoPacketsSent.Add(1) }
func (c *Counters) IncVideoReceived() { c.videoPacketsReceived.Add(1) }
func (c *Counters) IncDecryptFailure() { c.decryptFailures.Add(1) }
func (c *Counters) IncReassemblyDrop() { c.reassemblyDrops.Add(1) }
func (c *Counters) IncHeartbeatAck()   { c.heartbeatAcks.Add(1) }

// Snapshot returns a consistent-enough point-in-time copy; individual
// fields may be read a few nanoseconds apart since no single atomic
// covers the whole struct, which is acceptable for diagnostics.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		AudioPacketsSent:     c.audioPacketsSent.Load(),
		AudioPacketsReceived: c.audioPacketsReceived.Load(),
		VideoPacketsSent:     c.videoPacketsSent.Load(),
		VideoPacketsReceived: c.videoPacketsReceived.Load(),
		DecryptFailures:      c.decryptFailures.Load(),
		ReassemblyDrops:      c.reassemblyDrops.Load(),
		HeartbeatAcks:        c.heartbeatAcks.Load(),
	}
}
