package handlers

import (
	"crypto/sha256"
	"time"
)

// StreamGuard watches the upstream read loop for pathological streams:
// the same payload repeating indefinitely, or a stall with no data.
// A tripped guard is a stream fault; the response closes silently.
type StreamGuard struct {
	lastHash   [32]byte
	repeats    int
	maxRepeats int
	lastData   time.Time
	stallLimit time.Duration
}

// NewStreamGuard uses the default limits: 10 consecutive identical payloads
// or 5 minutes without upstream data.
func NewStreamGuard() *StreamGuard {
	return &StreamGuard{
		maxRepeats: 10,
		stallLimit: 5 * time.Minute,
	}
}

// Check records one upstream payload. When abort is true the stream must be
// fault-closed with the given reason.
func (g *StreamGuard) Check(data []byte) (abort bool, reason string) {
	now := time.Now()
	if !g.lastData.IsZero() && now.Sub(g.lastData) > g.stallLimit {
		return true, "stream stalled"
	}
	g.lastData = now

	if len(data) == 0 {
		return false, ""
	}

	hash := sha256.Sum256(data)
	if hash == g.lastHash {
		g.repeats++
		if g.repeats >= g.maxRepeats {
			return true, "repeated chunk detected"
		}
	} else {
		g.repeats = 0
		g.lastHash = hash
	}
	return false, ""
}
