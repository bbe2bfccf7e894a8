package receiver

import (
	"time"

	"github.com/netaudio/router/packet"
)

// rtpState tracks per-tag RTP sequence continuity, the only state a
// receiver carries across packets.
type rtpState struct {
	lastSeq    uint16
	haveSeq    bool
	lastSeenAt time.Time
	tsBase     uint32
	haveTsBase bool
}

// observe updates continuity state for one tag given a newly received
// RTP sequence number, returning true if this packet starts a new
// session (a sequence discontinuity beyond slack, or a silence gap
// beyond resetThreshold) and therefore re-anchors the timestamp base.
func (s *rtpState) observe(seq uint16, now time.Time, slack uint16, resetThreshold time.Duration) (reset bool) {
	defer func() {
		s.lastSeq = seq
		s.haveSeq = true
		s.lastSeenAt = now
	}()

	if !s.haveSeq {
		return true
	}
	if resetThreshold > 0 && !s.lastSeenAt.IsZero() && now.Sub(s.lastSeenAt) > resetThreshold {
		return true
	}
	delta := seq - s.lastSeq // wraps naturally for uint16
	if delta == 0 || delta > slack {
		// Either a duplicate/out-of-order packet close to the slack
		// boundary, or a forward jump beyond it. Only the latter is a
		// real discontinuity; small negative wraps (delta near 65535)
		// are reorder noise rather than a reset.
		if delta > slack && delta < 0x8000 {
			return true
		}
	}
	return false
}

// continuityTracker is a tag-keyed map of rtpState, used only by RTP
// receivers.
type continuityTracker struct {
	states map[packet.Tag]*rtpState
}

func newContinuityTracker() *continuityTracker {
	return &continuityTracker{states: make(map[packet.Tag]*rtpState)}
}

func (c *continuityTracker) stateFor(tag packet.Tag) *rtpState {
	st, ok := c.states[tag]
	if !ok {
		st = &rtpState{}
		c.states[tag] = st
	}
	return st
}
