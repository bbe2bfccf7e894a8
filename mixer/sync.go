package mixer

import (
	"sync"
	"time"
)

// tickRateController nudges a sink's nominal tick interval to keep its
// phase aligned with its sync group, mirroring the timeshift package's
// per-cursor PI rate controller but operating on tick phase error
// instead of buffer level.
type tickRateController struct {
	proportionalGain float64
	integralGain     float64
	maxAdjustment    float64

	integral float64
	rate     float64
}

func newTickRateController(proportionalGain, integralGain, maxAdjustment float64) *tickRateController {
	return &tickRateController{
		proportionalGain: proportionalGain,
		integralGain:     integralGain,
		maxAdjustment:    maxAdjustment,
		rate:             1.0,
	}
}

// update takes the phase error (seconds this sink's tick landed after
// the group's reference phase; negative means early) and returns the
// tick-rate multiplier for the next tick: the pacing interval is
// divided by it, so a value below 1 slows this sink's ticks.
func (c *tickRateController) update(phaseErrorSeconds float64) float64 {
	c.integral += phaseErrorSeconds
	maxIntegral := c.maxAdjustment / maxFloat(c.integralGain, 1e-9)
	c.integral = clampFloat(c.integral, -maxIntegral, maxIntegral)

	raw := 1.0 + c.proportionalGain*phaseErrorSeconds + c.integralGain*c.integral
	c.rate = clampFloat(raw, 1-c.maxAdjustment, 1+c.maxAdjustment)
	return c.rate
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// SyncGroup holds a barrier for a set of sinks whose output phase must
// stay aligned. Each
// member calls Arrive at the start of its tick and blocks until every
// member has arrived or barrierTimeout elapses, whichever comes first.
// Members that miss the barrier emit silence for that tick rather than
// drift the group out of lock.
type SyncGroup struct {
	mu        sync.Mutex
	members   int
	arrived   int
	gen       uint64
	done      chan struct{}
	closeTime time.Time
}

// NewSyncGroup creates a barrier for the given number of sinks.
func NewSyncGroup(members int) *SyncGroup {
	return &SyncGroup{members: members, done: make(chan struct{})}
}

// SetMembers adjusts the barrier's expected member count, for when a
// sink joins or leaves a sync group at runtime via apply_state. The new
// count applies at once, including to the generation in progress from
// its next Arrive; members already waiting are not woken by the change.
func (g *SyncGroup) SetMembers(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members = n
}

// Arrive blocks until every group member has arrived for the current
// tick or timeout elapses. It returns arrivedInTime, true if the full
// group arrived before the deadline, and phaseError: how far this
// call's own arrival landed from the moment the barrier closed
// (negative when this member arrived early and had to wait for its
// peers, zero for whichever arrival completed the group). phaseError
// is only meaningful when arrivedInTime is true.
func (g *SyncGroup) Arrive(timeout time.Duration) (arrivedInTime bool, phaseError time.Duration) {
	arrivalTime := time.Now()

	g.mu.Lock()
	gen := g.gen
	g.arrived++
	done := g.done
	if g.arrived >= g.members {
		g.arrived = 0
		g.gen++
		g.closeTime = arrivalTime
		g.done = make(chan struct{})
		close(done)
	}
	g.mu.Unlock()

	select {
	case <-done:
		g.mu.Lock()
		closeTime := g.closeTime
		g.mu.Unlock()
		return true, arrivalTime.Sub(closeTime)
	case <-time.After(timeout):
		g.mu.Lock()
		if g.gen == gen {
			// The barrier never completed this generation; withdraw
			// this arrival so it doesn't miscount toward the next one.
			g.arrived--
		}
		g.mu.Unlock()
		return false, 0
	}
}
