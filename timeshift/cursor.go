package timeshift

import (
	"sync"
	"time"

	"github.com/netaudio/router/packet"
)

// Cursor is a consumer's read position into the timeshift buffer, with
// its own playback rate. One cursor
// exists per source path's processor; it is created when the path is
// added and destroyed when the path is removed.
type Cursor struct {
	mu sync.Mutex

	id  uint64
	tag packet.Tag

	// seq/frameOffset is the cursor's logical read position: the next
	// content frame to deliver is frameOffset frames into the packet
	// at sequence seq.
	seq         uint64
	frameOffset int

	rate         float64 // current playback-rate multiplier
	targetLag    time.Duration
	minLead      time.Duration
	rateCfg      RateControllerConfig
	integral     float64
	catchUpUntil time.Time

	underruns uint64
	overruns  uint64

	// lastPositionTime is the ReceivedAt timestamp of the packet the
	// cursor is currently positioned within; used to compute
	// buffer_level_ms for the rate controller.
	lastPositionTime time.Time
}

// ID returns the cursor's stable identifier.
func (c *Cursor) ID() uint64 {
	return c.id
}

// Tag returns the source tag this cursor reads.
func (c *Cursor) Tag() packet.Tag {
	return c.tag
}

// Rate returns the cursor's current playback-rate multiplier.
func (c *Cursor) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// Counters returns the cursor's underrun/overrun counts.
func (c *Cursor) Counters() (underruns, overruns uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.underruns, c.overruns
}

// setRate sets the current playback rate at once, clamped to the
// MaxRateAdjustment band; the change is not slew-limited, and the next
// controller update in ReadNextChunk moves the rate on from this value.
func (c *Cursor) setRate(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = clampRate(rate, c.rateCfg.MaxRateAdjustment)
}

// updateRateController runs one iteration of the PI controller given
// the current buffer level, returning the (possibly unchanged)
// playback rate to use for the next read. catchUp reports whether
// catch-up mode is active (the buffer level exceeded MaxCatchupLag
// within the last MaxCatchupLag), in which the clamp band is doubled
// and smoothing is bypassed; the integral term is not reset.
func (c *Cursor) updateRateController(now time.Time, bufferLevel time.Duration) (rate float64, catchUp bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	errSeconds := (bufferLevel - c.targetLag).Seconds()

	if bufferLevel > c.rateCfg.MaxCatchupLag {
		c.catchUpUntil = now.Add(c.rateCfg.MaxCatchupLag)
	}
	catchingUp := now.Before(c.catchUpUntil)

	c.integral += errSeconds
	// Anti-windup: clamp the integral contribution to the same band as
	// the overall output so a long stall doesn't produce an enormous
	// overshoot once data resumes.
	maxIntegral := c.rateCfg.MaxRateAdjustment / maxFloat(c.rateCfg.IntegralGain, 1e-9)
	c.integral = clampFloat(c.integral, -maxIntegral, maxIntegral)

	raw := 1.0 + c.rateCfg.ProportionalGain*errSeconds + c.rateCfg.IntegralGain*c.integral

	maxAdj := c.rateCfg.MaxRateAdjustment
	if catchingUp {
		maxAdj *= 2
	}
	clamped := clampRate(raw, maxAdj)

	smoothing := c.rateCfg.SmoothingFactor
	if catchingUp {
		smoothing = 1.0 // no smoothing while catching up from a large stall
	}
	c.rate = c.rate + smoothing*(clamped-c.rate)

	return c.rate, catchingUp
}

// reseekTo jumps the cursor directly to a new logical position,
// resetting the integral term.
func (c *Cursor) reseekTo(seq uint64, positionTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = seq
	c.frameOffset = 0
	c.lastPositionTime = positionTime
	c.integral = 0
	c.rate = 1.0
}

func clampRate(rate, maxAdjustment float64) float64 {
	return clampFloat(rate, 1-maxAdjustment, 1+maxAdjustment)
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
