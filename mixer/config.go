package mixer

import "time"

// PacingMode selects how a mixer's tick is driven.
type PacingMode int

const (
	// PacingWallClock fires ticks from a monotonic scheduler at
	// frames_per_chunk/sample_rate intervals. This is the default.
	PacingWallClock PacingMode = iota
	// PacingHardwareClock defers tick timing to an external device
	// callback (local ALSA playback); Tick is invoked by the caller
	// once per device period instead of by an internal scheduler.
	PacingHardwareClock
)

// Config holds the tunables of one sink mixer.
type Config struct {
	// FramesPerChunk is the number of frames mixed and emitted per
	// tick.
	FramesPerChunk int `yaml:"frames_per_chunk"`
	// LaneWaitDeadline bounds how long a tick waits for a lane's chunk
	// before treating it as silence for that tick.
	LaneWaitDeadline time.Duration `yaml:"lane_wait_deadline"`
	// UnderrunHoldTimeout is how long a lane may go without producing a
	// chunk before it transitions to Stale.
	UnderrunHoldTimeout time.Duration `yaml:"underrun_hold_timeout_ms"`
	// Pacing selects wall-clock or hardware-clock tick timing.
	Pacing PacingMode `yaml:"pacing"`

	// EnableMultiSinkSync joins this mixer to a SyncGroup barrier so
	// its tick phase is held in lock-step with its peers.
	EnableMultiSinkSync bool          `yaml:"enable_multi_sink_sync"`
	BarrierTimeout      time.Duration `yaml:"barrier_timeout_ms"`

	// SyncProportionalGain/SyncIntegralGain/MaxRateAdjustment tune the
	// PI controller that nudges this sink's nominal tick interval to
	// stay aligned with its sync group.
	SyncProportionalGain float64 `yaml:"sync_proportional_gain"`
	SyncIntegralGain     float64 `yaml:"sync_integral_gain"`
	MaxRateAdjustment    float64 `yaml:"max_rate_adjustment"`
}

// DefaultConfig returns mixer defaults: 1152-frame chunks (24ms at
// 48kHz).
func DefaultConfig() Config {
	return Config{
		FramesPerChunk:       1152,
		LaneWaitDeadline:     5 * time.Millisecond,
		UnderrunHoldTimeout:  500 * time.Millisecond,
		Pacing:               PacingWallClock,
		BarrierTimeout:       10 * time.Millisecond,
		SyncProportionalGain: 0.2,
		SyncIntegralGain:     0.02,
		MaxRateAdjustment:    0.05,
	}
}
