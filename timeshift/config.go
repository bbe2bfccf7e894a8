package timeshift

import "time"

// RateControllerConfig parameterizes the per-cursor PI rate
// controller.
type RateControllerConfig struct {
	// TargetBufferLevel is the lag behind real-time each cursor's
	// position should converge to ("timeshift.target_buffer_level_ms").
	TargetBufferLevel time.Duration

	// ProportionalGain is the PI controller's proportional term
	// ("sync_proportional_gain").
	ProportionalGain float64

	// IntegralGain is the PI controller's integral term
	// ("sync_integral_gain").
	IntegralGain float64

	// MaxRateAdjustment clamps the controller's output to
	// [1-MaxRateAdjustment, 1+MaxRateAdjustment] ("max_rate_adjustment").
	MaxRateAdjustment float64

	// SmoothingFactor low-pass filters the clamped rate to avoid pitch
	// wobble ("sync_smoothing_factor"), in [0,1); higher values track
	// the raw controller output more closely.
	SmoothingFactor float64

	// MaxCatchupLag is the lag beyond which catch-up mode permits
	// faster slew than SmoothingFactor would otherwise allow
	// ("max_catchup_lag_ms").
	MaxCatchupLag time.Duration
}

// DefaultRateControllerConfig returns conservative defaults tuned for
// voice/music LAN streaming: react within a few chunks, never audibly
// pitch-shift more than a few percent.
func DefaultRateControllerConfig() RateControllerConfig {
	return RateControllerConfig{
		TargetBufferLevel: 200 * time.Millisecond,
		ProportionalGain:  0.15,
		IntegralGain:      0.02,
		MaxRateAdjustment: 0.05,
		SmoothingFactor:   0.2,
		MaxCatchupLag:     1 * time.Second,
	}
}

// Config parameterizes the Manager.
type Config struct {
	// HistorySeconds bounds how far behind real-time the oldest
	// packet for any tag may be ("history_seconds", default 300).
	HistorySeconds float64

	// CleanupInterval is how often the background sweep runs
	// ("cleanup_interval_ms").
	CleanupInterval time.Duration

	// MaxClockPendingPackets bounds total in-flight pending inserts
	// across all partitions ("max_clock_pending_packets").
	MaxClockPendingPackets int

	// MaxPartitionPackets bounds per-tag packet count; beyond this the
	// oldest entries for that tag are dropped on insert, independent
	// of HistorySeconds.
	MaxPartitionPackets int

	// MinLead is the configured minimum lead: a cursor's position may
	// never advance past real-time minus MinLead.
	MinLead time.Duration

	// RateController parameterizes every cursor's PI loop.
	RateController RateControllerConfig
}

// DefaultConfig returns the manager's baseline tunable values.
func DefaultConfig() Config {
	return Config{
		HistorySeconds:         300,
		CleanupInterval:        1 * time.Second,
		MaxClockPendingPackets: 4096,
		MaxPartitionPackets:    1 << 16,
		MinLead:                5 * time.Millisecond,
		RateController:         DefaultRateControllerConfig(),
	}
}
