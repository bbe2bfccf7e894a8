package dsp

// EQBandFrequencies are the fixed center frequencies, in Hz, of the
// 18-band graphic equalizer every source processor applies.
var EQBandFrequencies = [18]float64{
	65, 92, 131, 185, 262, 370, 523, 740, 1047, 1480,
	2093, 2960, 4186, 5920, 8372, 11840, 16744, 20000,
}

// Config holds the tunable parameters of the source processor
// pipeline. Values are conservative defaults suitable for voice/music
// LAN routing; paths override per-instance fields (EQ gains, channel
// matrix, volume, normalization flags) separately.
type Config struct {
	// OversamplingFactor is the number of taps-per-phase the polyphase
	// resampler uses; higher values trade CPU for stopband rejection.
	OversamplingFactor int `yaml:"oversampling_factor"`
	// DCFilterCutoffHz is the corner frequency of the single-pole
	// DC-blocking high-pass applied after channel remap and EQ.
	DCFilterCutoffHz float64 `yaml:"dc_filter_cutoff_hz"`
	// NormalizationTargetRMS is the running RMS level the normalizer
	// drives the signal toward when a path enables normalization.
	NormalizationTargetRMS float64 `yaml:"normalization_target_rms"`
	// NormalizationAttack and NormalizationDecay are the asymmetric
	// smoothing coefficients (0..1, higher reacts faster) used to climb
	// toward (attack) or settle back from (decay) the target RMS.
	NormalizationAttack float64 `yaml:"normalization_attack"`
	NormalizationDecay  float64 `yaml:"normalization_decay"`
	// VolumeSmoothingFactor is the per-chunk smoothing coefficient
	// applied to volume changes to avoid zipper noise on step changes.
	VolumeSmoothingFactor float64 `yaml:"volume_smoothing_factor"`
	// DitherNoiseShapingFactor scales the error-feedback term of the
	// noise-shaped dither applied before requantization.
	DitherNoiseShapingFactor float64 `yaml:"dither_noise_shaping_factor"`
	// DiscontinuityThresholdMS is the received-time gap between
	// consecutive source packets beyond which the resampler and filter
	// state are flushed instead of continued.
	DiscontinuityThresholdMS int64 `yaml:"discontinuity_threshold_ms"`
}

// DefaultConfig returns the pipeline defaults used when a path does not
// override them.
func DefaultConfig() Config {
	return Config{
		OversamplingFactor:       8,
		DCFilterCutoffHz:         20.0,
		NormalizationTargetRMS:   0.25,
		NormalizationAttack:      0.2,
		NormalizationDecay:       0.02,
		VolumeSmoothingFactor:    0.1,
		DitherNoiseShapingFactor: 0.5,
		DiscontinuityThresholdMS: 200,
	}
}
