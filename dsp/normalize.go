package dsp

import "math"

// Normalizer drives the signal's running RMS toward a target level
// with asymmetric attack/decay smoothing.
// It is only applied when a path enables normalization.
type Normalizer struct {
	targetRMS   float64
	attack      float64
	decay       float64
	currentGain float64
	smoothedRMS float64
}

// NewNormalizer creates a normalizer with the given target RMS
// (0.0-1.0 of full scale) and attack/decay smoothing coefficients.
func NewNormalizer(targetRMS, attack, decay float64) *Normalizer {
	return &Normalizer{
		targetRMS:   targetRMS,
		attack:      attack,
		decay:       decay,
		currentGain: 1.0,
	}
}

// Process rescales all channels in place toward the target RMS,
// measuring level across all channels jointly so a normalization gain
// change never shifts the stereo (or multichannel) image.
func (n *Normalizer) Process(channels [][]int32) error {
	if len(channels) == 0 || len(channels[0]) == 0 {
		return nil
	}
	frames := len(channels[0])

	var sumSquares float64
	var count int
	for _, samples := range channels {
		for _, s := range samples {
			v := float64(s) / math.MaxInt32
			sumSquares += v * v
			count++
		}
	}
	if count == 0 {
		return nil
	}
	rms := math.Sqrt(sumSquares / float64(count))

	if rms > n.smoothedRMS {
		n.smoothedRMS += (rms - n.smoothedRMS) * n.attack
	} else {
		n.smoothedRMS += (rms - n.smoothedRMS) * n.decay
	}

	desiredGain := 1.0
	if n.smoothedRMS > 1e-9 {
		desiredGain = n.targetRMS / n.smoothedRMS
	}
	// The gain itself is smoothed the same way as the level measurement
	// so normalization never introduces a step change mid-chunk.
	if desiredGain > n.currentGain {
		n.currentGain += (desiredGain - n.currentGain) * n.attack
	} else {
		n.currentGain += (desiredGain - n.currentGain) * n.decay
	}

	for _, samples := range channels {
		for i := 0; i < frames; i++ {
			samples[i] = clampInt32(float64(samples[i]) * n.currentGain)
		}
	}
	return nil
}

// Reset clears the normalizer's running level estimate.
func (n *Normalizer) Reset() {
	n.currentGain = 1.0
	n.smoothedRMS = 0
}
