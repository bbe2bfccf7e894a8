package dsp

import (
	"math"
	"math/rand"
)

// Ditherer requantizes 32-bit intermediate samples down to a sink's
// output bit depth, adding triangular-PDF dither with first-order
// noise shaping to push quantization error above the audible band.
type Ditherer struct {
	outputBitDepth uint8
	shapingFactor  float64
	errorFeedback  []float64 // per channel, previous quantization error
	rng            *rand.Rand
}

// NewDitherer creates a dither stage targeting outputBitDepth, with
// shapingFactor scaling how much of the previous sample's quantization
// error is fed back into the next (0 disables noise shaping).
func NewDitherer(outputBitDepth uint8, shapingFactor float64, channels int, seed int64) *Ditherer {
	return &Ditherer{
		outputBitDepth: outputBitDepth,
		shapingFactor:  shapingFactor,
		errorFeedback:  make([]float64, channels),
		rng:            rand.New(rand.NewSource(seed)),
	}
}

// quantizationStep returns the size of one output LSB in int32 units.
func (d *Ditherer) quantizationStep() float64 {
	if d.outputBitDepth >= 32 {
		return 1.0
	}
	shift := 32 - int(d.outputBitDepth)
	return float64(int64(1) << uint(shift))
}

// Process dithers and requantizes every channel in place, rounding
// each sample to the output bit depth's resolution while leaving the
// values in the 32-bit intermediate representation (the reformat
// stage's encoder extracts the top outputBitDepth bits on Interleave).
func (d *Ditherer) Process(channels [][]int32) error {
	if len(channels) != len(d.errorFeedback) {
		return ErrChannelMismatch
	}
	step := d.quantizationStep()
	if step <= 1.0 {
		return nil // full 32-bit output needs no requantization
	}

	for ch, samples := range channels {
		errFB := d.errorFeedback[ch]
		for i, s := range samples {
			// Triangular-PDF dither: sum of two independent uniforms.
			noise := (d.rng.Float64() + d.rng.Float64() - 1.0) * step

			shaped := float64(s) + noise + d.shapingFactor*errFB
			quantized := (math.Round(shaped / step)) * step

			errFB = shaped - quantized
			samples[i] = clampInt32(quantized)
		}
		d.errorFeedback[ch] = errFB
	}
	return nil
}

// Reset clears the noise-shaping error feedback, used on a
// discontinuity so stale error doesn't bleed into unrelated audio.
func (d *Ditherer) Reset() {
	for i := range d.errorFeedback {
		d.errorFeedback[i] = 0
	}
}
