package dsp

import "math"

// DCBlocker is a single-pole high-pass applied after EQ and channel
// remap to remove accumulated DC offset.
type DCBlocker struct {
	r       float64 // pole position, derived from cutoff
	prevIn  []float64
	prevOut []float64
}

// NewDCBlocker creates a DC-blocking filter for the given cutoff and
// sample rate, one pole per channel.
func NewDCBlocker(cutoffHz, sampleRate float64, channels int) *DCBlocker {
	return &DCBlocker{
		r:       1.0 - (2 * math.Pi * cutoffHz / sampleRate),
		prevIn:  make([]float64, channels),
		prevOut: make([]float64, channels),
	}
}

// Process removes DC offset from each channel in place:
// y[n] = x[n] - x[n-1] + r*y[n-1].
func (d *DCBlocker) Process(channels [][]int32) error {
	if len(channels) != len(d.prevIn) {
		return ErrChannelMismatch
	}
	for ch, samples := range channels {
		x1 := d.prevIn[ch]
		y1 := d.prevOut[ch]
		for i, s := range samples {
			x := float64(s)
			y := x - x1 + d.r*y1
			samples[i] = clampInt32(y)
			x1, y1 = x, y
		}
		d.prevIn[ch] = x1
		d.prevOut[ch] = y1
	}
	return nil
}

// Reset clears filter history, used on a discontinuity.
func (d *DCBlocker) Reset() {
	for i := range d.prevIn {
		d.prevIn[i] = 0
		d.prevOut[i] = 0
	}
}
