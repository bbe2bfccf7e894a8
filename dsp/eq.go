package dsp

import "math"

// biquad is a single Direct Form I second-order section, used for each
// of the 18 EQ bands.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	x1, x2     float64 // input history
	y1, y2     float64 // output history
}

func (b *biquad) process(x float64) float64 {
	y := b.b0*x + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	b.x2, b.x1 = b.x1, x
	b.y2, b.y1 = b.y1, y
	return y
}

func (b *biquad) reset() {
	b.x1, b.x2, b.y1, b.y2 = 0, 0, 0, 0
}

// peakingEQ designs an RBJ peaking-EQ biquad at centerHz with the
// given gain in dB and a fixed Q suitable for a graphic equalizer band.
func peakingEQ(centerHz, sampleRate, gainDB, q float64) biquad {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * centerHz / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	cosW0 := math.Cos(w0)

	b0 := 1 + alpha*a
	b1 := -2 * cosW0
	b2 := 1 - alpha*a
	a0 := 1 + alpha/a
	a1 := -2 * cosW0
	a2 := 1 - alpha/a

	return biquad{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}
}

// EQ applies the fixed 18-band graphic equalizer per channel, with persistent biquad state across chunks.
type EQ struct {
	sampleRate float64
	q          float64
	gains      [18]float64
	bands      [][18]biquad // per channel
}

// NewEQ creates an 18-band EQ for the given sample rate and channel
// count, all bands initialized to 0 dB (flat).
func NewEQ(sampleRate float64, channels int) *EQ {
	e := &EQ{
		sampleRate: sampleRate,
		q:          1.41, // roughly one-octave bandwidth per band
		bands:      make([][18]biquad, channels),
	}
	e.rebuild()
	return e
}

// SetGains updates all 18 band gains, in dB, rebuilding filter
// coefficients. Existing filter state (x1/x2/y1/y2) is preserved so
// the gain change does not introduce a click.
func (e *EQ) SetGains(gains [18]float64) {
	e.gains = gains
	for ch := range e.bands {
		for b := 0; b < 18; b++ {
			state := e.bands[ch][b]
			coeffs := peakingEQ(EQBandFrequencies[b], e.sampleRate, gains[b], e.q)
			coeffs.x1, coeffs.x2, coeffs.y1, coeffs.y2 = state.x1, state.x2, state.y1, state.y2
			e.bands[ch][b] = coeffs
		}
	}
}

func (e *EQ) rebuild() {
	for ch := range e.bands {
		for b := 0; b < 18; b++ {
			e.bands[ch][b] = peakingEQ(EQBandFrequencies[b], e.sampleRate, e.gains[b], e.q)
		}
	}
}

// Process applies all 18 bands in series to each channel's samples,
// in place.
func (e *EQ) Process(channels [][]int32) error {
	if len(channels) != len(e.bands) {
		return ErrChannelMismatch
	}
	for ch, samples := range channels {
		bands := &e.bands[ch]
		for i, s := range samples {
			x := float64(s)
			for b := 0; b < 18; b++ {
				x = bands[b].process(x)
			}
			samples[i] = clampInt32(x)
		}
	}
	return nil
}

// Reset clears all biquad filter history, used on a discontinuity.
func (e *EQ) Reset() {
	for ch := range e.bands {
		for b := range e.bands[ch] {
			e.bands[ch][b].reset()
		}
	}
}
