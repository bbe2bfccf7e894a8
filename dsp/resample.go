package dsp

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// zeroCrossings is the half-width, in input-sample zero crossings, of
// the windowed-sinc kernel used by the polyphase resampler. Combined
// with OversamplingFactor this sets the total tap count.
const zeroCrossings = 8

// Resampler converts PCM between sample rates using a polyphase
// windowed-sinc filter. State (fractional position and filter
// history) persists across calls so streaming chunks resample without
// discontinuities.
type Resampler struct {
	inputRate  uint32
	outputRate uint32
	channels   int
	ratio      float64 // inputRate / outputRate
	cutoff     float64
	halfTaps   int
	position   float64   // fractional read position into the combined history+input stream
	history    [][]int32 // per-channel tail of the previous input, len == halfTaps
}

// NewResampler builds a resampler for a fixed input/output rate pair.
// oversamplingFactor sets taps-per-zero-crossing in the windowed-sinc
// kernel; higher values cost more CPU for sharper stopband rejection.
func NewResampler(inputRate, outputRate uint32, channels int, oversamplingFactor int) (*Resampler, error) {
	if inputRate == 0 || outputRate == 0 {
		return nil, fmt.Errorf("dsp: invalid resampler rates: in=%d out=%d", inputRate, outputRate)
	}
	if channels < 1 {
		return nil, ErrInvalidChannelCount
	}
	if oversamplingFactor < 1 {
		oversamplingFactor = 1
	}

	halfTaps := zeroCrossings * oversamplingFactor
	cutoff := 1.0
	if outputRate < inputRate {
		// Downsampling: cut below the output Nyquist to avoid aliasing.
		cutoff = float64(outputRate) / float64(inputRate)
	}

	history := make([][]int32, channels)
	for i := range history {
		history[i] = make([]int32, halfTaps)
	}

	r := &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		cutoff:     cutoff,
		halfTaps:   halfTaps,
		history:    history,
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewResampler",
		"input_rate":  inputRate,
		"output_rate": outputRate,
		"channels":    channels,
		"half_taps":   halfTaps,
	}).Info("created polyphase resampler")
	return r, nil
}

// kernelWeight evaluates the windowed-sinc lowpass kernel at
// continuous distance x (in input samples) from the tap center,
// providing true fractional-delay interpolation rather than a
// fixed-phase tap table. A Hann window tapers the sinc to zero across
// the kernel's half-width to control ripple.
func (r *Resampler) kernelWeight(x float64) float64 {
	if x <= -float64(r.halfTaps) || x >= float64(r.halfTaps) {
		return 0
	}
	xc := x * r.cutoff
	var sinc float64
	if xc == 0 {
		sinc = 1.0
	} else {
		sinc = math.Sin(math.Pi*xc) / (math.Pi * xc)
	}
	window := 0.5 + 0.5*math.Cos(math.Pi*x/float64(r.halfTaps))
	return sinc * window * r.cutoff
}

// SameRate reports whether this resampler is a no-op pass-through.
func (r *Resampler) SameRate() bool {
	return r.inputRate == r.outputRate
}

// Process resamples per-channel int32 frames, returning the resampled
// per-channel frames. Fractional position and filter history carry
// over to the next call; call Flush to reset state on a
// discontinuity.
func (r *Resampler) Process(input [][]int32) ([][]int32, error) {
	if len(input) != r.channels {
		return nil, ErrChannelMismatch
	}
	if len(input) == 0 || len(input[0]) == 0 {
		return nil, ErrEmptyInput
	}
	if r.SameRate() {
		out := make([][]int32, r.channels)
		for c := range out {
			out[c] = append([]int32(nil), input[c]...)
		}
		return out, nil
	}

	inFrames := len(input[0])
	// Combined stream is history followed by the new input, indexed
	// from 0; position tracks where we are within it.
	combined := make([][]int32, r.channels)
	for c := 0; c < r.channels; c++ {
		combined[c] = make([]int32, 0, r.halfTaps+inFrames)
		combined[c] = append(combined[c], r.history[c]...)
		combined[c] = append(combined[c], input[c]...)
	}
	combinedLen := r.halfTaps + inFrames

	outFrames := int(float64(inFrames)/r.ratio + 0.5)
	out := make([][]int32, r.channels)
	for c := range out {
		out[c] = make([]int32, 0, outFrames)
	}

	pos := r.position
	for f := 0; f < outFrames; f++ {
		center := float64(r.halfTaps) + pos // index into combined stream, offset so history occupies [0, halfTaps)
		base := int(center)
		for c := 0; c < r.channels; c++ {
			out[c] = append(out[c], r.convolve(combined[c], combinedLen, base, center-float64(base)))
		}
		pos += r.ratio
	}
	r.position = pos - float64(inFrames)

	for c := 0; c < r.channels; c++ {
		tail := combined[c]
		if len(tail) >= r.halfTaps {
			copy(r.history[c], tail[len(tail)-r.halfTaps:])
		}
	}

	return out, nil
}

// convolve evaluates the windowed-sinc kernel centered at a fractional
// position within buf, clamping at the edges. Weights are normalized
// by their own sum so the filter preserves unity DC gain regardless of
// where the fractional center falls between input samples.
func (r *Resampler) convolve(buf []int32, length int, base int, frac float64) int32 {
	var acc, weightSum float64
	for k := -r.halfTaps; k <= r.halfTaps; k++ {
		idx := base + k
		if idx < 0 {
			idx = 0
		} else if idx >= length {
			idx = length - 1
		}
		w := r.kernelWeight(float64(k) - frac)
		acc += float64(buf[idx]) * w
		weightSum += w
	}
	if weightSum != 0 {
		acc /= weightSum
	}
	return clampInt32(acc)
}

func clampInt32(v float64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

// Flush discards persistent filter history and resets the fractional
// position, used when a received-time gap exceeds
// discontinuity_threshold_ms to avoid ringing into unrelated audio.
func (r *Resampler) Flush() {
	r.position = 0
	for c := range r.history {
		for i := range r.history[c] {
			r.history[c][i] = 0
		}
	}
}
