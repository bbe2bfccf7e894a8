package dsp

import (
	"github.com/sirupsen/logrus"
)

// ChannelMatrix maps an input channel count to an output channel count
// by a linear mix: each output channel is a weighted sum of the input
// channels. Weights[out][in] is the gain
// applied from input channel in into output channel out.
type ChannelMatrix struct {
	InChannels  int
	OutChannels int
	Weights     [][]float64 // [OutChannels][InChannels]
}

// NewChannelMatrix validates and wraps an explicit mixing matrix, used
// when a path configures a custom speaker-layout matrix rather than
// relying on the auto-mode fallback.
func NewChannelMatrix(weights [][]float64) (*ChannelMatrix, error) {
	if len(weights) == 0 {
		return nil, ErrInvalidChannelCount
	}
	inChannels := len(weights[0])
	for _, row := range weights {
		if len(row) != inChannels {
			return nil, ErrChannelMismatch
		}
	}
	return &ChannelMatrix{
		InChannels:  inChannels,
		OutChannels: len(weights),
		Weights:     weights,
	}, nil
}

// AutoChannelMatrix builds the auto-mode fallback matrix for a given
// input/output channel pair: same-channel pass-through when the counts
// match, and standard ITU mono/stereo/5.1 downmix and upmix
// coefficients otherwise.
func AutoChannelMatrix(inChannels, outChannels int) (*ChannelMatrix, error) {
	if inChannels < 1 || outChannels < 1 {
		return nil, ErrInvalidChannelCount
	}

	weights := make([][]float64, outChannels)
	for i := range weights {
		weights[i] = make([]float64, inChannels)
	}

	switch {
	case inChannels == outChannels:
		for i := 0; i < inChannels; i++ {
			weights[i][i] = 1.0
		}
	case inChannels == 1 && outChannels == 2:
		// Mono to stereo: duplicate to both channels.
		weights[0][0] = 1.0
		weights[1][0] = 1.0
	case inChannels == 2 && outChannels == 1:
		// Stereo to mono: equal-power sum (ITU-R BS.775).
		weights[0][0] = 0.7071
		weights[0][1] = 0.7071
	case inChannels == 6 && outChannels == 2:
		// 5.1 (L R C LFE Ls Rs) to stereo downmix per ITU-R BS.775.
		weights[0] = []float64{1.0, 0, 0.7071, 0, 0.7071, 0}
		weights[1] = []float64{0, 1.0, 0.7071, 0, 0, 0.7071}
	case inChannels == 2 && outChannels == 6:
		// Stereo to 5.1 upmix: route L/R, derive a silent center/LFE/surrounds.
		weights[0][0] = 1.0
		weights[1][1] = 1.0
	default:
		// No standard rule: route the first min(in, out) channels
		// directly and leave the rest silent.
		n := inChannels
		if outChannels < n {
			n = outChannels
		}
		for i := 0; i < n; i++ {
			weights[i][i] = 1.0
		}
		logrus.WithFields(logrus.Fields{
			"function":     "AutoChannelMatrix",
			"in_channels":  inChannels,
			"out_channels": outChannels,
		}).Warn("no standard downmix/upmix rule, using direct channel pass-through")
	}

	return &ChannelMatrix{InChannels: inChannels, OutChannels: outChannels, Weights: weights}, nil
}

// Apply mixes per-channel int32 frames through the matrix, returning
// OutChannels buffers of the same frame length.
func (m *ChannelMatrix) Apply(input [][]int32) ([][]int32, error) {
	if len(input) != m.InChannels {
		return nil, ErrChannelMismatch
	}
	if len(input) == 0 || len(input[0]) == 0 {
		return nil, ErrEmptyInput
	}
	frames := len(input[0])

	out := make([][]int32, m.OutChannels)
	for o := range out {
		out[o] = make([]int32, frames)
		row := m.Weights[o]
		for f := 0; f < frames; f++ {
			var acc float64
			for in := 0; in < m.InChannels; in++ {
				acc += float64(input[in][f]) * row[in]
			}
			out[o][f] = clampInt32(acc)
		}
	}
	return out, nil
}
