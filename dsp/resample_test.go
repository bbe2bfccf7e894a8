package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResamplerSameRatePassesThrough(t *testing.T) {
	r, err := NewResampler(48000, 48000, 1, 8)
	require.NoError(t, err)
	assert.True(t, r.SameRate())

	in := [][]int32{{1, 2, 3, 4}}
	out, err := r.Process(in)
	require.NoError(t, err)
	assert.Equal(t, in[0], out[0])
}

func TestResamplerUpsampleProducesExpectedFrameCount(t *testing.T) {
	r, err := NewResampler(24000, 48000, 1, 4)
	require.NoError(t, err)

	in := make([]int32, 480)
	for i := range in {
		in[i] = int32(math.Sin(float64(i)/10) * 1e6)
	}
	out, err := r.Process([][]int32{in})
	require.NoError(t, err)
	assert.InDelta(t, 960, len(out[0]), 2)
}

func TestResamplerRejectsChannelMismatch(t *testing.T) {
	r, err := NewResampler(48000, 44100, 2, 8)
	require.NoError(t, err)
	_, err = r.Process([][]int32{{1, 2}})
	assert.ErrorIs(t, err, ErrChannelMismatch)
}

func TestResamplerFlushResetsState(t *testing.T) {
	r, err := NewResampler(48000, 44100, 1, 8)
	require.NoError(t, err)

	in := make([]int32, 100)
	for i := range in {
		in[i] = int32(i * 1000)
	}
	_, err = r.Process([][]int32{in})
	require.NoError(t, err)

	r.Flush()
	assert.Equal(t, 0.0, r.position)
	for _, h := range r.history[0] {
		assert.Equal(t, int32(0), h)
	}
}
