package dsp

import (
	"testing"

	"github.com/netaudio/router/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeinterleaveInterleaveRoundTrip16Bit(t *testing.T) {
	f := packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	payload := []byte{
		0x00, 0x10, 0x00, 0x20, // frame 0: ch0=0x1000, ch1=0x2000
		0xff, 0x7f, 0x00, 0x80, // frame 1: ch0=max, ch1=min
	}

	channels, err := Deinterleave(payload, f)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Len(t, channels[0], 2)

	out, err := Interleave(channels, f)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestDeinterleaveRejectsMisalignedPayload(t *testing.T) {
	f := packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	_, err := Deinterleave([]byte{0x00, 0x01, 0x02}, f)
	assert.Error(t, err)
}

func TestDeinterleaveRejectsEmptyPayload(t *testing.T) {
	f := packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	_, err := Deinterleave(nil, f)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestInterleaveRejectsChannelMismatch(t *testing.T) {
	f := packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	_, err := Interleave([][]int32{{1, 2}}, f)
	assert.ErrorIs(t, err, ErrChannelMismatch)
}

func TestDeinterleaveRejectsUnsupportedBitDepth(t *testing.T) {
	f := packet.Format{SampleRate: 48000, BitDepth: 8, Channels: 1}
	_, err := Deinterleave([]byte{128}, f)
	assert.ErrorIs(t, err, ErrUnsupportedBitDepth)
}
