package dsp

import (
	"testing"
	"time"

	"github.com/netaudio/router/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProcessorFormat() packet.Format {
	return packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
}

func TestProcessorIdentityPathPreservesFrameCount(t *testing.T) {
	f := testProcessorFormat()
	p, err := NewProcessor(f, f, DefaultConfig())
	require.NoError(t, err)

	frames := 480
	payload := make([]byte, frames*f.FrameSize())

	out, err := p.ProcessChunk(payload, time.Now())
	require.NoError(t, err)
	assert.Equal(t, len(payload), len(out))
}

func TestProcessorApplyParamsChangesVolumeGradually(t *testing.T) {
	f := testProcessorFormat()
	p, err := NewProcessor(f, f, DefaultConfig())
	require.NoError(t, err)

	payload := make([]byte, 480*f.FrameSize())
	for i := range payload {
		if i%2 == 1 {
			payload[i] = 0x10 // nonzero high byte on every 16-bit sample
		}
	}

	p.ApplyParams(PathParams{Volume: 2.0})
	out1, err := p.ProcessChunk(payload, time.Now())
	require.NoError(t, err)
	assert.NotNil(t, out1)
	assert.Less(t, p.volume.CurrentGain(), 2.0)
	assert.Greater(t, p.volume.CurrentGain(), 1.0)
}

func TestProcessorDiscontinuityFlushesState(t *testing.T) {
	f := testProcessorFormat()
	cfg := DefaultConfig()
	cfg.DiscontinuityThresholdMS = 50
	p, err := NewProcessor(f, f, cfg)
	require.NoError(t, err)

	payload := make([]byte, 480*f.FrameSize())
	now := time.Now()
	_, err = p.ProcessChunk(payload, now)
	require.NoError(t, err)

	_, err = p.ProcessChunk(payload, now.Add(500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.dcBlock.prevOut[0])
}

func TestProcessorRejectsBadPayload(t *testing.T) {
	f := testProcessorFormat()
	p, err := NewProcessor(f, f, DefaultConfig())
	require.NoError(t, err)

	_, err = p.ProcessChunk([]byte{0x01, 0x02, 0x03}, time.Now())
	assert.Error(t, err)
}
