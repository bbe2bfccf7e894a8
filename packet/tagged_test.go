package packet

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaggedAudioPacketValidatesFrameAlignment(t *testing.T) {
	f := Format{SampleRate: 48000, BitDepth: 16, Channels: 2}

	_, err := NewTaggedAudioPacket("10.0.0.1", time.Now(), make([]byte, 7), f)
	assert.Error(t, err)

	p, err := NewTaggedAudioPacket("10.0.0.1", time.Now(), make([]byte, 8), f)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Frames())
	assert.Equal(t, 1.0, p.PlaybackRate)
}

func TestTagFromAddr(t *testing.T) {
	addr, err := net.ResolveUDPAddr("udp", "192.168.1.50:4010")
	require.NoError(t, err)

	assert.Equal(t, Tag("192.168.1.50"), TagFromAddr(addr, false))
	assert.Equal(t, Tag("192.168.1.50:4010"), TagFromAddr(addr, true))
}

func TestTagFromOrigination(t *testing.T) {
	addr, err := net.ResolveUDPAddr("udp", "192.168.1.50:4010")
	require.NoError(t, err)

	tag := TagFromOrigination(addr, RTPOrigination{MachineHash: 1, ProcessHash: 2})
	assert.Equal(t, Tag("192.168.1.50#00010002"), tag)
}
