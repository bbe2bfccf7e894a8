package packet

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRTPPacketRoundTrip(t *testing.T) {
	f := Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	pcm := make([]byte, 1152*4)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	data, err := EncodeRTPPacket(f, pcm, 7, 1152*7, 0xCAFEBABE, 97)
	require.NoError(t, err)

	pkt, gotF, err := DecodeRTPPacket(data)
	require.NoError(t, err)
	assert.Equal(t, f, gotF)
	assert.Equal(t, uint16(7), pkt.SequenceNumber)
	assert.Equal(t, uint32(1152*7), pkt.Timestamp)
	assert.Equal(t, uint32(0xCAFEBABE), pkt.SSRC)
	assert.Equal(t, pcm, pkt.Payload[ScreamHeaderSize:])
}

func TestRTPOriginationRoundTrip(t *testing.T) {
	o := RTPOrigination{MachineHash: 0xBEEF, ProcessHash: 0x1234}
	wire := EncodeRTPOrigination(o)

	got, err := DecodeRTPOrigination(wire[:])
	require.NoError(t, err)
	assert.Equal(t, o, got)
}

func TestDecodeRTPOriginationRejectsBadCheckByte(t *testing.T) {
	wire := EncodeRTPOrigination(RTPOrigination{MachineHash: 1, ProcessHash: 2})
	wire[4] ^= 0xFF
	_, err := DecodeRTPOrigination(wire[:])
	assert.Error(t, err)
}

func TestDecodeRTPOriginationTooShort(t *testing.T) {
	_, err := DecodeRTPOrigination(make([]byte, 3))
	assert.Error(t, err)
}

func TestDecodeRTPPerProcessPacket(t *testing.T) {
	f := Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	hdr, err := EncodeScreamHeader(f)
	require.NoError(t, err)

	origin := EncodeRTPOrigination(RTPOrigination{MachineHash: 1, ProcessHash: 2})
	pcm := make([]byte, 48*4)
	payload := append(append(append([]byte{}, origin[:]...), hdr[:]...), pcm...)

	raw, err := (&rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 97, SequenceNumber: 3, Timestamp: 99, SSRC: 0x1111},
		Payload: payload,
	}).Marshal()
	require.NoError(t, err)

	pkt, gotOrigin, gotF, rest, err := DecodeRTPPerProcessPacket(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), pkt.SequenceNumber)
	assert.Equal(t, RTPOrigination{MachineHash: 1, ProcessHash: 2}, gotOrigin)
	assert.Equal(t, f, gotF)
	assert.Equal(t, pcm, rest)
}
