package engine_test

import (
	"net"
	"testing"
	"time"

	"github.com/netaudio/router/config"
	"github.com/netaudio/router/engine"
	"github.com/netaudio/router/packet"
	"github.com/netaudio/router/receiver"
	"github.com/stretchr/testify/require"
)

func testFormat() packet.Format {
	return packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2, ChannelLayout: 3}
}

func TestApplyStateIsIdempotent(t *testing.T) {
	eng := engine.New(engine.DefaultConfig())
	defer eng.Close()

	desired := config.DesiredState{
		Sinks: []config.SinkSpec{{
			ID:       "sink1",
			Protocol: config.ProtocolScreamUDP,
			DestAddr: "127.0.0.1:59999",
			Format:   testFormat(),
		}},
		Paths: []config.PathSpec{{
			ID:        "path1",
			SourceTag: "10.0.0.5",
			SinkID:    "sink1",
			Volume:    1.0,
		}},
	}

	result, err := eng.ApplyState(desired)
	require.NoError(t, err)
	require.Equal(t, 1, result.SinksCreated)
	require.Equal(t, 1, result.PathsCreated)
	require.Empty(t, result.Errors)

	result2, err := eng.ApplyState(desired)
	require.NoError(t, err)
	require.Zero(t, result2.SinksCreated)
	require.Zero(t, result2.PathsCreated)
	require.Empty(t, result2.Errors)
}

func TestApplyStateRejectsPathWithUnknownSink(t *testing.T) {
	eng := engine.New(engine.DefaultConfig())
	defer eng.Close()

	result, err := eng.ApplyState(config.DesiredState{
		Paths: []config.PathSpec{{ID: "orphan", SourceTag: "10.0.0.5", SinkID: "nosuchsink"}},
	})
	require.NoError(t, err)
	require.Zero(t, result.PathsCreated)
	require.Len(t, result.Errors, 1)
}

// TestIdentityPathEndToEnd exercises the "scenario 1" flow: a receiver
// sees a new tag, a pending path attaches to it once seen, the path's
// processor passes audio through to a connected sink, and the sink's
// sender emits Scream-UDP datagrams to its destination.
func TestIdentityPathEndToEnd(t *testing.T) {
	eng := engine.New(engine.DefaultConfig())
	defer eng.Close()

	rcfg := receiver.DefaultConfig()
	rcfg.ListenAddr = "127.0.0.1:0"
	require.NoError(t, eng.AddReceiver("rx1", rcfg))
	rxAddr, ok := eng.ReceiverAddr("rx1")
	require.True(t, ok)

	dst, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer dst.Close()
	require.NoError(t, dst.SetReadDeadline(time.Now().Add(5*time.Second)))

	format := testFormat()
	result, err := eng.ApplyState(config.DesiredState{
		Sinks: []config.SinkSpec{{
			ID:       "sink1",
			Protocol: config.ProtocolScreamUDP,
			DestAddr: dst.LocalAddr().String(),
			Format:   format,
		}},
		Paths: []config.PathSpec{{
			ID:        "path1",
			SourceTag: "127.0.0.1",
			SinkID:    "sink1",
			Volume:    1.0,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.SinksCreated)
	require.Equal(t, 1, result.PathsCreated)

	src, err := net.DialUDP("udp", nil, rxAddr.(*net.UDPAddr))
	require.NoError(t, err)
	defer src.Close()

	hdr, err := packet.EncodeScreamHeader(format)
	require.NoError(t, err)
	pcm := make([]byte, format.FrameSize()*480) // 10ms of tone-free PCM
	for i := range pcm {
		pcm[i] = byte(i)
	}
	datagram := append(append([]byte{}, hdr[:]...), pcm...)

	require.Eventually(t, func() bool {
		_, err := src.Write(datagram)
		if err != nil {
			return false
		}
		buf := make([]byte, 65536)
		_ = dst.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := dst.ReadFrom(buf)
		return err == nil && n > packet.ScreamHeaderSize
	}, 5*time.Second, 20*time.Millisecond, "expected a mixed chunk to reach the sink destination")
}
