package receiver

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/netaudio/router/packet"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeposit struct {
	mu      sync.Mutex
	packets []*packet.TaggedAudioPacket
	reject  error
}

func (f *fakeDeposit) AddPacket(pkt *packet.TaggedAudioPacket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject != nil {
		return f.reject
	}
	f.packets = append(f.packets, pkt)
	return nil
}

func (f *fakeDeposit) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.packets)
}

func (f *fakeDeposit) last() *packet.TaggedAudioPacket {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.packets) == 0 {
		return nil
	}
	return f.packets[len(f.packets)-1]
}

func senderAddr(t *testing.T) *net.UDPAddr {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp", "192.168.1.77:4010")
	require.NoError(t, err)
	return addr
}

func screamDatagram(t *testing.T, f packet.Format, frames int) []byte {
	t.Helper()
	hdr, err := packet.EncodeScreamHeader(f)
	require.NoError(t, err)
	return append(hdr[:], make([]byte, frames*f.FrameSize())...)
}

func TestHandleDatagramScream(t *testing.T) {
	deposit := &fakeDeposit{}
	r := NewWithConn(DefaultConfig(), deposit, nil)

	f := packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2, ChannelLayout: 0x0003}
	r.handleDatagram(screamDatagram(t, f, 1152), senderAddr(t), time.Now())

	require.Equal(t, 1, deposit.count())
	pkt := deposit.last()
	assert.Equal(t, packet.Tag("192.168.1.77"), pkt.Tag)
	assert.Equal(t, f, pkt.Format)
	assert.Equal(t, 1152, pkt.Frames())
	assert.False(t, pkt.HasRTP)
	assert.Equal(t, uint64(1), r.Stats().PacketsReceived)
}

func TestHandleDatagramScreamTagIncludesPort(t *testing.T) {
	deposit := &fakeDeposit{}
	cfg := DefaultConfig()
	cfg.TagIncludesPort = true
	r := NewWithConn(cfg, deposit, nil)

	f := packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	r.handleDatagram(screamDatagram(t, f, 48), senderAddr(t), time.Now())

	require.Equal(t, 1, deposit.count())
	assert.Equal(t, packet.Tag("192.168.1.77:4010"), deposit.last().Tag)
}

func TestHandleDatagramMalformedDropped(t *testing.T) {
	deposit := &fakeDeposit{}
	r := NewWithConn(DefaultConfig(), deposit, nil)

	// Too short for even the inline header.
	r.handleDatagram([]byte{0x01, 16}, senderAddr(t), time.Now())
	// Unsupported bit depth in the header.
	r.handleDatagram([]byte{0x01, 13, 2, 0, 0}, senderAddr(t), time.Now())
	// Payload not frame-aligned.
	f := packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	hdr, err := packet.EncodeScreamHeader(f)
	require.NoError(t, err)
	r.handleDatagram(append(hdr[:], 0x00), senderAddr(t), time.Now())

	assert.Equal(t, 0, deposit.count())
	assert.Equal(t, uint64(3), r.Stats().MalformedDropped)
}

func TestHandleDatagramRTP(t *testing.T) {
	deposit := &fakeDeposit{}
	cfg := DefaultConfig()
	cfg.Protocol = ProtocolRTP
	r := NewWithConn(cfg, deposit, nil)

	f := packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	pcm := make([]byte, 48*4)
	data, err := packet.EncodeRTPPacket(f, pcm, 10, 5000, 0xABCD, 97)
	require.NoError(t, err)

	r.handleDatagram(data, senderAddr(t), time.Now())

	require.Equal(t, 1, deposit.count())
	pkt := deposit.last()
	assert.Equal(t, packet.Tag("192.168.1.77"), pkt.Tag)
	assert.True(t, pkt.HasRTP)
	assert.Equal(t, uint32(5000), pkt.RTPTimestamp)
	assert.Equal(t, 48, pkt.Frames())
}

func TestHandleDatagramRTPPerProcess(t *testing.T) {
	deposit := &fakeDeposit{}
	cfg := DefaultConfig()
	cfg.Protocol = ProtocolRTPPerProcess
	r := NewWithConn(cfg, deposit, nil)

	f := packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	hdr, err := packet.EncodeScreamHeader(f)
	require.NoError(t, err)
	origin := packet.EncodeRTPOrigination(packet.RTPOrigination{MachineHash: 0xAA01, ProcessHash: 0x0B02})
	payload := append(append(append([]byte{}, origin[:]...), hdr[:]...), make([]byte, 48*4)...)
	data, err := (&rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 97, SequenceNumber: 1, Timestamp: 48, SSRC: 7},
		Payload: payload,
	}).Marshal()
	require.NoError(t, err)

	r.handleDatagram(data, senderAddr(t), time.Now())

	require.Equal(t, 1, deposit.count())
	pkt := deposit.last()
	assert.Equal(t, packet.Tag("192.168.1.77#aa010b02"), pkt.Tag)
	assert.Equal(t, 48, pkt.Frames())
}

func TestHandleDatagramBufferReject(t *testing.T) {
	deposit := &fakeDeposit{reject: context.DeadlineExceeded}
	r := NewWithConn(DefaultConfig(), deposit, nil)

	f := packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	r.handleDatagram(screamDatagram(t, f, 48), senderAddr(t), time.Now())

	assert.Equal(t, uint64(1), r.Stats().PacketsDropped)
	assert.Equal(t, uint64(0), r.Stats().PacketsReceived)
}

func TestRTPStateObserve(t *testing.T) {
	now := time.Now()
	st := &rtpState{}

	// First packet always anchors a new session.
	assert.True(t, st.observe(100, now, 64, 5*time.Second))
	// In-order successor: no reset.
	assert.False(t, st.observe(101, now.Add(time.Millisecond), 64, 5*time.Second))
	// Small reorder (wraps to a huge delta): noise, not a reset.
	assert.False(t, st.observe(100, now.Add(2*time.Millisecond), 64, 5*time.Second))
	// Forward jump beyond slack: session reset.
	assert.True(t, st.observe(1000, now.Add(3*time.Millisecond), 64, 5*time.Second))
	// Silence beyond the reset threshold: session reset.
	assert.True(t, st.observe(1001, now.Add(10*time.Second), 64, 5*time.Second))
}

func TestRTPStateSequenceWrap(t *testing.T) {
	now := time.Now()
	st := &rtpState{}
	st.observe(0xFFFE, now, 64, 5*time.Second)
	assert.False(t, st.observe(0xFFFF, now.Add(time.Millisecond), 64, 5*time.Second))
	assert.False(t, st.observe(0x0000, now.Add(2*time.Millisecond), 64, 5*time.Second))
	assert.False(t, st.observe(0x0001, now.Add(3*time.Millisecond), 64, 5*time.Second))
}

func TestReceiverRunEndToEnd(t *testing.T) {
	deposit := &fakeDeposit{}
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.ReadTimeout = 20 * time.Millisecond

	r, err := New(cfg, deposit)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	sender, err := net.Dial("udp", r.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	f := packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	datagram := screamDatagram(t, f, 48)
	require.Eventually(t, func() bool {
		_, _ = sender.Write(datagram)
		return deposit.count() > 0
	}, 2*time.Second, 50*time.Millisecond)

	require.NoError(t, r.Close())
	assert.GreaterOrEqual(t, r.Stats().PacketsReceived, uint64(1))
}
