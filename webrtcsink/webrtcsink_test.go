package webrtcsink

import (
	"sync"
	"testing"
	"time"

	"github.com/netaudio/router/packet"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOffer(t *testing.T) (*webrtc.PeerConnection, string) {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio)
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	require.NoError(t, pc.SetLocalDescription(offer))
	<-gatherComplete

	return pc, pc.LocalDescription().SDP
}

func TestAddListenerNegotiatesAndInvokesCallbacks(t *testing.T) {
	format := packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	cfg := DefaultConfig()
	cfg.OfferTimeout = 5 * time.Second

	var removed []string
	var mu sync.Mutex
	m := NewManager("sink-1", format, cfg, func(id string) {
		mu.Lock()
		defer mu.Unlock()
		removed = append(removed, id)
	})
	defer m.Close()

	_, offerSDP := newTestOffer(t)

	var gotLocalDesc string
	localDescCh := make(chan struct{})
	ok, err := m.AddListener("listener-1", offerSDP, func(sdp string) {
		gotLocalDesc = sdp
		close(localDescCh)
	}, func(candidate string) {}, "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)

	select {
	case <-localDescCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for local description callback")
	}
	assert.NotEmpty(t, gotLocalDesc)
	assert.Equal(t, 1, m.ListenerCount())

	require.NoError(t, m.Heartbeat("listener-1"))
	require.NoError(t, m.RemoveListener("listener-1"))
	assert.Equal(t, 0, m.ListenerCount())
}

func TestAddListenerDuplicateRejected(t *testing.T) {
	format := packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	m := NewManager("sink-1", format, DefaultConfig(), nil)
	defer m.Close()

	_, offerSDP := newTestOffer(t)
	ok, err := m.AddListener("listener-1", offerSDP, func(string) {}, func(string) {}, "")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.AddListener("listener-1", offerSDP, func(string) {}, func(string) {}, "")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrListenerExists)
}

func TestRemoveUnknownListener(t *testing.T) {
	m := NewManager("sink-1", packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}, DefaultConfig(), nil)
	defer m.Close()
	assert.ErrorIs(t, m.RemoveListener("missing"), ErrListenerNotFound)
}

func TestSweepStaleRemovesListener(t *testing.T) {
	format := packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	cfg := DefaultConfig()
	cfg.HeartbeatTimeout = 10 * time.Millisecond
	cfg.SweepInterval = 5 * time.Millisecond

	removedCh := make(chan string, 1)
	m := NewManager("sink-1", format, cfg, func(id string) { removedCh <- id })
	defer m.Close()

	_, offerSDP := newTestOffer(t)
	ok, err := m.AddListener("listener-1", offerSDP, func(string) {}, func(string) {}, "")
	require.NoError(t, err)
	require.True(t, ok)

	select {
	case id := <-removedCh:
		assert.Equal(t, "listener-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stale sweep")
	}
}
