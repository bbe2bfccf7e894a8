package timeshift

import (
	"testing"
	"time"

	"github.com/netaudio/router/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a deterministic TimeProvider for tests.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) {
	f.t = f.t.Add(d)
}

func testFormat() packet.Format {
	return packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
}

func makePacket(t *testing.T, tag packet.Tag, at time.Time, frames int) *packet.TaggedAudioPacket {
	t.Helper()
	f := testFormat()
	payload := make([]byte, frames*f.FrameSize())
	p, err := packet.NewTaggedAudioPacket(tag, at, payload, f)
	require.NoError(t, err)
	return p
}

func TestAddPacketAndReadInOrder(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := NewManager(DefaultConfig(), nil)
	defer m.Close()
	m.SetTimeProvider(clock)

	tag := packet.Tag("10.0.0.5")
	cur := m.RegisterCursor(tag, 0)

	require.NoError(t, m.AddPacket(makePacket(t, tag, clock.t, 576)))
	require.NoError(t, m.AddPacket(makePacket(t, tag, clock.t.Add(12*time.Millisecond), 576)))

	// Move past the minimum lead so both packets are readable.
	clock.advance(20 * time.Millisecond)

	chunk, err := m.ReadNextChunk(cur, 576)
	require.NoError(t, err)
	assert.Greater(t, chunk.Frames, 0)
	assert.LessOrEqual(t, chunk.Frames, 1152)
	assert.False(t, chunk.Underrun)
}

func TestReadNextChunkUnderrunOnEmptyTag(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	defer m.Close()

	cur := m.RegisterCursor("nobody", 0)
	_, err := m.ReadNextChunk(cur, 576)
	assert.ErrorIs(t, err, ErrUnderrun)
}

func TestFirstSeenCallback(t *testing.T) {
	seen := make(chan packet.Tag, 1)
	m := NewManager(DefaultConfig(), func(tag packet.Tag) {
		seen <- tag
	})
	defer m.Close()

	require.NoError(t, m.AddPacket(makePacket(t, "1.2.3.4", time.Now(), 10)))

	select {
	case tag := <-seen:
		assert.Equal(t, packet.Tag("1.2.3.4"), tag)
	case <-time.After(time.Second):
		t.Fatal("first-seen callback never fired")
	}
}

func TestExportWindow(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := NewManager(DefaultConfig(), nil)
	defer m.Close()
	m.SetTimeProvider(clock)

	tag := packet.Tag("export-me")
	start := clock.t.Add(-30 * time.Second)
	for i := 0; i < 30; i++ {
		require.NoError(t, m.AddPacket(makePacket(t, tag, start.Add(time.Duration(i)*time.Second), 48000)))
	}

	pcm, format, earliest, latest, err := m.ExportWindow(tag, 10)
	require.NoError(t, err)
	assert.Equal(t, testFormat(), format)
	assert.NotEmpty(t, pcm)
	assert.LessOrEqual(t, latest, 2*time.Second)
	assert.InDelta(t, 10*float64(time.Second), float64(earliest), float64(2*time.Second))
}

func TestExportWindowUnknownTag(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	defer m.Close()

	_, _, _, _, err := m.ExportWindow("ghost", 10)
	assert.ErrorIs(t, err, ErrEmptyPartition)
}

func TestReseekCursorJumpsAndResetsController(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := NewManager(DefaultConfig(), nil)
	defer m.Close()
	m.SetTimeProvider(clock)

	tag := packet.Tag("reseek-me")
	start := clock.t.Add(-10 * time.Second)
	for i := 0; i < 10; i++ {
		require.NoError(t, m.AddPacket(makePacket(t, tag, start.Add(time.Duration(i)*time.Second), 48000)))
	}

	cur := m.RegisterCursor(tag, 0)
	cur.mu.Lock()
	cur.integral = 3.0
	cur.mu.Unlock()

	m.ReseekCursor(cur, 5)

	cur.mu.Lock()
	defer cur.mu.Unlock()
	assert.Zero(t, cur.integral)
	assert.Equal(t, 1.0, cur.rate)
	assert.InDelta(t, 5*float64(time.Second), float64(clock.t.Sub(cur.lastPositionTime)), float64(time.Second))
}

func TestPartitionBackPressureDropsOldest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPartitionPackets = 4
	m := NewManager(cfg, nil)
	defer m.Close()

	tag := packet.Tag("flood")
	now := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, m.AddPacket(makePacket(t, tag, now.Add(time.Duration(i)*time.Millisecond), 10)))
	}

	stats := m.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 4, stats[0].PacketCount)
	assert.Equal(t, uint64(6), stats[0].DroppedFull)
}

func TestCleanupDropsAgedPackets(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	cfg := DefaultConfig()
	cfg.HistorySeconds = 1
	cfg.CleanupInterval = 10 * time.Millisecond
	m := NewManager(cfg, nil)
	defer m.Close()
	m.SetTimeProvider(clock)

	tag := packet.Tag("aging")
	require.NoError(t, m.AddPacket(makePacket(t, tag, clock.t.Add(-5*time.Second), 10)))

	time.Sleep(50 * time.Millisecond)

	stats := m.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 0, stats[0].PacketCount)
	assert.Equal(t, uint64(1), stats[0].DroppedOld)
}
