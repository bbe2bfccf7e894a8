package mixer

import (
	"sync"
	"testing"
	"time"

	"github.com/netaudio/router/dsp"
	"github.com/netaudio/router/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConsumer struct {
	mu     sync.Mutex
	chunks [][]byte
	seqs   []uint32
}

func (f *fakeConsumer) ConsumeChunk(pcm []byte, frames int, seq uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), pcm...)
	f.chunks = append(f.chunks, cp)
	f.seqs = append(f.seqs, seq)
	return nil
}

func (f *fakeConsumer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks)
}

func testMixFormat() packet.Format {
	return packet.Format{SampleRate: 48000, BitDepth: 16, Channels: 1}
}

func constantChunk(f packet.Format, frames int, value int32) []byte {
	samples := make([]int32, frames)
	for i := range samples {
		samples[i] = value << 16 // top bits occupied, matches Deinterleave's 16-bit convention
	}
	out, _ := dsp.Interleave([][]int32{samples}, f)
	return out
}

func TestMixerSumsTwoLanes(t *testing.T) {
	f := testMixFormat()
	cfg := DefaultConfig()
	cfg.FramesPerChunk = 4
	cfg.LaneWaitDeadline = 20 * time.Millisecond

	consumer := &fakeConsumer{}
	m := NewMixer("sink-1", f, cfg, consumer, nil)
	require.NoError(t, m.AddLane("path-a"))
	require.NoError(t, m.AddLane("path-b"))

	require.NoError(t, m.PushChunk("path-a", constantChunk(f, 4, 100), 4))
	require.NoError(t, m.PushChunk("path-b", constantChunk(f, 4, 50), 4))

	m.Tick()

	require.Equal(t, 1, consumer.count())
	decoded, err := dsp.Deinterleave(consumer.chunks[0], f)
	require.NoError(t, err)
	assert.Equal(t, int32(150), decoded[0][0]>>16)
}

func TestMixerEmitsSilenceWhenNoLaneReady(t *testing.T) {
	f := testMixFormat()
	cfg := DefaultConfig()
	cfg.FramesPerChunk = 4
	cfg.LaneWaitDeadline = time.Millisecond

	consumer := &fakeConsumer{}
	m := NewMixer("sink-1", f, cfg, consumer, nil)
	require.NoError(t, m.AddLane("path-a"))

	m.Tick()

	require.Equal(t, 1, consumer.count())
	for _, b := range consumer.chunks[0] {
		assert.Equal(t, byte(0), b)
	}
}

func TestMixerAddLaneRejectsDuplicate(t *testing.T) {
	f := testMixFormat()
	m := NewMixer("sink-1", f, DefaultConfig(), &fakeConsumer{}, nil)
	require.NoError(t, m.AddLane("path-a"))
	assert.ErrorIs(t, m.AddLane("path-a"), ErrLaneExists)
}

func TestMixerRemoveLaneUnknown(t *testing.T) {
	f := testMixFormat()
	m := NewMixer("sink-1", f, DefaultConfig(), &fakeConsumer{}, nil)
	assert.ErrorIs(t, m.RemoveLane("ghost"), ErrLaneNotFound)
}

func TestMixerSideTapReceivesChunks(t *testing.T) {
	f := testMixFormat()
	cfg := DefaultConfig()
	cfg.FramesPerChunk = 4
	cfg.LaneWaitDeadline = time.Millisecond

	primary := &fakeConsumer{}
	tap := &fakeConsumer{}
	m := NewMixer("sink-1", f, cfg, primary, nil)
	m.AddSideTap(tap)
	require.NoError(t, m.AddLane("path-a"))
	require.NoError(t, m.PushChunk("path-a", constantChunk(f, 4, 10), 4))

	m.Tick()

	assert.Equal(t, 1, primary.count())
	assert.Equal(t, 1, tap.count())
}

func TestSyncGroupBarrierReleasesAllOnFullArrival(t *testing.T) {
	g := NewSyncGroup(2)
	results := make(chan bool, 2)
	go func() { ok, _ := g.Arrive(time.Second); results <- ok }()
	go func() { ok, _ := g.Arrive(time.Second); results <- ok }()

	r1 := <-results
	r2 := <-results
	assert.True(t, r1)
	assert.True(t, r2)
}

func TestSyncGroupBarrierTimesOutWithMissingMember(t *testing.T) {
	g := NewSyncGroup(2)
	arrivedInTime, _ := g.Arrive(10 * time.Millisecond)
	assert.False(t, arrivedInTime)
}

func TestSyncGroupBarrierReportsPhaseErrorForEarlyArrival(t *testing.T) {
	g := NewSyncGroup(2)
	results := make(chan time.Duration, 1)
	go func() {
		_, phaseError := g.Arrive(time.Second)
		results <- phaseError
	}()
	time.Sleep(20 * time.Millisecond)
	closingOK, closingPhaseError := g.Arrive(time.Second)

	waitingPhaseError := <-results
	assert.True(t, closingOK)
	assert.Equal(t, time.Duration(0), closingPhaseError)
	assert.Negative(t, waitingPhaseError)
}

func TestTickRateControllerClampsOutput(t *testing.T) {
	c := newTickRateController(1.0, 0.5, 0.05)
	rate := c.update(10.0) // huge phase error
	assert.LessOrEqual(t, rate, 1.05)
	assert.GreaterOrEqual(t, rate, 0.95)
}

func TestMixerTickAppliesSyncPhaseErrorToTickRate(t *testing.T) {
	f := testMixFormat()
	cfg := DefaultConfig()
	cfg.FramesPerChunk = 4
	cfg.LaneWaitDeadline = time.Millisecond
	cfg.EnableMultiSinkSync = true
	cfg.BarrierTimeout = time.Second

	group := NewSyncGroup(2)
	early := NewMixer("sink-early", f, cfg, &fakeConsumer{}, group)
	late := NewMixer("sink-late", f, cfg, &fakeConsumer{}, group)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		early.Tick()
	}()
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		late.Tick()
	}()
	wg.Wait()

	// early waited on the barrier while late closed it, so early's
	// phase error was negative and the controller should have slowed
	// its nominal tick rate to pull back toward the group.
	early.mu.RLock()
	earlyRate := early.tickRate
	early.mu.RUnlock()
	assert.Less(t, earlyRate, 1.0)

	late.mu.RLock()
	lateRate := late.tickRate
	late.mu.RUnlock()
	assert.Equal(t, 1.0, lateRate)
}
