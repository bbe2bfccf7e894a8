package mixer

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/netaudio/router/dsp"
	"github.com/netaudio/router/packet"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ChunkConsumer receives one mixed, packetization-ready chunk per
// tick. Implementations live in the sender and webrtcsink packages
// (scream-UDP, RTP, ALSA, WebRTC); this package only produces the
// summed PCM and a monotonically increasing sequence number.
type ChunkConsumer interface {
	ConsumeChunk(pcm []byte, frames int, seq uint32) error
}

// Mixer sums every connected path's ready chunk into one output
// stream for a sink, on every tick.
type Mixer struct {
	sinkID string
	format packet.Format
	cfg    Config

	mu    sync.RWMutex
	lanes map[string]*lane
	seq   uint32

	primary  ChunkConsumer
	sideTaps []ChunkConsumer

	syncGroup *SyncGroup
	tickCtrl  *tickRateController
	// tickRate is the rate multiplier the sync controller last
	// produced (the pacing interval is divided by it; below 1 slows
	// ticks); Run reads it after each tick to rescale the wall-clock
	// pacing limiter. Unused under hardware-clock pacing.
	tickRate float64

	stop    chan struct{}
	stopped chan struct{}
	closed  bool
}

// NewMixer creates a mixer for one sink. primary is the required
// packetization/transport consumer; sync, if non-nil, joins this
// mixer's tick to a cross-sink barrier.
func NewMixer(sinkID string, format packet.Format, cfg Config, primary ChunkConsumer, syncGroup *SyncGroup) *Mixer {
	m := &Mixer{
		sinkID:    sinkID,
		format:    format,
		cfg:       cfg,
		lanes:     make(map[string]*lane),
		primary:   primary,
		syncGroup: syncGroup,
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	if cfg.EnableMultiSinkSync {
		m.tickCtrl = newTickRateController(cfg.SyncProportionalGain, cfg.SyncIntegralGain, cfg.MaxRateAdjustment)
		m.tickRate = 1.0
	}
	logrus.WithFields(logrus.Fields{
		"function": "NewMixer",
		"sink_id":  sinkID,
		"format":   format.String(),
	}).Info("created sink mixer")
	return m
}

// AddSideTap registers an additional consumer that receives every mixed chunk alongside the
// primary transport.
func (m *Mixer) AddSideTap(c ChunkConsumer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sideTaps = append(m.sideTaps, c)
}

// AddLane registers a new path's input lane.
func (m *Mixer) AddLane(pathID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.lanes[pathID]; exists {
		return ErrLaneExists
	}
	m.lanes[pathID] = newLane(pathID)
	return nil
}

// RemoveLane unregisters a path's lane, called when the path is
// removed from the sink.
func (m *Mixer) RemoveLane(pathID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lanes[pathID]; !ok {
		return ErrLaneNotFound
	}
	delete(m.lanes, pathID)
	return nil
}

// PushChunk delivers a path processor's output chunk to its lane,
// called from the processor's own goroutine.
func (m *Mixer) PushChunk(pathID string, pcm []byte, frames int) error {
	m.mu.RLock()
	l, ok := m.lanes[pathID]
	m.mu.RUnlock()
	if !ok {
		return ErrLaneNotFound
	}
	l.push(pcm, frames, time.Now())
	return nil
}

// Run drives the mixer's tick loop under wall-clock pacing until ctx
// is canceled or Close is called. When this mixer belongs to a sync
// group, the pacing interval is rescaled after each tick by the
// cross-sink rate controller's latest output, nudging this sink's
// phase toward the rest of the group. For hardware-clock pacing, do
// not call Run; call Tick directly from the device callback instead,
// in which case the rate controller still updates m.tickRate but
// nothing consumes it since the device, not a limiter, paces ticks.
func (m *Mixer) Run(ctx context.Context) {
	defer close(m.stopped)

	interval := time.Duration(float64(m.cfg.FramesPerChunk) / float64(m.format.SampleRate) * float64(time.Second))
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		m.Tick()

		if m.tickCtrl != nil {
			m.mu.RLock()
			mult := m.tickRate
			m.mu.RUnlock()
			if mult <= 0 {
				mult = 1.0
			}
			limiter.SetLimit(rate.Every(time.Duration(float64(interval) / mult)))
		}
	}
}

// Close stops the tick loop and waits for it to exit. Safe to call
// even if Run was never started (hardware-clock pacing).
func (m *Mixer) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	close(m.stop)
	<-m.stopped
}

// Tick performs one mix cycle: gather each lane's ready chunk (or
// silence past lane_wait_deadline), sum in 32-bit intermediate,
// saturate to the sink format, and dispatch to the primary consumer
// and any side-taps.
func (m *Mixer) Tick() {
	now := time.Now()

	if m.syncGroup != nil {
		arrivedInTime, phaseError := m.syncGroup.Arrive(m.cfg.BarrierTimeout)
		if !arrivedInTime {
			logrus.WithFields(logrus.Fields{
				"function": "Mixer.Tick",
				"sink_id":  m.sinkID,
			}).Debug("missed cross-sink barrier, emitting silence")
			m.dispatchSilence()
			return
		}
		if m.tickCtrl != nil {
			mult := m.tickCtrl.update(phaseError.Seconds())
			m.mu.Lock()
			m.tickRate = mult
			m.mu.Unlock()
		}
	}

	m.mu.RLock()
	lanes := make([]*lane, 0, len(m.lanes))
	for _, l := range m.lanes {
		lanes = append(lanes, l)
	}
	m.mu.RUnlock()

	channels := int(m.format.Channels)
	acc := make([][]int64, channels)
	for c := range acc {
		acc[c] = make([]int64, m.cfg.FramesPerChunk)
	}

	anyAudio := false
	deadline := time.Now().Add(m.cfg.LaneWaitDeadline)
	for _, l := range lanes {
		pcm, frames, ok := m.waitForLane(l, deadline)
		if !ok {
			l.markSilentTick(now, m.cfg.UnderrunHoldTimeout)
			continue
		}
		decoded, err := dsp.Deinterleave(pcm, m.format)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Mixer.Tick",
				"sink_id":  m.sinkID,
				"path_id":  l.id,
				"error":    err.Error(),
			}).Warn("dropping malformed lane chunk")
			continue
		}
		anyAudio = true
		for c := 0; c < channels && c < len(decoded); c++ {
			n := frames
			if n > len(decoded[c]) {
				n = len(decoded[c])
			}
			if n > len(acc[c]) {
				n = len(acc[c])
			}
			for i := 0; i < n; i++ {
				acc[c][i] += int64(decoded[c][i])
			}
		}
	}

	if !anyAudio {
		m.dispatchSilence()
		return
	}

	clamped := make([][]int32, channels)
	for c := range acc {
		clamped[c] = make([]int32, len(acc[c]))
		for i, v := range acc[c] {
			clamped[c][i] = clampSample(v)
		}
	}

	out, err := dsp.Interleave(clamped, m.format)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Mixer.Tick",
			"sink_id":  m.sinkID,
			"error":    err.Error(),
		}).Error("failed to interleave mixed chunk")
		return
	}

	m.dispatch(out, m.cfg.FramesPerChunk)
}

func (m *Mixer) waitForLane(l *lane, deadline time.Time) ([]byte, int, bool) {
	for {
		if pcm, frames, ok := l.take(); ok {
			return pcm, frames, true
		}
		if time.Now().After(deadline) {
			return nil, 0, false
		}
		time.Sleep(time.Millisecond)
	}
}

func (m *Mixer) dispatchSilence() {
	silence := make([]byte, m.cfg.FramesPerChunk*m.format.FrameSize())
	m.dispatch(silence, m.cfg.FramesPerChunk)
}

func (m *Mixer) dispatch(pcm []byte, frames int) {
	seq := m.nextSeq()
	if m.primary != nil {
		if err := m.primary.ConsumeChunk(pcm, frames, seq); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Mixer.dispatch",
				"sink_id":  m.sinkID,
				"error":    err.Error(),
			}).Warn("primary consumer failed")
		}
	}
	m.mu.RLock()
	taps := append([]ChunkConsumer(nil), m.sideTaps...)
	m.mu.RUnlock()
	for _, tap := range taps {
		if err := tap.ConsumeChunk(pcm, frames, seq); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Mixer.dispatch",
				"sink_id":  m.sinkID,
				"error":    err.Error(),
			}).Debug("side-tap consumer failed")
		}
	}
}

func (m *Mixer) nextSeq() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.seq
	m.seq++
	return seq
}

// clampSample saturates a 64-bit accumulator value (the sum of every
// lane's 32-bit intermediate sample) to the int32 range so the mixed
// output never wraps on overflow.
func clampSample(v int64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

// LaneStats reports one lane's current state, for diagnostics.
type LaneStats struct {
	PathID    string
	State     LaneState
	Underruns uint64
}

// Stats returns a snapshot of every lane's state and underrun count.
func (m *Mixer) Stats() []LaneStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]LaneStats, 0, len(m.lanes))
	for id, l := range m.lanes {
		state, underruns := l.snapshot()
		out = append(out, LaneStats{PathID: id, State: state, Underruns: underruns})
	}
	return out
}
