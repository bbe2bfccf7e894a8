package timeshift

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/netaudio/router/packet"
	"github.com/sirupsen/logrus"
)

// Chunk is a contiguous span of PCM frames returned by ReadNextChunk,
// already in the source tag's native format (format/rate unification
// happens downstream in the source processor).
type Chunk struct {
	Format packet.Format
	PCM    []byte
	Frames int
	// Underrun reports that fewer frames than requested were
	// available; the caller should treat the shortfall as silence.
	Underrun bool
	// Overrun reports that the cursor's position had fallen behind the
	// partition's retained tail and was clamped forward.
	Overrun bool
}

// Manager owns the global timeshift buffer (one partition per source
// tag) and the background cleanup pass.
type Manager struct {
	cfg Config
	tp  TimeProvider

	mu         sync.RWMutex
	partitions map[packet.Tag]*partition
	cursors    map[uint64]*Cursor
	nextCursor uint64

	pendingInserts int64 // bounded in-flight counter, max_clock_pending_packets

	stop    chan struct{}
	stopped chan struct{}
	closed  bool

	onFirstSeen func(tag packet.Tag)
}

// NewManager creates a Manager with the given configuration and starts
// its background cleanup loop. Pass a non-nil onFirstSeen to be
// notified the first time a tag's partition is created, which the
// control plane uses to resolve pending path attachments.
func NewManager(cfg Config, onFirstSeen func(tag packet.Tag)) *Manager {
	m := &Manager{
		cfg:         cfg,
		tp:          DefaultTimeProvider{},
		partitions:  make(map[packet.Tag]*partition),
		cursors:     make(map[uint64]*Cursor),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
		onFirstSeen: onFirstSeen,
	}
	go m.cleanupLoop()
	return m
}

// SetTimeProvider overrides the manager's clock, for deterministic
// tests. Must be called before any packets are added.
func (m *Manager) SetTimeProvider(tp TimeProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tp = tp
}

// Close stops the cleanup loop and releases resources.
func (m *Manager) Close() {
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

func (m *Manager) cleanupLoop() {
	defer close(m.stopped)
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.runCleanup()
		}
	}
}

func (m *Manager) runCleanup() {
	now := m.now()
	m.mu.RLock()
	parts := make([]*partition, 0, len(m.partitions))
	for _, p := range m.partitions {
		parts = append(parts, p)
	}
	m.mu.RUnlock()

	for _, p := range parts {
		p.cleanup(now, m.cfg.HistorySeconds)
	}
}

func (m *Manager) now() time.Time {
	m.mu.RLock()
	tp := m.tp
	m.mu.RUnlock()
	return tp.Now()
}

// AddPacket appends a packet to its tag's partition in amortized O(1),
// publishing a first-seen notification the first time this tag is
// observed.
func (m *Manager) AddPacket(pkt *packet.TaggedAudioPacket) error {
	if atomic.AddInt64(&m.pendingInserts, 1) > int64(m.cfg.MaxClockPendingPackets) {
		atomic.AddInt64(&m.pendingInserts, -1)
		logrus.WithFields(logrus.Fields{
			"function": "Manager.AddPacket",
			"tag":      string(pkt.Tag),
		}).Warn("dropping packet: max_clock_pending_packets exceeded")
		return fmt.Errorf("timeshift: max pending packets exceeded")
	}
	defer atomic.AddInt64(&m.pendingInserts, -1)

	p, firstSeen := m.partitionFor(pkt.Tag)
	p.add(pkt, m.cfg.MaxPartitionPackets)

	if firstSeen && m.onFirstSeen != nil {
		m.onFirstSeen(pkt.Tag)
	}
	return nil
}

func (m *Manager) partitionFor(tag packet.Tag) (*partition, bool) {
	m.mu.RLock()
	p, ok := m.partitions[tag]
	m.mu.RUnlock()
	if ok {
		return p, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.partitions[tag]; ok {
		return p, false
	}
	p = newPartition(tag)
	m.partitions[tag] = p
	logrus.WithFields(logrus.Fields{
		"function": "Manager.partitionFor",
		"tag":      string(tag),
	}).Info("first packet seen for tag")
	return p, true
}

// RegisterCursor creates a read cursor positioned initialTimeshiftSec
// behind the newest buffered packet for the given tag (behind the
// current time when the tag has none). The tag's partition is created if it does not yet
// exist, so a path may be registered before its source has produced
// its first packet.
func (m *Manager) RegisterCursor(tag packet.Tag, initialTimeshiftSec float64) *Cursor {
	p, _ := m.partitionFor(tag)

	m.mu.Lock()
	id := m.nextCursor
	m.nextCursor++
	m.mu.Unlock()

	c := &Cursor{
		id:        id,
		tag:       tag,
		rate:      1.0,
		targetLag: m.cfg.RateController.TargetBufferLevel,
		minLead:   m.cfg.MinLead,
		rateCfg:   m.cfg.RateController,
	}

	var pos time.Time
	if tail := p.tailSeq(); tail > 0 {
		if e, ok := p.at(tail - 1); ok {
			pos = e.pkt.ReceivedAt
		}
	}
	if pos.IsZero() {
		pos = m.now()
	}
	lagFrom := pos.Add(-time.Duration(initialTimeshiftSec * float64(time.Second)))
	seq := m.seekSeqForTime(p, lagFrom)
	c.seq = seq
	c.lastPositionTime = lagFrom

	m.mu.Lock()
	m.cursors[id] = c
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "Manager.RegisterCursor",
		"tag":       string(tag),
		"cursor_id": id,
		"timeshift": initialTimeshiftSec,
	}).Info("registered read cursor")
	return c
}

// seekSeqForTime returns the sequence number of the first retained
// entry whose ReceivedAt is at or after target, clamping to the
// partition's head or tail if target falls outside the retained range.
func (m *Manager) seekSeqForTime(p *partition, target time.Time) uint64 {
	head, ok := p.headSeq()
	if !ok {
		return p.tailSeq()
	}
	tail := p.tailSeq()
	for seq := head; seq < tail; seq++ {
		e, ok := p.at(seq)
		if !ok {
			continue
		}
		if !e.pkt.ReceivedAt.Before(target) {
			return seq
		}
	}
	return tail
}

// UnregisterCursor destroys a cursor, called when the path owning it
// is removed.
func (m *Manager) UnregisterCursor(c *Cursor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cursors, c.id)
}

// SetPlaybackRate sets a cursor's current playback rate at once,
// clamped to the MaxRateAdjustment band. The change is not
// slew-limited; the cursor's PI controller moves the rate on from this
// value at its next read.
func (m *Manager) SetPlaybackRate(c *Cursor, rate float64) {
	c.setRate(rate)
}

// ReseekCursor jumps a cursor directly to lagSeconds behind real-time,
// resetting its PI controller state. Large lag changes go through here
// as a discontinuity instead of being fed to the controller, which
// would otherwise pitch-bend its way across the step for seconds.
func (m *Manager) ReseekCursor(c *Cursor, lagSeconds float64) {
	p, ok := m.partitionLookup(c.tag)
	if !ok {
		return
	}
	target := m.now().Add(-time.Duration(lagSeconds * float64(time.Second)))
	seq := m.seekSeqForTime(p, target)
	c.reseekTo(seq, target)
	logrus.WithFields(logrus.Fields{
		"function":  "Manager.ReseekCursor",
		"tag":       string(c.tag),
		"cursor_id": c.id,
		"lag_sec":   lagSeconds,
	}).Info("cursor reseek")
}

// ReadNextChunk returns the next PCM content at the cursor's position,
// advancing it. The number of source content frames returned and
// consumed is desiredFrames scaled by the cursor's current playback
// rate: a rate above 1.0 drains the buffer faster (catching up to
// real-time), a rate below 1.0 slower (falling further behind).
func (m *Manager) ReadNextChunk(c *Cursor, desiredFrames int) (Chunk, error) {
	p, ok := m.partitionLookup(c.tag)
	if !ok {
		return Chunk{}, ErrEmptyPartition
	}

	now := m.now()

	c.mu.Lock()
	bufferLevel := now.Sub(c.lastPositionTime)
	c.mu.Unlock()

	rate, _ := c.updateRateController(now, bufferLevel)

	framesToConsume := int(float64(desiredFrames)*rate + 0.5)
	if framesToConsume < 1 {
		framesToConsume = 1
	}

	return m.collect(c, p, framesToConsume, now)
}

func (m *Manager) partitionLookup(tag packet.Tag) (*partition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.partitions[tag]
	return p, ok
}

// collect walks forward from the cursor's position gathering frames
// until framesWanted are collected or the tail is reached. The cursor
// never reads past real-time minus minLead: entries newer than that horizon are left for a
// later call.
func (m *Manager) collect(c *Cursor, p *partition, framesWanted int, now time.Time) (Chunk, error) {
	c.mu.Lock()
	seq := c.seq
	frameOffset := c.frameOffset
	minLead := c.minLead
	c.mu.Unlock()

	leadHorizon := now.Add(-minLead)

	head, ok := p.headSeq()
	overrun := false
	if ok && seq < head {
		seq = head
		frameOffset = 0
		overrun = true
	}

	var out []byte
	var format packet.Format
	var shortfall int
	framesCollected := 0
	var lastPosTime time.Time

	for framesCollected < framesWanted {
		e, ok := p.at(seq)
		if !ok {
			shortfall = framesWanted - framesCollected
			break
		}
		if e.pkt.ReceivedAt.After(leadHorizon) {
			shortfall = framesWanted - framesCollected
			break
		}
		format = e.pkt.Format
		lastPosTime = e.pkt.ReceivedAt

		available := e.pkt.Frames() - frameOffset
		if available <= 0 {
			seq++
			frameOffset = 0
			continue
		}

		take := framesWanted - framesCollected
		if take > available {
			take = available
		}

		frameSize := format.FrameSize()
		start := frameOffset * frameSize
		end := start + take*frameSize
		out = append(out, e.pkt.Payload[start:end]...)

		framesCollected += take
		frameOffset += take
		if frameOffset >= e.pkt.Frames() {
			seq++
			frameOffset = 0
		}
	}

	underrun := shortfall > 0

	c.mu.Lock()
	c.seq = seq
	c.frameOffset = frameOffset
	if !lastPosTime.IsZero() {
		c.lastPositionTime = lastPosTime
	}
	if underrun {
		c.underruns++
	}
	if overrun {
		c.overruns++
	}
	c.mu.Unlock()

	if underrun && framesCollected == 0 {
		return Chunk{Format: format, Underrun: true}, ErrUnderrun
	}

	return Chunk{
		Format:   format,
		PCM:      out,
		Frames:   framesCollected,
		Underrun: underrun,
		Overrun:  overrun,
	}, nil
}

// ExportWindow returns up to lookbackSec of contiguous PCM and format
// metadata for a tag, for offline consumers.
func (m *Manager) ExportWindow(tag packet.Tag, lookbackSec float64) (pcm []byte, format packet.Format, earliestAge, latestAge time.Duration, err error) {
	p, ok := m.partitionLookup(tag)
	if !ok {
		return nil, packet.Format{}, 0, 0, ErrEmptyPartition
	}

	entries := p.snapshot()
	if len(entries) == 0 {
		return nil, packet.Format{}, 0, 0, ErrEmptyPartition
	}

	now := m.now()
	cutoff := now.Add(-time.Duration(lookbackSec * float64(time.Second)))

	start := 0
	for start < len(entries) && entries[start].ReceivedAt.Before(cutoff) {
		start++
	}
	if start == len(entries) {
		start = len(entries) - 1
	}

	format = entries[start].Format
	for _, e := range entries[start:] {
		if !e.Format.Equal(format) {
			break
		}
		pcm = append(pcm, e.Payload...)
	}

	earliestAge = now.Sub(entries[start].ReceivedAt)
	latestAge = now.Sub(entries[len(entries)-1].ReceivedAt)
	return pcm, format, earliestAge, latestAge, nil
}

// PartitionStats reports a tag partition's current size and drop
// counters, used to verify memory stays bounded over time.
type PartitionStats struct {
	Tag         packet.Tag
	PacketCount int
	DroppedOld  uint64
	DroppedFull uint64
}

// Stats returns a snapshot of every partition's size and drop counters.
func (m *Manager) Stats() []PartitionStats {
	m.mu.RLock()
	parts := make([]*partition, 0, len(m.partitions))
	for _, p := range m.partitions {
		parts = append(parts, p)
	}
	m.mu.RUnlock()

	out := make([]PartitionStats, 0, len(parts))
	for _, p := range parts {
		p.mu.RLock()
		out = append(out, PartitionStats{
			Tag:         p.tag,
			PacketCount: len(p.entries),
			DroppedOld:  p.droppedOld,
			DroppedFull: p.droppedFull,
		})
		p.mu.RUnlock()
	}
	return out
}

// SeenTags returns every source tag the manager has observed at least
// one packet for.
func (m *Manager) SeenTags() []packet.Tag {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]packet.Tag, 0, len(m.partitions))
	for tag := range m.partitions {
		out = append(out, tag)
	}
	return out
}
