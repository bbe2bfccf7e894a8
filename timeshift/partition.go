package timeshift

import (
	"sync"
	"time"

	"github.com/netaudio/router/packet"
	"github.com/sirupsen/logrus"
)

// entry pairs a buffered packet with a monotonically increasing
// sequence number. Sequence numbers are assigned in append order and
// never reused, so a cursor can resolve "the entry at sequence N" by
// simple arithmetic against the partition's current head sequence,
// even after older entries have been evicted from the front.
type entry struct {
	seq uint64
	pkt *packet.TaggedAudioPacket
}

// partition is the append-only, time-ordered history for one source
// tag.
type partition struct {
	mu          sync.RWMutex
	tag         packet.Tag
	entries     []entry
	nextSeq     uint64
	droppedOld  uint64
	droppedFull uint64
}

func newPartition(tag packet.Tag) *partition {
	return &partition{tag: tag}
}

// add appends a packet, applying back-pressure by dropping the oldest
// entry for this tag if it would exceed maxPackets.
func (p *partition) add(pkt *packet.TaggedAudioPacket, maxPackets int) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	seq := p.nextSeq
	p.entries = append(p.entries, entry{seq: seq, pkt: pkt})
	p.nextSeq++

	for maxPackets > 0 && len(p.entries) > maxPackets {
		p.entries = p.entries[1:]
		p.droppedFull++
	}
	return seq
}

// cleanup drops entries older than historySeconds behind now.
func (p *partition) cleanup(now time.Time, historySeconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := now.Add(-time.Duration(historySeconds * float64(time.Second)))
	i := 0
	for i < len(p.entries) && p.entries[i].pkt.ReceivedAt.Before(cutoff) {
		i++
	}
	if i > 0 {
		p.droppedOld += uint64(i)
		p.entries = p.entries[i:]
		logrus.WithFields(logrus.Fields{
			"function": "partition.cleanup",
			"tag":      string(p.tag),
			"dropped":  i,
		}).Debug("cleanup dropped aged packets")
	}
}

// headSeq returns the sequence number of the oldest retained entry and
// whether the partition holds any entries at all.
func (p *partition) headSeq() (uint64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.entries) == 0 {
		return 0, false
	}
	return p.entries[0].seq, true
}

// tailSeq returns the sequence number one past the newest retained
// entry (the next sequence that will be assigned).
func (p *partition) tailSeq() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nextSeq
}

// at returns the entry for the given sequence number, if still
// retained.
func (p *partition) at(seq uint64) (entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.entries) == 0 {
		return entry{}, false
	}
	head := p.entries[0].seq
	if seq < head || seq >= p.nextSeq {
		return entry{}, false
	}
	return p.entries[seq-head], true
}

// snapshot returns a copy of all currently retained packets, oldest
// first, used by export_window.
func (p *partition) snapshot() []*packet.TaggedAudioPacket {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*packet.TaggedAudioPacket, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.pkt
	}
	return out
}
