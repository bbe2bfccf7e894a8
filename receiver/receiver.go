package receiver

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/netaudio/router/packet"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Deposit is the subset of timeshift.Manager a receiver needs, kept
// narrow so tests can supply a fake.
type Deposit interface {
	AddPacket(pkt *packet.TaggedAudioPacket) error
}

// Stats is a snapshot of one receiver's lifetime counters.
type Stats struct {
	PacketsReceived  uint64
	PacketsDropped   uint64
	MalformedDropped uint64
	Rebinds          uint64
}

// counters backs Stats with atomics so the worker goroutine can bump
// them while a stats scrape reads.
type counters struct {
	received  atomic.Uint64
	dropped   atomic.Uint64
	malformed atomic.Uint64
	rebinds   atomic.Uint64
}

// Receiver owns one bound UDP socket (or an injected net.PacketConn
// for local-capture/testing) and a worker goroutine that parses every
// datagram into a packet.TaggedAudioPacket and deposits it into the
// timeshift buffer.
type Receiver struct {
	cfg     Config
	manager Deposit
	conn    net.PacketConn
	ownConn bool

	continuity *continuityTracker

	stats counters

	stop    chan struct{}
	stopped chan struct{}
}

// New binds a UDP socket at cfg.ListenAddr and returns a ready
// receiver. Call Run to start its worker loop.
func New(cfg Config, manager Deposit) (*Receiver, error) {
	conn, err := net.ListenPacket("udp", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	return newReceiver(cfg, manager, conn, true), nil
}

// NewWithConn wraps an already-open net.PacketConn (used for
// local-capture handles and for tests), skipping socket creation.
func NewWithConn(cfg Config, manager Deposit, conn net.PacketConn) *Receiver {
	return newReceiver(cfg, manager, conn, false)
}

func newReceiver(cfg Config, manager Deposit, conn net.PacketConn, ownConn bool) *Receiver {
	return &Receiver{
		cfg:        cfg,
		manager:    manager,
		conn:       conn,
		ownConn:    ownConn,
		continuity: newContinuityTracker(),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// LocalAddr returns the bound socket's local address.
func (r *Receiver) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// Stats returns a snapshot of the receiver's lifetime counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		PacketsReceived:  r.stats.received.Load(),
		PacketsDropped:   r.stats.dropped.Load(),
		MalformedDropped: r.stats.malformed.Load(),
		Rebinds:          r.stats.rebinds.Load(),
	}
}

// Run drives the receiver's packet loop until ctx is canceled or
// Close is called. Run blocks; callers invoke it from its own
// goroutine.
func (r *Receiver) Run(ctx context.Context) {
	defer close(r.stopped)

	buffer := make([]byte, r.cfg.ReadBufferSize)
	backoff := r.cfg.RebindBackoffInitial

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		default:
		}

		if err := r.conn.SetReadDeadline(time.Now().Add(r.cfg.ReadTimeout)); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Receiver.Run",
				"error":    err.Error(),
			}).Warn("failed to set read deadline")
		}

		n, addr, err := r.conn.ReadFrom(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if !r.ownConn {
				// Injected connections (tests, local capture) are not
				// rebindable; treat any other error as fatal.
				return
			}
			backoff = r.rebind(ctx, backoff)
			continue
		}
		backoff = r.cfg.RebindBackoffInitial

		r.handleDatagram(buffer[:n], addr, time.Now())
	}
}

// rebind waits out the current backoff interval via a rate limiter,
// then closes and reopens the socket, doubling the backoff up to
// RebindBackoffMax.
func (r *Receiver) rebind(ctx context.Context, backoff time.Duration) time.Duration {
	limiter := rate.NewLimiter(rate.Every(backoff), 1)
	if err := limiter.Wait(ctx); err != nil {
		return backoff
	}

	addr := r.cfg.ListenAddr
	_ = r.conn.Close()
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.rebind",
			"addr":     addr,
			"error":    err.Error(),
		}).Warn("rebind failed, will retry")
		next := backoff * 2
		if next > r.cfg.RebindBackoffMax {
			next = r.cfg.RebindBackoffMax
		}
		return next
	}
	r.conn = conn
	r.stats.rebinds.Add(1)
	logrus.WithFields(logrus.Fields{
		"function": "Receiver.rebind",
		"addr":     addr,
	}).Info("rebound receiver socket")
	return r.cfg.RebindBackoffInitial
}

// Close stops the worker loop and, for a self-owned socket, closes
// it. Safe to call once.
func (r *Receiver) Close() error {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	<-r.stopped
	if r.ownConn {
		return r.conn.Close()
	}
	return nil
}

func (r *Receiver) handleDatagram(data []byte, addr net.Addr, now time.Time) {
	var (
		tag    packet.Tag
		format packet.Format
		pcm    []byte
		rtpTS  uint32
		hasRTP bool
	)

	switch r.cfg.Protocol {
	case ProtocolRTP:
		pkt, f, err := packet.DecodeRTPPacket(data)
		if err != nil {
			r.stats.malformed.Add(1)
			logrus.WithFields(logrus.Fields{
				"function": "Receiver.handleDatagram",
				"protocol": "rtp",
				"error":    err.Error(),
			}).Debug("dropping malformed rtp datagram")
			return
		}
		format = f
		tag = packet.TagFromAddr(addr, r.cfg.TagIncludesPort)
		pcm = pkt.Payload[packet.ScreamHeaderSize:]
		rtpTS = pkt.Timestamp
		hasRTP = true
		r.observeContinuity(tag, pkt.SequenceNumber, pkt.Timestamp, now)

	case ProtocolRTPPerProcess:
		pkt, origin, f, rest, err := packet.DecodeRTPPerProcessPacket(data)
		if err != nil {
			r.stats.malformed.Add(1)
			logrus.WithFields(logrus.Fields{
				"function": "Receiver.handleDatagram",
				"protocol": "rtp-process",
				"error":    err.Error(),
			}).Debug("dropping malformed per-process rtp datagram")
			return
		}
		format = f
		tag = packet.TagFromOrigination(addr, origin)
		pcm = rest
		rtpTS = pkt.Timestamp
		hasRTP = true
		r.observeContinuity(tag, pkt.SequenceNumber, pkt.Timestamp, now)

	default:
		if len(data) < packet.ScreamHeaderSize {
			r.stats.malformed.Add(1)
			return
		}
		f, err := packet.DecodeScreamHeader(data[:packet.ScreamHeaderSize])
		if err != nil {
			r.stats.malformed.Add(1)
			logrus.WithFields(logrus.Fields{
				"function": "Receiver.handleDatagram",
				"protocol": "scream-udp",
				"error":    err.Error(),
			}).Debug("dropping malformed scream datagram")
			return
		}
		format = f
		pcm = data[packet.ScreamHeaderSize:]
		tag = packet.TagFromAddr(addr, r.cfg.TagIncludesPort)
	}

	frameSize := format.FrameSize()
	if frameSize == 0 || len(pcm)%frameSize != 0 {
		r.stats.malformed.Add(1)
		return
	}

	pkt, err := packet.NewTaggedAudioPacket(tag, now, pcm, format)
	if err != nil {
		r.stats.malformed.Add(1)
		return
	}
	if hasRTP {
		pkt.RTPTimestamp = rtpTS
		pkt.HasRTP = true
	}

	if err := r.manager.AddPacket(pkt); err != nil {
		r.stats.dropped.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.handleDatagram",
			"tag":      string(tag),
			"error":    err.Error(),
		}).Debug("timeshift buffer rejected packet")
		return
	}
	r.stats.received.Add(1)
}

// observeContinuity runs the per-tag RTP session-reset rules for one
// arriving packet, re-anchoring the tag's timestamp base on reset.
func (r *Receiver) observeContinuity(tag packet.Tag, seq uint16, ts uint32, now time.Time) {
	st := r.continuity.stateFor(tag)
	if st.observe(seq, now, r.cfg.RTPSequenceSlack, r.cfg.RTPSessionResetThreshold) {
		st.tsBase = ts
		st.haveTsBase = true
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.observeContinuity",
			"tag":      string(tag),
		}).Debug("rtp session reset detected")
	}
}
