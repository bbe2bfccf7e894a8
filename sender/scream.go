package sender

import (
	"net"
	"sync"
	"time"

	"github.com/netaudio/router/packet"
	"github.com/sirupsen/logrus"
)

// ScreamSender packetizes a sink's mixed chunks as plain Scream-UDP
// datagrams: the 5-byte inline format header followed by interleaved
// PCM, sent to a single fixed destination.
type ScreamSender struct {
	sinkID string
	format packet.Format
	cfg    Config

	mu      sync.Mutex
	conn    net.Conn
	faulted bool
	fails   int
	backoff time.Duration

	header [packet.ScreamHeaderSize]byte
}

// NewScreamSender dials cfg.DestAddr and returns a sender emitting in
// format.
func NewScreamSender(sinkID string, format packet.Format, cfg Config) (*ScreamSender, error) {
	hdr, err := packet.EncodeScreamHeader(format)
	if err != nil {
		return nil, err
	}
	conn, err := net.Dial("udp", cfg.DestAddr)
	if err != nil {
		return nil, err
	}
	s := &ScreamSender{
		sinkID:  sinkID,
		format:  format,
		cfg:     cfg,
		conn:    conn,
		backoff: cfg.ReopenBackoffInitial,
		header:  hdr,
	}
	logrus.WithFields(logrus.Fields{
		"function": "NewScreamSender",
		"sink_id":  sinkID,
		"dest":     cfg.DestAddr,
	}).Info("created scream-udp sender")
	return s, nil
}

// ConsumeChunk implements mixer.ChunkConsumer, prepending the inline
// format header and writing the datagram to the destination.
func (s *ScreamSender) ConsumeChunk(pcm []byte, frames int, seq uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faulted {
		return ErrFaulted
	}

	datagram := make([]byte, 0, len(s.header)+len(pcm))
	datagram = append(datagram, s.header[:]...)
	datagram = append(datagram, pcm...)

	if _, err := s.conn.Write(datagram); err != nil {
		s.recordFailure(err)
		return err
	}
	s.fails = 0
	return nil
}

// recordFailure applies the socket-error recovery policy: reopen with
// backoff, escalating to the faulted state after FaultThreshold
// consecutive failures.
func (s *ScreamSender) recordFailure(err error) {
	s.fails++
	logrus.WithFields(logrus.Fields{
		"function": "ScreamSender.recordFailure",
		"sink_id":  s.sinkID,
		"fails":    s.fails,
		"error":    err.Error(),
	}).Warn("send failed")

	if s.fails >= s.cfg.FaultThreshold {
		s.faulted = true
		logrus.WithFields(logrus.Fields{
			"function": "ScreamSender.recordFailure",
			"sink_id":  s.sinkID,
		}).Error("sender entering faulted state")
		return
	}

	time.Sleep(s.backoff)
	if conn, dialErr := net.Dial("udp", s.cfg.DestAddr); dialErr == nil {
		_ = s.conn.Close()
		s.conn = conn
	}
	s.backoff *= 2
	if s.backoff > s.cfg.ReopenBackoffMax {
		s.backoff = s.cfg.ReopenBackoffMax
	}
}

// Recover clears the faulted state, called by the control plane after
// an operator-initiated or periodic recovery attempt.
func (s *ScreamSender) Recover() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, err := net.Dial("udp", s.cfg.DestAddr)
	if err != nil {
		return err
	}
	_ = s.conn.Close()
	s.conn = conn
	s.faulted = false
	s.fails = 0
	s.backoff = s.cfg.ReopenBackoffInitial
	return nil
}

// Faulted reports whether the sender is in the faulted state.
func (s *ScreamSender) Faulted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faulted
}

// Close releases the underlying socket.
func (s *ScreamSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}
