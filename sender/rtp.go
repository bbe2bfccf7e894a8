package sender

import (
	"net"
	"sync"
	"time"

	"github.com/netaudio/router/packet"
	"github.com/sirupsen/logrus"
)

// RTPSender packetizes a sink's mixed chunks as RTP, advancing the
// sequence number by one and the timestamp by the chunk's frame count
// on every tick.
type RTPSender struct {
	sinkID string
	format packet.Format
	cfg    Config

	mu      sync.Mutex
	conn    net.Conn
	faulted bool
	fails   int
	backoff time.Duration

	seq uint16
	ts  uint32
}

// NewRTPSender dials cfg.DestAddr and returns an RTP sender emitting
// in format.
func NewRTPSender(sinkID string, format packet.Format, cfg Config) (*RTPSender, error) {
	conn, err := net.Dial("udp", cfg.DestAddr)
	if err != nil {
		return nil, err
	}
	s := &RTPSender{
		sinkID:  sinkID,
		format:  format,
		cfg:     cfg,
		conn:    conn,
		backoff: cfg.ReopenBackoffInitial,
	}
	logrus.WithFields(logrus.Fields{
		"function": "NewRTPSender",
		"sink_id":  sinkID,
		"dest":     cfg.DestAddr,
		"ssrc":     cfg.RTPSSRC,
	}).Info("created rtp sender")
	return s, nil
}

// ConsumeChunk implements mixer.ChunkConsumer.
func (s *RTPSender) ConsumeChunk(pcm []byte, frames int, seq uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faulted {
		return ErrFaulted
	}

	packetBytes, err := packet.EncodeRTPPacket(s.format, pcm, s.seq, s.ts, s.cfg.RTPSSRC, s.cfg.RTPPayloadType)
	if err != nil {
		return err
	}
	s.seq++
	s.ts += uint32(frames)

	if _, err := s.conn.Write(packetBytes); err != nil {
		s.recordFailure(err)
		return err
	}
	s.fails = 0
	return nil
}

func (s *RTPSender) recordFailure(err error) {
	s.fails++
	logrus.WithFields(logrus.Fields{
		"function": "RTPSender.recordFailure",
		"sink_id":  s.sinkID,
		"fails":    s.fails,
		"error":    err.Error(),
	}).Warn("send failed")

	if s.fails >= s.cfg.FaultThreshold {
		s.faulted = true
		logrus.WithFields(logrus.Fields{
			"function": "RTPSender.recordFailure",
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

// Recover clears the faulted state.
func (s *RTPSender) Recover() error {
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
func (s *RTPSender) Faulted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faulted
}

// Close releases the underlying socket.
func (s *RTPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}
