package webrtcsink

import (
	"sync"
	"time"

	"github.com/netaudio/router/packet"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

// Manager owns one PeerConnection per listener attached to a single
// sink, fans mixed PCM out to every connected listener's track, and
// removes listeners whose heartbeat has gone stale.
//
// It implements mixer.ChunkConsumer so a sink wires it in exactly like
// a network sender.
type Manager struct {
	sinkID string
	format packet.Format
	cfg    Config

	mu        sync.RWMutex
	listeners map[string]*listener

	// onRemoved, when non-nil, is called with the listener id after
	// the heartbeat sweep removes a listener (not after RemoveListener
	// or Close).
	onRemoved func(listenerID string)

	stop    chan struct{}
	stopped chan struct{}
}

// NewManager creates a listener manager for one sink.
func NewManager(sinkID string, format packet.Format, cfg Config, onRemoved func(listenerID string)) *Manager {
	m := &Manager{
		sinkID:    sinkID,
		format:    format,
		cfg:       cfg,
		listeners: make(map[string]*listener),
		onRemoved: onRemoved,
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// AddListener negotiates a new WebRTC peer for listenerID from a
// remote SDP offer. onLocalDescription and onICECandidate are invoked
// from an internal goroutine, never synchronously from this call, so
// the caller never blocks the data plane on its own callback handling.
func (m *Manager) AddListener(listenerID, offerSDP string, onLocalDescription func(sdp string), onICECandidate func(candidate string), clientIP string) (bool, error) {
	m.mu.Lock()
	if _, exists := m.listeners[listenerID]; exists {
		m.mu.Unlock()
		return false, ErrListenerExists
	}
	m.mu.Unlock()

	config := webrtc.Configuration{}
	for _, url := range m.cfg.ICEServers {
		config.ICEServers = append(config.ICEServers, webrtc.ICEServer{URLs: []string{url}})
	}

	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return false, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: "audio/L16", ClockRate: m.format.SampleRate, Channels: uint16(m.format.Channels)},
		"audio", m.sinkID+"-"+listenerID,
	)
	if err != nil {
		_ = pc.Close()
		return false, err
	}
	if _, err := pc.AddTrack(track); err != nil {
		_ = pc.Close()
		return false, err
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || onICECandidate == nil {
			return
		}
		candidate := c.ToJSON().Candidate
		go onICECandidate(candidate)
	})

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := pc.SetRemoteDescription(offer); err != nil {
		_ = pc.Close()
		return false, err
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		return false, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		return false, err
	}

	select {
	case <-gatherComplete:
	case <-time.After(m.cfg.OfferTimeout):
		_ = pc.Close()
		return false, ErrNegotiationTimeout
	}

	l := newListener(listenerID, pc, track)
	m.mu.Lock()
	m.listeners[listenerID] = l
	m.mu.Unlock()

	if onLocalDescription != nil {
		local := pc.LocalDescription().SDP
		go onLocalDescription(local)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Manager.AddListener",
		"sink_id":     m.sinkID,
		"listener_id": listenerID,
		"client_ip":   clientIP,
	}).Info("negotiated webrtc listener")
	return true, nil
}

// AddRemoteICE accepts an ICE candidate from the remote peer
// asynchronously.
func (m *Manager) AddRemoteICE(listenerID, candidate, sdpMid string) error {
	m.mu.RLock()
	l, ok := m.listeners[listenerID]
	m.mu.RUnlock()
	if !ok {
		return ErrListenerNotFound
	}
	init := webrtc.ICECandidateInit{Candidate: candidate}
	if sdpMid != "" {
		init.SDPMid = &sdpMid
	}
	return l.pc.AddICECandidate(init)
}

// Heartbeat records that listenerID is still alive, resetting its
// staleness clock.
func (m *Manager) Heartbeat(listenerID string) error {
	m.mu.RLock()
	l, ok := m.listeners[listenerID]
	m.mu.RUnlock()
	if !ok {
		return ErrListenerNotFound
	}
	l.touch()
	return nil
}

// RemoveListener tears down one listener's peer connection. The peer
// connection is closed on a separate goroutine, so the caller does not
// wait for it.
func (m *Manager) RemoveListener(listenerID string) error {
	m.mu.Lock()
	l, ok := m.listeners[listenerID]
	if ok {
		delete(m.listeners, listenerID)
	}
	m.mu.Unlock()
	if !ok {
		return ErrListenerNotFound
	}
	go func() {
		if err := l.close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "Manager.RemoveListener",
				"listener_id": listenerID,
				"error":       err.Error(),
			}).Debug("error closing peer connection")
		}
	}()
	return nil
}

// ConsumeChunk implements mixer.ChunkConsumer, pushing the mixed PCM
// to every currently connected listener's track.
func (m *Manager) ConsumeChunk(pcm []byte, frames int, seq uint32) error {
	duration := time.Duration(frames) * time.Second / time.Duration(m.format.SampleRate)

	m.mu.RLock()
	listeners := make([]*listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.RUnlock()

	for _, l := range listeners {
		if err := l.writeSample(pcm, duration); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "Manager.ConsumeChunk",
				"sink_id":     m.sinkID,
				"listener_id": l.id,
				"error":       err.Error(),
			}).Debug("failed to write sample to listener track")
		}
	}
	return nil
}

// ListenerCount returns the number of currently connected listeners.
func (m *Manager) ListenerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listeners)
}

func (m *Manager) sweepLoop() {
	defer close(m.stopped)
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepStale()
		}
	}
}

func (m *Manager) sweepStale() {
	now := time.Now()

	m.mu.RLock()
	var stale []string
	for id, l := range m.listeners {
		if l.staleSince(now) > m.cfg.HeartbeatTimeout {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		if err := m.RemoveListener(id); err != nil {
			continue
		}
		logrus.WithFields(logrus.Fields{
			"function":    "Manager.sweepStale",
			"sink_id":     m.sinkID,
			"listener_id": id,
		}).Info("removed listener after heartbeat timeout")
		if m.onRemoved != nil {
			m.onRemoved(id)
		}
	}
}

// Close tears down every listener and stops the sweep loop.
func (m *Manager) Close() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	<-m.stopped

	m.mu.Lock()
	listeners := m.listeners
	m.listeners = make(map[string]*listener)
	m.mu.Unlock()
	for _, l := range listeners {
		_ = l.close()
	}
}
