package webrtcsink

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// listener is one WebRTC peer attached to a sink: its peer connection,
// the local audio track mixed PCM is written to, and the last time its
// heartbeat was observed.
type listener struct {
	id    string
	pc    *webrtc.PeerConnection
	track *webrtc.TrackLocalStaticSample

	mu            sync.Mutex
	lastHeartbeat time.Time
}

func newListener(id string, pc *webrtc.PeerConnection, track *webrtc.TrackLocalStaticSample) *listener {
	return &listener{id: id, pc: pc, track: track, lastHeartbeat: time.Now()}
}

// touch records a heartbeat from the remote peer.
func (l *listener) touch() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastHeartbeat = time.Now()
}

// staleSince reports how long it has been since the last heartbeat.
func (l *listener) staleSince(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return now.Sub(l.lastHeartbeat)
}

// writeSample pushes one chunk of PCM to this listener's track as a
// media.Sample, tagged with its real-time duration so pion's RTP
// packetizer can derive the correct timestamp increment.
func (l *listener) writeSample(pcm []byte, duration time.Duration) error {
	return l.track.WriteSample(media.Sample{Data: pcm, Duration: duration})
}

func (l *listener) close() error {
	return l.pc.Close()
}
