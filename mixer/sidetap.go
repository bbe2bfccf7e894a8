package mixer

import (
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
)

// HTTPStreamTap is a ChunkConsumer that republishes every mixed chunk
// to connected HTTP listeners as a raw interleaved PCM byte stream.
// No MP3 encoder library is available in this project's dependency
// set (see DESIGN.md), so the side-tap streams the sink's native PCM
// rather than a compressed format; a codec can be layered in front of
// this consumer later without changing the mixer's ChunkConsumer
// contract.
type HTTPStreamTap struct {
	mu        sync.Mutex
	listeners map[chan []byte]struct{}
}

// NewHTTPStreamTap creates an empty side-tap.
func NewHTTPStreamTap() *HTTPStreamTap {
	return &HTTPStreamTap{listeners: make(map[chan []byte]struct{})}
}

// ConsumeChunk implements ChunkConsumer, fanning the chunk out to
// every currently connected HTTP listener without blocking on slow
// readers.
func (t *HTTPStreamTap) ConsumeChunk(pcm []byte, frames int, seq uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ch := range t.listeners {
		select {
		case ch <- pcm:
		default:
			logrus.WithFields(logrus.Fields{
				"function": "HTTPStreamTap.ConsumeChunk",
			}).Debug("dropping chunk for slow side-tap listener")
		}
	}
	return nil
}

// ServeHTTP streams raw PCM to the requesting client until it
// disconnects.
func (t *HTTPStreamTap) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ch := make(chan []byte, 8)
	t.mu.Lock()
	t.listeners[ch] = struct{}{}
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.listeners, ch)
		t.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "application/octet-stream")
	flusher, canFlush := w.(http.Flusher)

	for {
		select {
		case <-r.Context().Done():
			return
		case chunk := <-ch:
			if _, err := w.Write(chunk); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
	}
}

// ListenerCount returns the number of currently connected side-tap
// clients.
func (t *HTTPStreamTap) ListenerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}
