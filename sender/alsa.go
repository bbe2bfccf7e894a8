package sender

import (
	"context"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/netaudio/router/packet"
	"github.com/sirupsen/logrus"
)

// ALSASender hands a sink's mixed PCM to a local playback device via
// PortAudio.
type ALSASender struct {
	sinkID string
	format packet.Format

	stream *portaudio.Stream
	buf    []int16

	mu      sync.Mutex
	faulted bool

	stop    chan struct{}
	stopped chan struct{}
}

// Ticker is the subset of mixer.Mixer an ALSASender needs to drive:
// Tick runs one mix cycle synchronously, during which the mixer
// dispatches the resulting chunk to this sender via ConsumeChunk
// before Tick returns.
type Ticker interface {
	Tick()
}

// NewALSASender opens deviceName (or the system default if empty) for
// playback in format, with a period of framesPerChunk frames.
func NewALSASender(sinkID string, format packet.Format, framesPerChunk int, deviceName string) (*ALSASender, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}

	dev, err := outputDevice(deviceName)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}

	params := portaudio.HighLatencyParameters(nil, dev)
	params.Output.Channels = int(format.Channels)
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = framesPerChunk

	s := &ALSASender{
		sinkID:  sinkID,
		format:  format,
		buf:     make([]int16, framesPerChunk*int(format.Channels)),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	stream, err := portaudio.OpenStream(params, &s.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, err
	}
	s.stream = stream

	logrus.WithFields(logrus.Fields{
		"function": "NewALSASender",
		"sink_id":  sinkID,
		"device":   dev.Name,
	}).Info("opened local playback device")
	return s, nil
}

func outputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		return portaudio.DefaultOutputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == name && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, ErrNoDevice
}

// ConsumeChunk implements mixer.ChunkConsumer by decoding the mixed
// interleaved PCM into the sender's int16 write buffer. The device
// format here is fixed at 16-bit since PortAudio's blocking Write API
// is templated on the buffer's static type.
func (s *ALSASender) ConsumeChunk(pcm []byte, frames int, seq uint32) error {
	frameSize := s.format.FrameSize()
	bytesPerSample := s.format.BytesPerSample()
	channels := int(s.format.Channels)

	for f := 0; f < frames && f*frameSize+frameSize <= len(pcm); f++ {
		for c := 0; c < channels; c++ {
			idx := f*channels + c
			if idx >= len(s.buf) {
				continue
			}
			off := f*frameSize + c*bytesPerSample
			s.buf[idx] = sampleToInt16(pcm[off:off+bytesPerSample], bytesPerSample)
		}
	}
	return nil
}

func sampleToInt16(b []byte, bytesPerSample int) int16 {
	switch bytesPerSample {
	case 2:
		return int16(uint16(b[0]) | uint16(b[1])<<8)
	case 3:
		v := int32(uint32(b[0])|uint32(b[1])<<8|uint32(b[2])<<16) << 8
		v >>= 8
		return int16(v >> 8)
	case 4:
		v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
		return int16(v >> 16)
	default:
		return 0
	}
}

// Run drives the device-paced tick loop: each iteration calls
// t.Tick() (which synchronously invokes ConsumeChunk to refill the
// write buffer) and then blocks in stream.Write until the device has
// drained the previous period, inverting the usual wall-clock push
// model so the playback device becomes the timing authority.
func (s *ALSASender) Run(ctx context.Context, t Ticker) {
	defer close(s.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		default:
		}

		t.Tick()

		if err := s.stream.Write(); err != nil {
			s.mu.Lock()
			s.faulted = true
			s.mu.Unlock()
			logrus.WithFields(logrus.Fields{
				"function": "ALSASender.Run",
				"sink_id":  s.sinkID,
				"error":    err.Error(),
			}).Error("device write failed, recovering")
			if recErr := s.stream.Start(); recErr == nil {
				s.mu.Lock()
				s.faulted = false
				s.mu.Unlock()
			}
		}
	}
}

// Faulted reports whether the device write path has entered the
// faulted state following an unrecoverable xrun.
func (s *ALSASender) Faulted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faulted
}

// Close stops the tick loop and releases the device.
func (s *ALSASender) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.stopped
	err := s.stream.Close()
	_ = portaudio.Terminate()
	return err
}
