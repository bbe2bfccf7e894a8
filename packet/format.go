package packet

import "fmt"

// Format describes the PCM layout of a packet's payload: sample rate,
// bit depth, channel count, and the two-byte channel-layout bitmap used
// by the Scream-UDP inline header.
type Format struct {
	SampleRate    uint32
	BitDepth      uint8
	Channels      uint8
	ChannelLayout uint16
}

// BytesPerSample returns the number of bytes occupied by a single
// sample at this format's bit depth.
func (f Format) BytesPerSample() int {
	return int(f.BitDepth) / 8
}

// FrameSize returns the number of bytes occupied by one frame (one
// sample per channel) at this format.
func (f Format) FrameSize() int {
	return f.BytesPerSample() * int(f.Channels)
}

// Frames returns the number of frames encoded in a payload of the
// given length at this format. It is the inverse of the invariant
// that payload length equals frames * channels * bit_depth/8.
func (f Format) Frames(payloadLen int) int {
	fs := f.FrameSize()
	if fs == 0 {
		return 0
	}
	return payloadLen / fs
}

// Equal reports whether two formats describe the same PCM layout,
// ignoring channel layout (mixers only require rate/channels/depth to
// match for every chunk delivered to them).
func (f Format) Equal(o Format) bool {
	return f.SampleRate == o.SampleRate && f.BitDepth == o.BitDepth && f.Channels == o.Channels
}

// Validate checks that a format describes a supported PCM layout.
func (f Format) Validate() error {
	switch f.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("packet: unsupported bit depth %d", f.BitDepth)
	}
	if f.Channels == 0 || f.Channels > 8 {
		return fmt.Errorf("packet: unsupported channel count %d", f.Channels)
	}
	if f.SampleRate == 0 {
		return fmt.Errorf("packet: sample rate cannot be zero")
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}
