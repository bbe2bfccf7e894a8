package dsp

import (
	"fmt"

	"github.com/netaudio/router/packet"
	"github.com/sirupsen/logrus"
)

// Deinterleave decodes an interleaved PCM byte payload at the given
// format into per-channel 32-bit signed intermediate buffers. Samples
// of any supported bit depth are left-justified into the int32 range
// so that downstream stages operate on a single fixed-precision
// representation.
func Deinterleave(payload []byte, f packet.Format) ([][]int32, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyInput
	}
	frameSize := f.FrameSize()
	if frameSize == 0 || len(payload)%frameSize != 0 {
		return nil, fmt.Errorf("dsp: payload length %d not aligned to frame size %d", len(payload), frameSize)
	}
	frames := len(payload) / frameSize
	channels := int(f.Channels)
	out := make([][]int32, channels)
	for c := range out {
		out[c] = make([]int32, frames)
	}

	bytesPerSample := f.BytesPerSample()
	decode, err := decoderFor(f.BitDepth)
	if err != nil {
		return nil, err
	}

	for i := 0; i < frames; i++ {
		base := i * frameSize
		for c := 0; c < channels; c++ {
			off := base + c*bytesPerSample
			out[c][i] = decode(payload[off : off+bytesPerSample])
		}
	}
	return out, nil
}

// Interleave is the inverse of Deinterleave: it encodes per-channel
// int32 intermediate buffers back into an interleaved byte payload at
// the given output format.
// Callers apply dither/requantization before calling Interleave so the
// encoder here is a pure bit-truncating packer.
func Interleave(channels [][]int32, f packet.Format) ([]byte, error) {
	if len(channels) == 0 {
		return nil, ErrEmptyInput
	}
	if len(channels) != int(f.Channels) {
		return nil, ErrChannelMismatch
	}
	frames := len(channels[0])
	for _, ch := range channels {
		if len(ch) != frames {
			return nil, fmt.Errorf("dsp: channel length mismatch: %d vs %d", len(ch), frames)
		}
	}

	bytesPerSample := f.BytesPerSample()
	encode, err := encoderFor(f.BitDepth)
	if err != nil {
		return nil, err
	}

	out := make([]byte, frames*f.FrameSize())
	frameSize := f.FrameSize()
	for i := 0; i < frames; i++ {
		base := i * frameSize
		for c, ch := range channels {
			off := base + c*bytesPerSample
			encode(out[off:off+bytesPerSample], ch[i])
		}
	}
	return out, nil
}

func decoderFor(bitDepth uint8) (func([]byte) int32, error) {
	switch bitDepth {
	case 16:
		return func(b []byte) int32 {
			v := int16(uint16(b[0]) | uint16(b[1])<<8)
			return int32(v) << 16
		}, nil
	case 24:
		return func(b []byte) int32 {
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			if v&0x800000 != 0 {
				v |= -1 << 24 // sign-extend
			}
			return v << 8
		}, nil
	case 32:
		return func(b []byte) int32 {
			return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
		}, nil
	default:
		logrus.WithFields(logrus.Fields{
			"function":  "decoderFor",
			"bit_depth": bitDepth,
		}).Error("unsupported bit depth for decode")
		return nil, ErrUnsupportedBitDepth
	}
}

func encoderFor(bitDepth uint8) (func([]byte, int32), error) {
	switch bitDepth {
	case 16:
		return func(b []byte, v int32) {
			s := int16(v >> 16)
			b[0] = byte(s)
			b[1] = byte(s >> 8)
		}, nil
	case 24:
		return func(b []byte, v int32) {
			s := v >> 8
			b[0] = byte(s)
			b[1] = byte(s >> 8)
			b[2] = byte(s >> 16)
		}, nil
	case 32:
		return func(b []byte, v int32) {
			b[0] = byte(v)
			b[1] = byte(v >> 8)
			b[2] = byte(v >> 16)
			b[3] = byte(v >> 24)
		}, nil
	default:
		logrus.WithFields(logrus.Fields{
			"function":  "encoderFor",
			"bit_depth": bitDepth,
		}).Error("unsupported bit depth for encode")
		return nil, ErrUnsupportedBitDepth
	}
}
