package packet

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// ScreamHeaderSize is the length in bytes of the Scream-UDP inline
// format header that precedes every interleaved-PCM payload.
const ScreamHeaderSize = 5

// DefaultFramesPerChunk is the base frame count used for Scream-UDP
// datagrams and as the mixer's tick quantum.
const DefaultFramesPerChunk = 1152

// baseSampleRate44k is the sample-rate family selected by the high bit
// of header byte 0.
const baseSampleRate44k = 44100
const baseSampleRate48k = 48000

// EncodeScreamHeader builds the 5-byte Scream-UDP inline header for a
// given format.
//
//	byte 0: sample-rate index (high bit = 44.1kHz family, low 7 bits = multiplier)
//	byte 1: bit depth
//	byte 2: channel count
//	byte 3: channel-layout low byte
//	byte 4: channel-layout high byte
func EncodeScreamHeader(f Format) ([ScreamHeaderSize]byte, error) {
	var hdr [ScreamHeaderSize]byte
	if err := f.Validate(); err != nil {
		return hdr, err
	}

	idx, err := encodeSampleRateIndex(f.SampleRate)
	if err != nil {
		return hdr, err
	}

	hdr[0] = idx
	hdr[1] = f.BitDepth
	hdr[2] = f.Channels
	hdr[3] = byte(f.ChannelLayout & 0xFF)
	hdr[4] = byte(f.ChannelLayout >> 8)
	return hdr, nil
}

// encodeSampleRateIndex packs a sample rate into the high-bit-family,
// low-7-bit-multiplier scheme. Rates that are not an integer multiple
// of 44100 or 48000 are rejected.
func encodeSampleRateIndex(rate uint32) (byte, error) {
	if rate%baseSampleRate44k == 0 {
		mult := rate / baseSampleRate44k
		if mult == 0 || mult > 0x7F {
			return 0, fmt.Errorf("packet: sample rate %d out of range for 44.1kHz family", rate)
		}
		return 0x80 | byte(mult), nil
	}
	if rate%baseSampleRate48k == 0 {
		mult := rate / baseSampleRate48k
		if mult == 0 || mult > 0x7F {
			return 0, fmt.Errorf("packet: sample rate %d out of range for 48kHz family", rate)
		}
		return byte(mult), nil
	}
	return 0, fmt.Errorf("packet: sample rate %d is not a multiple of 44100 or 48000", rate)
}

// DecodeScreamHeader parses the 5-byte Scream-UDP inline header.
func DecodeScreamHeader(data []byte) (Format, error) {
	if len(data) < ScreamHeaderSize {
		logrus.WithFields(logrus.Fields{
			"function": "DecodeScreamHeader",
			"length":   len(data),
		}).Debug("short scream header")
		return Format{}, fmt.Errorf("packet: short scream header (%d bytes)", len(data))
	}

	mult := uint32(data[0] & 0x7F)
	if mult == 0 {
		return Format{}, fmt.Errorf("packet: invalid sample rate multiplier 0")
	}
	var rate uint32
	if data[0]&0x80 != 0 {
		rate = baseSampleRate44k * mult
	} else {
		rate = baseSampleRate48k * mult
	}

	f := Format{
		SampleRate:    rate,
		BitDepth:      data[1],
		Channels:      data[2],
		ChannelLayout: uint16(data[3]) | uint16(data[4])<<8,
	}
	if err := f.Validate(); err != nil {
		return Format{}, err
	}
	return f, nil
}
