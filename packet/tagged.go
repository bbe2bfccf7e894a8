package packet

import (
	"fmt"
	"net"
	"time"
)

// Tag is an opaque identifier distinguishing a packet stream,
// typically a sender IP, sender IP plus ephemeral port, or a synthetic
// per-process identifier.
type Tag string

// TaggedAudioPacket is a received chunk of PCM, immutable once queued
// into the timeshift buffer.
type TaggedAudioPacket struct {
	Tag          Tag
	ReceivedAt   time.Time // monotonic
	Payload      []byte
	Format       Format
	RTPTimestamp uint32
	HasRTP       bool
	PlaybackRate float64 // effective playback-rate multiplier, initially 1.0
}

// NewTaggedAudioPacket constructs a packet with its invariant
// (payload length == frames*channels*bytes_per_sample) validated.
func NewTaggedAudioPacket(tag Tag, receivedAt time.Time, payload []byte, f Format) (*TaggedAudioPacket, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	frameSize := f.FrameSize()
	if frameSize == 0 || len(payload)%frameSize != 0 {
		return nil, fmt.Errorf("packet: payload length %d not a multiple of frame size %d", len(payload), frameSize)
	}
	return &TaggedAudioPacket{
		Tag:          tag,
		ReceivedAt:   receivedAt,
		Payload:      payload,
		Format:       f,
		PlaybackRate: 1.0,
	}, nil
}

// Frames returns the number of PCM frames carried by this packet.
func (p *TaggedAudioPacket) Frames() int {
	return p.Format.Frames(len(p.Payload))
}

// TagFromAddr derives a source tag from a sender's network address,
// using the IP alone (the common case) unless includePort requests a
// finer-grained per-ephemeral-port tag.
func TagFromAddr(addr net.Addr, includePort bool) Tag {
	host, port := splitHostPort(addr)
	if includePort && port != "" {
		return Tag(host + ":" + port)
	}
	return Tag(host)
}

// TagFromOrigination derives a synthetic per-process tag by suffixing
// the sender's address with the extended RTP variant's machine/process
// hash pair.
func TagFromOrigination(addr net.Addr, origin RTPOrigination) Tag {
	host, _ := splitHostPort(addr)
	return Tag(host + "#" + origin.String())
}

func splitHostPort(addr net.Addr) (host, port string) {
	if addr == nil {
		return "", ""
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), ""
	}
	return host, port
}
