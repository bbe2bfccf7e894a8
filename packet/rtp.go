package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/rtp"
)

// RTPOriginationSize is the size in bytes of the per-process
// origination identifier that the 17-byte extended header variant
// (12-byte RTP header + these 5 bytes) places before the inline format
// descriptor. It encodes a 2-byte machine hash, a 2-byte process hash,
// and a check byte; the hash pair becomes a source-tag suffix distinct
// from the sender's network address. The variant is only valid on a
// receiver bound for per-process ingestion; standard RTP receivers
// never look for it.
const RTPOriginationSize = 5

// RTPOrigination identifies the process that originated an extended
// RTP-variant packet, used to build a source tag suffix for
// per-process origination.
type RTPOrigination struct {
	MachineHash uint16
	ProcessHash uint16
}

// String renders the origination as a compact tag suffix.
func (o RTPOrigination) String() string {
	return fmt.Sprintf("%04x%04x", o.MachineHash, o.ProcessHash)
}

// EncodeRTPOrigination packs the origination identifier into its
// 5-byte wire form: machine hash, process hash (both big-endian), and
// an XOR check byte over the first four bytes.
func EncodeRTPOrigination(o RTPOrigination) [RTPOriginationSize]byte {
	var out [RTPOriginationSize]byte
	binary.BigEndian.PutUint16(out[0:2], o.MachineHash)
	binary.BigEndian.PutUint16(out[2:4], o.ProcessHash)
	out[4] = out[0] ^ out[1] ^ out[2] ^ out[3]
	return out
}

// DecodeRTPOrigination parses the 5-byte origination identifier from
// the start of b, validating its check byte.
func DecodeRTPOrigination(b []byte) (RTPOrigination, error) {
	if len(b) < RTPOriginationSize {
		return RTPOrigination{}, fmt.Errorf("packet: short origination header (%d bytes)", len(b))
	}
	if b[4] != b[0]^b[1]^b[2]^b[3] {
		return RTPOrigination{}, fmt.Errorf("packet: origination check byte mismatch")
	}
	return RTPOrigination{
		MachineHash: binary.BigEndian.Uint16(b[0:2]),
		ProcessHash: binary.BigEndian.Uint16(b[2:4]),
	}, nil
}

// DecodeRTPPacket parses a standard RTP packet whose payload carries
// the Scream inline format descriptor followed by PCM.
func DecodeRTPPacket(data []byte) (*rtp.Packet, Format, error) {
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(data); err != nil {
		return nil, Format{}, fmt.Errorf("packet: rtp unmarshal: %w", err)
	}
	if len(pkt.Payload) < ScreamHeaderSize {
		return pkt, Format{}, fmt.Errorf("packet: rtp payload too short for inline format header")
	}
	f, err := DecodeScreamHeader(pkt.Payload[:ScreamHeaderSize])
	if err != nil {
		return pkt, Format{}, err
	}
	return pkt, f, nil
}

// DecodeRTPPerProcessPacket parses the extended per-process variant:
// the origination identifier sits between the RTP header and the
// inline format descriptor, with the PCM after both. The returned PCM
// slice aliases data.
func DecodeRTPPerProcessPacket(data []byte) (*rtp.Packet, RTPOrigination, Format, []byte, error) {
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(data); err != nil {
		return nil, RTPOrigination{}, Format{}, nil, fmt.Errorf("packet: rtp unmarshal: %w", err)
	}
	if len(pkt.Payload) < RTPOriginationSize+ScreamHeaderSize {
		return pkt, RTPOrigination{}, Format{}, nil, fmt.Errorf("packet: rtp payload too short for per-process headers")
	}
	origin, err := DecodeRTPOrigination(pkt.Payload[:RTPOriginationSize])
	if err != nil {
		return pkt, RTPOrigination{}, Format{}, nil, err
	}
	f, err := DecodeScreamHeader(pkt.Payload[RTPOriginationSize : RTPOriginationSize+ScreamHeaderSize])
	if err != nil {
		return pkt, origin, Format{}, nil, err
	}
	return pkt, origin, f, pkt.Payload[RTPOriginationSize+ScreamHeaderSize:], nil
}

// EncodeRTPPacket builds an RTP packet carrying the Scream inline
// format header followed by PCM data as its payload.
func EncodeRTPPacket(f Format, pcm []byte, seq uint16, ts uint32, ssrc uint32, payloadType uint8) ([]byte, error) {
	hdr, err := EncodeScreamHeader(f)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, ScreamHeaderSize+len(pcm))
	payload = append(payload, hdr[:]...)
	payload = append(payload, pcm...)

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    payloadType,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	return pkt.Marshal()
}
