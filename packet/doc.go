// Package packet defines the uniform in-process representation of an
// ingested audio datagram and the wire codecs that produce it.
//
// Every receiver, regardless of wire protocol, parses its incoming
// datagrams down to a TaggedAudioPacket before handing them to the
// timeshift buffer. This package owns that value type plus the two
// supported inline formats:
//
//   - the Scream-UDP 5-byte inline format header
//   - the RTP 12-byte header and its 17-byte per-process extended variant
package packet
