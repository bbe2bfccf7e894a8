// Package receiver implements the ingress side of the audio router: a
// bound UDP socket per receiver, a worker goroutine that parses each
// datagram into a packet.TaggedAudioPacket, and deposit into a
// timeshift.Manager.
//
// Two wire variants are supported: plain Scream-UDP (a 5-byte inline
// format header followed by interleaved PCM) and RTP-encapsulated
// Scream, including the 17-byte per-process extended header that
// derives a synthetic tag from an origination hash pair rather than
// the sender's network address. Both variants share the same deposit
// and discovery path; only datagram parsing differs.
package receiver
