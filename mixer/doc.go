// Package mixer implements the sink mixer: one instance per configured
// sink, summing the ready chunks of every path routed to it into a
// single synchronous output stream on each tick.
//
// A mixer owns a set of input lanes (one per connected path), a
// pacing source (wall-clock or hardware-clock), and an optional
// cross-sink synchronization barrier. Packetization and transport
// dispatch are left to a pluggable ChunkConsumer so this package does
// not need to know about Scream-UDP, RTP, ALSA, or WebRTC framing.
package mixer
