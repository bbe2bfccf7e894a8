// Package sender implements the egress side of the audio router: the
// three network/device transports a sink mixer can packetize its
// mixed output to — plain Scream-UDP, RTP, and local
// ALSA-equivalent playback via a PortAudio device.
//
// All three implement mixer.ChunkConsumer, so a Mixer dispatches to
// them the same way regardless of transport; only the packetization
// and device-write steps differ.
package sender
