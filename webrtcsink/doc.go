// Package webrtcsink implements the WebRTC listener manager:
// per-listener SDP offer/answer negotiation, ICE candidate exchange,
// and a heartbeat sweep that removes listeners that have gone silent.
// A Manager implements mixer.ChunkConsumer, so a sink wires it in as
// a side-tap or primary consumer the same way as any network sender;
// negotiation itself happens out-of-band via the signalling bridge
// the control plane owns.
package webrtcsink
