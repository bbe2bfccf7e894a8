// Package engine is the top-level composition root: it owns the
// timeshift manager and the receiver/sink/path registries, wires a
// connected path's cursor through its DSP processor into its sink's
// mixer, and exposes the control-plane surface (ApplyState,
// ExportTimeshift, ListSeenTags, GetStats, and the WebRTC signaling
// passthroughs) that brings receivers, transports, and the audio
// pipeline under one roof.
package engine
