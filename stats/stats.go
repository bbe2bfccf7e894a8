package stats

// GlobalSnapshot reports engine-wide counters.
type GlobalSnapshot struct {
	SeenTags              int
	TotalPacketsReceived  uint64
	TotalPacketsDropped   uint64
	TotalMalformedDropped uint64
	TotalRebinds          uint64
}

// SinkSnapshot reports one sink's lane states and underrun counts
// (get_stats's "per-sink" section).
type SinkSnapshot struct {
	SinkID          string
	Lanes           []LaneSnapshot
	Faulted         bool
	WebRTCListeners int
}

// LaneSnapshot mirrors mixer.LaneStats without importing the mixer
// package, keeping stats a leaf dependency.
type LaneSnapshot struct {
	PathID    string
	State     string
	Underruns uint64
}

// SourceSnapshot reports one source tag's timeshift partition and
// cursor health (get_stats's "per-source" section).
type SourceSnapshot struct {
	Tag             string
	PacketCount     int
	DroppedOld      uint64
	DroppedFull     uint64
	CursorUnderruns uint64
	CursorOverruns  uint64
	PlaybackRate    float64
}

// StreamSnapshot reports one receiver's lifetime counters (get_stats's
// "per-stream" section).
type StreamSnapshot struct {
	ReceiverID       string
	Protocol         string
	PacketsReceived  uint64
	PacketsDropped   uint64
	MalformedDropped uint64
	Rebinds          uint64
}

// Snapshot is the full get_stats() response.
type Snapshot struct {
	Global  GlobalSnapshot
	Sinks   map[string]SinkSnapshot
	Sources map[string]SourceSnapshot
	Streams map[string]StreamSnapshot
}

// Provider supplies a point-in-time snapshot; the daemon adapts the
// engine's GetStats to it. That implementation reads most counters
// under the data-plane owners' own locks, not only atomically.
type Provider interface {
	Snapshot() Snapshot
}
