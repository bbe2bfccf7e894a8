package config

import (
	"strings"

	"github.com/google/uuid"
	"github.com/netaudio/router/packet"
)

// SinkID uniquely identifies a sink within a desired state.
type SinkID string

// PathID uniquely identifies a source path within a desired state.
type PathID string

// NewSinkID generates a random sink identifier, for callers (the
// process entrypoint's config loader, an HTTP API) that let the system
// assign one rather than naming it themselves.
func NewSinkID() SinkID {
	return SinkID(uuid.NewString())
}

// NewPathID generates a random path identifier.
func NewPathID() PathID {
	return PathID(uuid.NewString())
}

// NewListenerID generates a random WebRTC listener identifier for
// callers with no session id of their own to reuse.
func NewListenerID() string {
	return uuid.NewString()
}

// Protocol selects a sink's output transport.
type Protocol string

const (
	ProtocolScreamUDP Protocol = "scream-udp"
	ProtocolRTP       Protocol = "rtp"
	ProtocolWebRTC    Protocol = "webrtc"
	ProtocolALSA      Protocol = "alsa"
)

// SinkSpec is the declarative description of one output endpoint.
type SinkSpec struct {
	ID       SinkID   `yaml:"id"`
	Protocol Protocol `yaml:"protocol"`
	// DestAddr is the destination address:port for network transports;
	// unused for alsa (PlaybackDeviceName selects the device instead).
	DestAddr           string        `yaml:"dest_addr"`
	PlaybackDeviceName string        `yaml:"playback_device_name"`
	Format             packet.Format `yaml:"format"`
	// MP3SideTap requests a secondary encoded-output tap; since no MP3
	// encoder dependency is available in this project (see DESIGN.md),
	// enabling it attaches the native-PCM HTTPStreamTap instead.
	MP3SideTap bool `yaml:"mp3_side_tap"`
	// TimeSync joins this sink to the cross-sink synchronization
	// barrier when true.
	TimeSync bool `yaml:"time_sync"`
}

// PathSpec is the declarative description of one source path.
type PathSpec struct {
	ID PathID `yaml:"id"`
	// SourceTag is the path's tag selector. A trailing "*" matches any
	// tag sharing that prefix; an exact tag with no wildcard is
	// resolved the instant a receiver reports it first-seen if it does
	// not already exist.
	SourceTag packet.Tag `yaml:"source_tag"`
	SinkID    SinkID     `yaml:"sink_id"`

	Volume          float64     `yaml:"volume"`
	EQGains         [18]float64 `yaml:"eq_gains"`
	ChannelWeights  [][]float64 `yaml:"channel_weights"`
	DelayMS         int64       `yaml:"delay_ms"`
	TimeshiftSec    float64     `yaml:"timeshift_sec"`
	NormalizeVolume bool        `yaml:"normalize_volume"`
	NormalizeEQ     bool        `yaml:"normalize_eq"`
}

// MatchesTag reports whether this path's source tag selector matches
// tag, honoring a trailing-"*" wildcard.
func (p PathSpec) MatchesTag(tag packet.Tag) bool {
	selector := string(p.SourceTag)
	if strings.HasSuffix(selector, "*") {
		return strings.HasPrefix(string(tag), strings.TrimSuffix(selector, "*"))
	}
	return selector == string(tag)
}

// IsWildcard reports whether this path's selector names a pattern
// rather than one concrete tag.
func (p PathSpec) IsWildcard() bool {
	return strings.HasSuffix(string(p.SourceTag), "*")
}

// DesiredState is the declarative snapshot the applier reconciles
// against the live topology.
type DesiredState struct {
	Sinks []SinkSpec `yaml:"sinks"`
	Paths []PathSpec `yaml:"paths"`
}
