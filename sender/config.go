package sender

import "time"

// Config tunes the network senders' socket handling and failure
// recovery.
type Config struct {
	// DestAddr is the network destination (host:port) for Scream-UDP
	// and RTP senders.
	DestAddr string `yaml:"dest_addr"`

	// RTPPayloadType is the RTP payload type byte senders stamp on
	// outgoing packets.
	RTPPayloadType uint8 `yaml:"rtp_payload_type"`
	// RTPSSRC is the synchronization source identifier for this
	// sink's RTP stream.
	RTPSSRC uint32 `yaml:"rtp_ssrc"`

	// ReopenBackoffInitial and ReopenBackoffMax bound the socket
	// re-open backoff after a send failure.
	ReopenBackoffInitial time.Duration `yaml:"reopen_backoff_initial"`
	ReopenBackoffMax     time.Duration `yaml:"reopen_backoff_max"`

	// FaultThreshold is the number of consecutive send failures after
	// which the sender enters the faulted state.
	FaultThreshold int `yaml:"fault_threshold"`

	// PlaybackDeviceName selects the PortAudio output device for a
	// local-playback sink whose own spec names none; empty selects the
	// system default.
	PlaybackDeviceName string `yaml:"playback_device_name"`
}

// DefaultConfig returns conservative sender defaults.
func DefaultConfig() Config {
	return Config{
		RTPPayloadType:       97,
		ReopenBackoffInitial: 100 * time.Millisecond,
		ReopenBackoffMax:     5 * time.Second,
		FaultThreshold:       8,
	}
}
