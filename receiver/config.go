package receiver

import "time"

// Protocol selects a receiver's wire format.
type Protocol int

const (
	ProtocolScreamUDP Protocol = iota
	ProtocolRTP
	// ProtocolRTPPerProcess is the extended RTP variant whose header
	// carries a per-process origination identifier. It needs its own
	// receiver binding: the origination bytes are indistinguishable
	// from leading PCM on a plain RTP socket.
	ProtocolRTPPerProcess
)

func (p Protocol) String() string {
	switch p {
	case ProtocolScreamUDP:
		return "scream-udp"
	case ProtocolRTP:
		return "rtp"
	case ProtocolRTPPerProcess:
		return "rtp-process"
	default:
		return "unknown"
	}
}

// Config tunes a single receiver's socket handling and RTP continuity
// rules.
type Config struct {
	ListenAddr string   `yaml:"listen_addr"`
	Protocol   Protocol `yaml:"protocol"`

	// TagIncludesPort distinguishes ephemeral-port-level source tags
	// from the common per-IP tag.
	TagIncludesPort bool `yaml:"tag_includes_port"`

	// ReadBufferSize bounds the largest datagram a receiver accepts.
	ReadBufferSize int `yaml:"read_buffer_size"`

	// ReadTimeout bounds each non-blocking socket read, letting the
	// worker loop observe context cancellation promptly.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// RTPSequenceSlack is the maximum forward sequence-number jump
	// tolerated before a discontinuity is treated as a session reset.
	RTPSequenceSlack uint16 `yaml:"rtp_sequence_slack"`

	// RTPSessionResetThreshold is the silence interval after which an
	// RTP stream's continuity state is reset even without a sequence
	// jump.
	RTPSessionResetThreshold time.Duration `yaml:"rtp_session_reset_threshold_seconds"`

	// RebindBackoffInitial and RebindBackoffMax bound the socket
	// rebind backoff after a fatal read error.
	RebindBackoffInitial time.Duration `yaml:"rebind_backoff_initial"`
	RebindBackoffMax     time.Duration `yaml:"rebind_backoff_max"`
}

// DefaultConfig returns the receiver's default tuning.
func DefaultConfig() Config {
	return Config{
		Protocol:                 ProtocolScreamUDP,
		ReadBufferSize:           65536,
		ReadTimeout:              100 * time.Millisecond,
		RTPSequenceSlack:         64,
		RTPSessionResetThreshold: 5 * time.Second,
		RebindBackoffInitial:     100 * time.Millisecond,
		RebindBackoffMax:         5 * time.Second,
	}
}
