package engine

import (
	"time"

	"github.com/netaudio/router/dsp"
	"github.com/netaudio/router/mixer"
	"github.com/netaudio/router/receiver"
	"github.com/netaudio/router/sender"
	"github.com/netaudio/router/timeshift"
	"github.com/netaudio/router/webrtcsink"
)

// Config aggregates every package's tunables into the single struct
// the process entrypoint loads.
type Config struct {
	Timeshift timeshift.Config  `yaml:"timeshift"`
	Processor dsp.Config        `yaml:"processor"`
	Mixer     mixer.Config      `yaml:"mixer"`
	Sender    sender.Config     `yaml:"sender"`
	WebRTC    webrtcsink.Config `yaml:"webrtc"`
	Receiver  receiver.Config   `yaml:"receiver"`

	// PathLoopInterval is the fixed period between a path processing
	// goroutine's cursor reads ("loop_max_sleep_ms").
	PathLoopInterval time.Duration `yaml:"loop_max_sleep_ms"`

	// UnderrunHoldTimeout is how long a path may read nothing but
	// underrun signals before it starts pushing silence chunks to its
	// lane.
	UnderrunHoldTimeout time.Duration `yaml:"underrun_hold_timeout_ms"`
}

// DefaultConfig returns the engine's default tuning, composed from
// every subsystem's own defaults.
func DefaultConfig() Config {
	return Config{
		Timeshift:           timeshift.DefaultConfig(),
		Processor:           dsp.DefaultConfig(),
		Mixer:               mixer.DefaultConfig(),
		Sender:              sender.DefaultConfig(),
		WebRTC:              webrtcsink.DefaultConfig(),
		Receiver:            receiver.DefaultConfig(),
		PathLoopInterval:    10 * time.Millisecond,
		UnderrunHoldTimeout: 500 * time.Millisecond,
	}
}
