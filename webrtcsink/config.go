package webrtcsink

import "time"

// Config tunes a sink's WebRTC listener manager.
type Config struct {
	// OfferTimeout bounds how long AddListener waits for ICE gathering
	// on the answer to complete before reporting failure.
	OfferTimeout time.Duration `yaml:"offer_timeout"`

	// HeartbeatTimeout is the silence interval after which a listener
	// with no observed heartbeat is removed.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`

	// SweepInterval is how often the background goroutine checks every
	// listener's heartbeat age.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// ICEServers lists STUN/TURN servers offered during negotiation.
	ICEServers []string `yaml:"ice_servers"`
}

// DefaultConfig returns the manager's default tuning.
func DefaultConfig() Config {
	return Config{
		OfferTimeout:     5 * time.Second,
		HeartbeatTimeout: 15 * time.Second,
		SweepInterval:    5 * time.Second,
	}
}
