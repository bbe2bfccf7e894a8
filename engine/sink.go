package engine

import (
	"context"
	"fmt"

	"github.com/netaudio/router/config"
	"github.com/netaudio/router/mixer"
	"github.com/netaudio/router/sender"
	"github.com/netaudio/router/webrtcsink"
)

// sinkRuntime is everything the engine keeps alive for one live sink:
// its mixer, the transport consumer it was built with, and whatever
// background goroutine drives its tick loop.
type sinkRuntime struct {
	spec config.SinkSpec

	mx *mixer.Mixer

	closer  func() error
	faulted func() bool
	sideTap *mixer.HTTPStreamTap
	webrtc  *webrtcsink.Manager
	alsa    *sender.ALSASender

	cancel context.CancelFunc
}

// newSinkRuntime builds the mixer and transport consumer for one sink
// spec, and starts its tick loop. syncGroup is the engine's shared
// barrier; the mixer joins it only when spec.TimeSync is set and
// syncGroup is non-nil.
func (e *Engine) newSinkRuntime(spec config.SinkSpec, syncGroup *mixer.SyncGroup) (*sinkRuntime, error) {
	mixCfg := e.cfg.Mixer
	mixCfg.EnableMultiSinkSync = spec.TimeSync && syncGroup != nil

	var (
		primary mixer.ChunkConsumer
		closer  func() error
		faulted func() bool
		webrtcM *webrtcsink.Manager
		alsaS   *sender.ALSASender
	)

	switch spec.Protocol {
	case config.ProtocolScreamUDP:
		s, err := sender.NewScreamSender(string(spec.ID), spec.Format, senderConfigFor(e.cfg.Sender, spec))
		if err != nil {
			return nil, fmt.Errorf("engine: scream-udp sender: %w", err)
		}
		primary, closer, faulted = s, s.Close, s.Faulted

	case config.ProtocolRTP:
		s, err := sender.NewRTPSender(string(spec.ID), spec.Format, senderConfigFor(e.cfg.Sender, spec))
		if err != nil {
			return nil, fmt.Errorf("engine: rtp sender: %w", err)
		}
		primary, closer, faulted = s, s.Close, s.Faulted

	case config.ProtocolWebRTC:
		m := webrtcsink.NewManager(string(spec.ID), spec.Format, e.cfg.WebRTC, e.onWebRTCListenerRemoved(spec.ID))
		primary, closer, webrtcM = m, func() error { m.Close(); return nil }, m

	case config.ProtocolALSA:
		mixCfg.Pacing = mixer.PacingHardwareClock
		device := spec.PlaybackDeviceName
		if device == "" {
			device = e.cfg.Sender.PlaybackDeviceName
		}
		s, err := sender.NewALSASender(string(spec.ID), spec.Format, mixCfg.FramesPerChunk, device)
		if err != nil {
			return nil, fmt.Errorf("engine: alsa sender: %w", err)
		}
		primary, closer, faulted, alsaS = s, s.Close, s.Faulted, s

	default:
		return nil, ErrUnknownProtocol
	}

	var sg *mixer.SyncGroup
	if mixCfg.EnableMultiSinkSync {
		sg = syncGroup
	}
	mx := mixer.NewMixer(string(spec.ID), spec.Format, mixCfg, primary, sg)

	var tap *mixer.HTTPStreamTap
	if spec.MP3SideTap {
		tap = mixer.NewHTTPStreamTap()
		mx.AddSideTap(tap)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sr := &sinkRuntime{
		spec:    spec,
		mx:      mx,
		closer:  closer,
		faulted: faulted,
		sideTap: tap,
		webrtc:  webrtcM,
		alsa:    alsaS,
		cancel:  cancel,
	}

	switch mixCfg.Pacing {
	case mixer.PacingHardwareClock:
		go alsaS.Run(ctx, mx)
	default:
		go mx.Run(ctx)
	}

	return sr, nil
}

func senderConfigFor(base sender.Config, spec config.SinkSpec) sender.Config {
	cfg := base
	cfg.DestAddr = spec.DestAddr
	return cfg
}

func (sr *sinkRuntime) close() error {
	sr.cancel()
	if sr.closer != nil {
		return sr.closer()
	}
	return nil
}
