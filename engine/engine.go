package engine

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/netaudio/router/config"
	"github.com/netaudio/router/mixer"
	"github.com/netaudio/router/packet"
	"github.com/netaudio/router/receiver"
	"github.com/netaudio/router/stats"
	"github.com/netaudio/router/timeshift"
	"github.com/sirupsen/logrus"
)

// Engine is the top-level composition root: it owns the timeshift
// manager, every live receiver/sink/path, and exposes the
// control-plane contract. It implements config.Runtime so a
// config.Applier can reconcile a config.DesiredState against it.
type Engine struct {
	cfg Config

	ts      *timeshift.Manager
	applier *config.Applier

	mu        sync.RWMutex
	sinks     map[config.SinkID]*sinkRuntime
	paths     map[config.PathID]*pathRuntime
	receivers map[string]*receiverRuntime

	syncGroup     *mixer.SyncGroup
	syncGroupSize int
}

type receiverRuntime struct {
	r      *receiver.Receiver
	kind   string
	cancel func()
}

// New creates an Engine with an empty shadow topology.
func New(cfg Config) *Engine {
	e := &Engine{
		cfg:       cfg,
		sinks:     make(map[config.SinkID]*sinkRuntime),
		paths:     make(map[config.PathID]*pathRuntime),
		receivers: make(map[string]*receiverRuntime),
	}
	e.ts = timeshift.NewManager(cfg.Timeshift, e.onTagFirstSeen)
	e.applier = config.NewApplier(e)
	logrus.WithFields(logrus.Fields{
		"function": "engine.New",
	}).Info("engine created")
	return e
}

// onTagFirstSeen bridges the timeshift manager's discovery callback to
// the applier's pending-path attach logic.
func (e *Engine) onTagFirstSeen(tag packet.Tag) {
	e.applier.OnTagFirstSeen(tag)
}

// ApplyState reconciles desired against the live topology.
func (e *Engine) ApplyState(desired config.DesiredState) (config.Result, error) {
	return e.applier.Apply(desired)
}

// ExportTimeshift returns up to lookbackSec of contiguous PCM for tag.
func (e *Engine) ExportTimeshift(tag packet.Tag, lookbackSec float64) ([]byte, packet.Format, time.Duration, time.Duration, error) {
	return e.ts.ExportWindow(tag, lookbackSec)
}

// ListSeenTags returns every source tag observed at least once.
// receiverKind is accepted for interface parity with callers that
// distinguish receiver kinds, but every tag is currently
// protocol-agnostic once in the timeshift buffer, so it is unused for
// filtering.
func (e *Engine) ListSeenTags(receiverKind string) []packet.Tag {
	_ = receiverKind
	return e.ts.SeenTags()
}

// AddReceiver starts a new receiver bound at cfg.ListenAddr and
// registers it under id.
func (e *Engine) AddReceiver(id string, cfg receiver.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.receivers[id]; exists {
		return ErrReceiverExists
	}

	r, err := receiver.New(cfg, e.ts)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	e.receivers[id] = &receiverRuntime{
		r:    r,
		kind: cfg.Protocol.String(),
		cancel: func() {
			cancel()
			_ = r.Close()
		},
	}
	logrus.WithFields(logrus.Fields{
		"function":    "Engine.AddReceiver",
		"receiver_id": id,
		"listen_addr": cfg.ListenAddr,
		"protocol":    cfg.Protocol.String(),
	}).Info("receiver started")
	return nil
}

// ReceiverAddr returns the bound local address of a running receiver,
// for callers (tests, discovery UIs) that started it with an
// OS-assigned port.
func (e *Engine) ReceiverAddr(id string) (net.Addr, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rr, ok := e.receivers[id]
	if !ok {
		return nil, false
	}
	return rr.r.LocalAddr(), true
}

// RemoveReceiver stops and unregisters a receiver.
func (e *Engine) RemoveReceiver(id string) error {
	e.mu.Lock()
	rr, ok := e.receivers[id]
	if ok {
		delete(e.receivers, id)
	}
	e.mu.Unlock()
	if !ok {
		return ErrReceiverNotFound
	}
	rr.cancel()
	return nil
}

// --- config.Runtime implementation ---

// CreateSink builds a sink's mixer and transport consumer and starts
// its tick loop.
func (e *Engine) CreateSink(spec config.SinkSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.sinks[spec.ID]; exists {
		return ErrSinkExists
	}

	if spec.TimeSync {
		e.syncGroupSize++
		if e.syncGroup == nil {
			e.syncGroup = mixer.NewSyncGroup(e.syncGroupSize)
		} else {
			e.syncGroup.SetMembers(e.syncGroupSize)
		}
	}

	sr, err := e.newSinkRuntime(spec, e.syncGroup)
	if err != nil {
		if spec.TimeSync {
			e.syncGroupSize--
			if e.syncGroup != nil {
				e.syncGroup.SetMembers(e.syncGroupSize)
			}
		}
		return err
	}
	e.sinks[spec.ID] = sr
	logrus.WithFields(logrus.Fields{
		"function": "Engine.CreateSink",
		"sink_id":  string(spec.ID),
		"protocol": string(spec.Protocol),
	}).Info("sink created")
	return nil
}

// UpdateSink applies a changed sink spec by tearing the sink down and
// rebuilding its mixer/consumer from the new spec, whichever fields
// changed; connected lanes are recreated empty and repopulate on the
// paths' next processing tick.
func (e *Engine) UpdateSink(spec config.SinkSpec) error {
	e.mu.Lock()
	old, ok := e.sinks[spec.ID]
	e.mu.Unlock()
	if !ok {
		return ErrSinkNotFound
	}

	lanes := old.mx.Stats()

	if err := e.RemoveSink(spec.ID); err != nil {
		return err
	}
	if err := e.CreateSink(spec); err != nil {
		return err
	}

	e.mu.RLock()
	sr := e.sinks[spec.ID]
	e.mu.RUnlock()
	for _, l := range lanes {
		_ = sr.mx.AddLane(l.PathID)
	}
	logrus.WithFields(logrus.Fields{
		"function": "Engine.UpdateSink",
		"sink_id":  string(spec.ID),
	}).Info("sink updated")
	return nil
}

// RemoveSink tears down a sink's mixer and transport consumer. The
// applier only calls it after every connected path has detached.
func (e *Engine) RemoveSink(id config.SinkID) error {
	e.mu.Lock()
	sr, ok := e.sinks[id]
	if ok {
		delete(e.sinks, id)
		if sr.spec.TimeSync {
			e.syncGroupSize--
			if e.syncGroup != nil {
				e.syncGroup.SetMembers(e.syncGroupSize)
			}
		}
	}
	e.mu.Unlock()
	if !ok {
		return ErrSinkNotFound
	}
	err := sr.close()
	logrus.WithFields(logrus.Fields{
		"function": "Engine.RemoveSink",
		"sink_id":  string(id),
	}).Info("sink removed")
	return err
}

// CreatePath registers a path's cursor and processing goroutine. It
// succeeds for tags no packet has carried yet: registering a cursor
// for an unseen tag is exactly how pending paths are modeled, and the
// applier decides separately whether to connect the lane.
func (e *Engine) CreatePath(spec config.PathSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.paths[spec.ID]; exists {
		return ErrPathExists
	}
	if _, ok := e.sinks[spec.SinkID]; !ok {
		return ErrSinkNotFound
	}
	pr := e.newPathRuntime(spec)
	e.paths[spec.ID] = pr
	logrus.WithFields(logrus.Fields{
		"function":   "Engine.CreatePath",
		"path_id":    string(spec.ID),
		"source_tag": string(spec.SourceTag),
		"sink_id":    string(spec.SinkID),
	}).Info("path created")
	return nil
}

// UpdatePath republishes a path's DSP parameters. A lag change
// (timeshift_sec plus delay_ms) larger than the processor's
// discontinuity threshold is a cursor reseek, not a controller input:
// the cursor jumps straight to the new position and its PI state
// resets, rather than pitch-bending across the step.
func (e *Engine) UpdatePath(spec config.PathSpec) error {
	e.mu.RLock()
	pr, ok := e.paths[spec.ID]
	e.mu.RUnlock()
	if !ok {
		return ErrPathNotFound
	}

	oldLag := pr.lagSeconds()
	pr.updateSpec(spec)
	newLag := pathLagSeconds(spec)

	threshold := float64(e.cfg.Processor.DiscontinuityThresholdMS) / 1000.0
	if diff := newLag - oldLag; diff > threshold || diff < -threshold {
		e.ts.ReseekCursor(pr.cursor, newLag)
	}
	return nil
}

// RemovePath stops a path's processing goroutine, unregisters its
// cursor, and deletes it.
func (e *Engine) RemovePath(id config.PathID) error {
	e.mu.Lock()
	pr, ok := e.paths[id]
	if ok {
		delete(e.paths, id)
	}
	e.mu.Unlock()
	if !ok {
		return ErrPathNotFound
	}
	pr.close()
	e.ts.UnregisterCursor(pr.cursor)
	logrus.WithFields(logrus.Fields{
		"function": "Engine.RemovePath",
		"path_id":  string(id),
	}).Info("path removed")
	return nil
}

// ConnectPathToSink adds the path's lane to its sink's mixer and marks
// it connected so its processing goroutine starts delivering chunks.
func (e *Engine) ConnectPathToSink(pathID config.PathID, sinkID config.SinkID) error {
	e.mu.RLock()
	pr, pok := e.paths[pathID]
	sr, sok := e.sinks[sinkID]
	e.mu.RUnlock()
	if !pok {
		return ErrPathNotFound
	}
	if !sok {
		return ErrSinkNotFound
	}

	if err := sr.mx.AddLane(string(pathID)); err != nil && err != mixer.ErrLaneExists {
		return err
	}

	pr.mu.Lock()
	pr.connectedSink = sinkID
	pr.mu.Unlock()
	return nil
}

// DisconnectPathFromSink removes the path's lane from its sink's mixer
// and marks it unconnected.
func (e *Engine) DisconnectPathFromSink(pathID config.PathID, sinkID config.SinkID) error {
	e.mu.RLock()
	pr, pok := e.paths[pathID]
	sr, sok := e.sinks[sinkID]
	e.mu.RUnlock()

	if pok {
		pr.mu.Lock()
		if pr.connectedSink == sinkID {
			pr.connectedSink = ""
		}
		pr.mu.Unlock()
	}
	if !sok {
		return nil
	}
	if err := sr.mx.RemoveLane(string(pathID)); err != nil && err != mixer.ErrLaneNotFound {
		return err
	}
	return nil
}

// --- WebRTC signaling passthroughs ---

// AddWebRTCListener negotiates a new listener on a webrtc sink.
func (e *Engine) AddWebRTCListener(sinkID config.SinkID, listenerID, offerSDP string, onLocalDescription func(string), onICECandidate func(string), clientIP string) (bool, error) {
	sr, ok := e.sinkRuntimeFor(sinkID)
	if !ok {
		return false, ErrSinkNotFound
	}
	if sr.webrtc == nil {
		return false, ErrNotWebRTCSink
	}
	return sr.webrtc.AddListener(listenerID, offerSDP, onLocalDescription, onICECandidate, clientIP)
}

// AddRemoteICE forwards a remote ICE candidate to a webrtc sink's listener.
func (e *Engine) AddRemoteICE(sinkID config.SinkID, listenerID, candidate, sdpMid string) error {
	sr, ok := e.sinkRuntimeFor(sinkID)
	if !ok {
		return ErrSinkNotFound
	}
	if sr.webrtc == nil {
		return ErrNotWebRTCSink
	}
	return sr.webrtc.AddRemoteICE(listenerID, candidate, sdpMid)
}

// RemoveWebRTCListener tears down a webrtc sink's listener.
func (e *Engine) RemoveWebRTCListener(sinkID config.SinkID, listenerID string) error {
	sr, ok := e.sinkRuntimeFor(sinkID)
	if !ok {
		return ErrSinkNotFound
	}
	if sr.webrtc == nil {
		return ErrNotWebRTCSink
	}
	return sr.webrtc.RemoveListener(listenerID)
}

// onWebRTCListenerRemoved builds the manager-level onRemoved hook for
// one sink. The hook only logs the removal: the applier is not
// notified and no routes are changed.
func (e *Engine) onWebRTCListenerRemoved(sinkID config.SinkID) func(listenerID string) {
	return func(listenerID string) {
		logrus.WithFields(logrus.Fields{
			"function":    "Engine.onWebRTCListenerRemoved",
			"sink_id":     string(sinkID),
			"listener_id": listenerID,
		}).Info("webrtc listener removed")
	}
}

func (e *Engine) sinkRuntimeFor(id config.SinkID) (*sinkRuntime, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sr, ok := e.sinks[id]
	return sr, ok
}

// GetStats assembles the control-plane stats snapshot. Receiver
// counters are atomic reads; the rest are read under their owners'
// locks (engine read lock, partition read locks, mixer and cursor
// mutexes), which receivers and path goroutines also take.
func (e *Engine) GetStats() stats.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := stats.Snapshot{
		Sinks:   make(map[string]stats.SinkSnapshot, len(e.sinks)),
		Sources: make(map[string]stats.SourceSnapshot),
		Streams: make(map[string]stats.StreamSnapshot, len(e.receivers)),
	}

	snap.Global.SeenTags = len(e.ts.SeenTags())

	for sinkID, sr := range e.sinks {
		s := stats.SinkSnapshot{SinkID: string(sinkID)}
		if sr.faulted != nil {
			s.Faulted = sr.faulted()
		}
		for _, l := range sr.mx.Stats() {
			s.Lanes = append(s.Lanes, stats.LaneSnapshot{
				PathID:    l.PathID,
				State:     l.State.String(),
				Underruns: l.Underruns,
			})
		}
		if sr.webrtc != nil {
			s.WebRTCListeners = sr.webrtc.ListenerCount()
		}
		snap.Sinks[string(sinkID)] = s
	}

	cursorsByTag := make(map[packet.Tag][]*pathRuntime)
	for _, pr := range e.paths {
		cursorsByTag[pr.cursor.Tag()] = append(cursorsByTag[pr.cursor.Tag()], pr)
	}

	for _, p := range e.ts.Stats() {
		var underruns, overruns uint64
		rate := 1.0
		for _, pr := range cursorsByTag[p.Tag] {
			u, o := pr.cursor.Counters()
			underruns += u
			overruns += o
			rate = pr.cursor.Rate()
		}
		snap.Sources[string(p.Tag)] = stats.SourceSnapshot{
			Tag:             string(p.Tag),
			PacketCount:     p.PacketCount,
			DroppedOld:      p.DroppedOld,
			DroppedFull:     p.DroppedFull,
			CursorUnderruns: underruns,
			CursorOverruns:  overruns,
			PlaybackRate:    rate,
		}
	}

	for id, rr := range e.receivers {
		rs := rr.r.Stats()
		snap.Streams[id] = stats.StreamSnapshot{
			ReceiverID:       id,
			Protocol:         rr.kind,
			PacketsReceived:  rs.PacketsReceived,
			PacketsDropped:   rs.PacketsDropped,
			MalformedDropped: rs.MalformedDropped,
			Rebinds:          rs.Rebinds,
		}
		snap.Global.TotalPacketsReceived += rs.PacketsReceived
		snap.Global.TotalPacketsDropped += rs.PacketsDropped
		snap.Global.TotalMalformedDropped += rs.MalformedDropped
		snap.Global.TotalRebinds += rs.Rebinds
	}

	return snap
}

// Close stops every receiver, path, and sink and releases the
// timeshift manager.
func (e *Engine) Close() {
	e.mu.Lock()
	receivers := e.receivers
	paths := e.paths
	sinks := e.sinks
	e.receivers = make(map[string]*receiverRuntime)
	e.paths = make(map[config.PathID]*pathRuntime)
	e.sinks = make(map[config.SinkID]*sinkRuntime)
	e.mu.Unlock()

	for _, rr := range receivers {
		rr.cancel()
	}
	for _, pr := range paths {
		pr.close()
	}
	for _, sr := range sinks {
		_ = sr.close()
	}
	e.ts.Close()
	logrus.WithFields(logrus.Fields{
		"function": "Engine.Close",
	}).Info("engine closed")
}
