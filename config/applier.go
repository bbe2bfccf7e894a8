package config

import (
	"reflect"
	"sync"

	"github.com/netaudio/router/packet"
	"github.com/sirupsen/logrus"
)

// Runtime is the set of effectful operations the engine exposes to the
// applier. Every method must be idempotent-safe to retry and should
// return a descriptive error for ErrList reporting rather than
// panicking.
type Runtime interface {
	CreateSink(spec SinkSpec) error
	UpdateSink(spec SinkSpec) error
	RemoveSink(id SinkID) error

	// CreatePath registers a path's processor and cursor. Creating a
	// path for a tag no packet has carried yet must succeed; the
	// applier just won't connect its lane until the matching
	// first-seen notification arrives.
	CreatePath(spec PathSpec) error
	UpdatePath(spec PathSpec) error
	RemovePath(id PathID) error

	ConnectPathToSink(pathID PathID, sinkID SinkID) error
	DisconnectPathFromSink(pathID PathID, sinkID SinkID) error
}

// Result reports what one Apply call actually changed. Applying the
// same desired state twice in a row must report zero of everything on
// the second call.
type Result struct {
	SinksCreated, SinksUpdated, SinksRemoved int
	PathsCreated, PathsUpdated, PathsRemoved int
	// Errors lists per-item rejections; the remainder of the state is
	// still applied.
	Errors []error
}

// Applier reconciles a DesiredState against a live shadow. All Apply
// calls are serialized through a single mutex; an error on one item
// aborts only that item and leaves the shadow consistent with the
// last successfully applied delta.
type Applier struct {
	mu sync.Mutex

	runtime Runtime

	liveSinks map[SinkID]SinkSpec
	livePaths map[PathID]PathSpec

	// pendingPaths holds paths whose source tag selector has not
	// matched any seen tag yet; they are created (processor + cursor)
	// but not connected to their sink's mixer.
	pendingPaths map[PathID]PathSpec

	seenTags map[packet.Tag]struct{}
}

// NewApplier creates an applier with an empty shadow.
func NewApplier(runtime Runtime) *Applier {
	return &Applier{
		runtime:      runtime,
		liveSinks:    make(map[SinkID]SinkSpec),
		livePaths:    make(map[PathID]PathSpec),
		pendingPaths: make(map[PathID]PathSpec),
		seenTags:     make(map[packet.Tag]struct{}),
	}
}

// Apply reconciles desired against the live shadow. It is safe to
// call concurrently; calls are serialized.
func (a *Applier) Apply(desired DesiredState) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var result Result

	sinkByID := make(map[SinkID]SinkSpec, len(desired.Sinks))
	for _, s := range desired.Sinks {
		if _, dup := sinkByID[s.ID]; dup {
			return result, ErrDuplicateSinkID
		}
		sinkByID[s.ID] = s
	}
	pathByID := make(map[PathID]PathSpec, len(desired.Paths))
	for _, p := range desired.Paths {
		if _, dup := pathByID[p.ID]; dup {
			return result, ErrDuplicatePathID
		}
		if _, ok := sinkByID[p.SinkID]; !ok {
			result.Errors = append(result.Errors, pathErr(p.ID, ErrUnknownSink))
			continue
		}
		pathByID[p.ID] = p
	}

	// 1. Remove paths before their sinks.
	for id, live := range a.livePaths {
		if _, keep := pathByID[id]; keep {
			continue
		}
		a.removePathLocked(id, live, &result)
	}
	for id := range a.pendingPaths {
		if _, keep := pathByID[id]; keep {
			continue
		}
		// Pending paths were created (cursor + processor goroutine)
		// even though they never connected to a lane, so they still
		// need a runtime removal.
		if err := a.runtime.RemovePath(id); err != nil {
			result.Errors = append(result.Errors, pathErr(id, err))
			continue
		}
		delete(a.pendingPaths, id)
		result.PathsRemoved++
		logrus.WithFields(logrus.Fields{
			"function": "Applier.Apply",
			"path_id":  string(id),
		}).Info("removed pending path")
	}

	// 2. Remove sinks whose paths have all detached.
	for id := range a.liveSinks {
		if _, keep := sinkByID[id]; keep {
			continue
		}
		// Kept paths still attached to this sink (they are retargeted
		// in step 4) are detached first.
		for pid, live := range a.livePaths {
			if live.SinkID == id {
				if err := a.runtime.DisconnectPathFromSink(pid, id); err != nil {
					result.Errors = append(result.Errors, pathErr(pid, err))
				}
			}
		}
		if err := a.runtime.RemoveSink(id); err != nil {
			result.Errors = append(result.Errors, sinkErr(id, err))
			continue
		}
		delete(a.liveSinks, id)
		result.SinksRemoved++
	}

	// 3. Create/update sinks before their paths.
	for id, spec := range sinkByID {
		live, exists := a.liveSinks[id]
		switch {
		case !exists:
			if err := a.runtime.CreateSink(spec); err != nil {
				result.Errors = append(result.Errors, sinkErr(id, err))
				continue
			}
			a.liveSinks[id] = spec
			result.SinksCreated++
		case !reflect.DeepEqual(live, spec):
			if err := a.runtime.UpdateSink(spec); err != nil {
				result.Errors = append(result.Errors, sinkErr(id, err))
				continue
			}
			a.liveSinks[id] = spec
			result.SinksUpdated++
		}
	}

	// 4. Create/update paths (and attach pending ones whose tag has
	// already been seen).
	for id, spec := range pathByID {
		a.applyPathLocked(id, spec, &result)
	}

	return result, nil
}

func (a *Applier) applyPathLocked(id PathID, spec PathSpec, result *Result) {
	live, isLive := a.livePaths[id]
	pending, isPending := a.pendingPaths[id]

	switch {
	case isLive && reflect.DeepEqual(live, spec):
		return
	case isLive:
		if err := a.runtime.UpdatePath(spec); err != nil {
			result.Errors = append(result.Errors, pathErr(id, err))
			return
		}
		if live.SinkID != spec.SinkID {
			if err := a.runtime.DisconnectPathFromSink(id, live.SinkID); err != nil {
				result.Errors = append(result.Errors, pathErr(id, err))
			}
			if err := a.runtime.ConnectPathToSink(id, spec.SinkID); err != nil {
				result.Errors = append(result.Errors, pathErr(id, err))
				return
			}
		}
		a.livePaths[id] = spec
		result.PathsUpdated++
	case isPending && reflect.DeepEqual(pending, spec):
		return
	case isPending:
		if err := a.runtime.UpdatePath(spec); err != nil {
			result.Errors = append(result.Errors, pathErr(id, err))
			return
		}
		a.pendingPaths[id] = spec
		result.PathsUpdated++
	default:
		if err := a.runtime.CreatePath(spec); err != nil {
			result.Errors = append(result.Errors, pathErr(id, err))
			return
		}
		if a.tagResolvable(spec) {
			if err := a.runtime.ConnectPathToSink(id, spec.SinkID); err != nil {
				result.Errors = append(result.Errors, pathErr(id, err))
				return
			}
			a.livePaths[id] = spec
		} else {
			a.pendingPaths[id] = spec
			logrus.WithFields(logrus.Fields{
				"function":   "Applier.applyPathLocked",
				"path_id":    string(id),
				"source_tag": string(spec.SourceTag),
			}).Info("path pending: source tag not yet seen")
		}
		result.PathsCreated++
	}
}

func (a *Applier) tagResolvable(spec PathSpec) bool {
	if spec.IsWildcard() {
		for tag := range a.seenTags {
			if spec.MatchesTag(tag) {
				return true
			}
		}
		return false
	}
	_, ok := a.seenTags[spec.SourceTag]
	return ok
}

func (a *Applier) removePathLocked(id PathID, spec PathSpec, result *Result) {
	if err := a.runtime.DisconnectPathFromSink(id, spec.SinkID); err != nil {
		result.Errors = append(result.Errors, pathErr(id, err))
	}
	if err := a.runtime.RemovePath(id); err != nil {
		result.Errors = append(result.Errors, pathErr(id, err))
		return
	}
	delete(a.livePaths, id)
	result.PathsRemoved++
}

// OnTagFirstSeen is called by the engine when the timeshift manager
// reports a tag's first packet. Any pending path whose selector matches tag is
// connected to its sink.
func (a *Applier) OnTagFirstSeen(tag packet.Tag) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seenTags[tag] = struct{}{}

	for id, spec := range a.pendingPaths {
		if !spec.MatchesTag(tag) {
			continue
		}
		if err := a.runtime.ConnectPathToSink(id, spec.SinkID); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Applier.OnTagFirstSeen",
				"path_id":  string(id),
				"tag":      string(tag),
				"error":    err.Error(),
			}).Warn("failed to attach pending path")
			continue
		}
		delete(a.pendingPaths, id)
		a.livePaths[id] = spec
		logrus.WithFields(logrus.Fields{
			"function": "Applier.OnTagFirstSeen",
			"path_id":  string(id),
			"tag":      string(tag),
		}).Info("attached pending path")
	}
}

// LiveSinks returns a snapshot of the currently live sink specs.
func (a *Applier) LiveSinks() map[SinkID]SinkSpec {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[SinkID]SinkSpec, len(a.liveSinks))
	for k, v := range a.liveSinks {
		out[k] = v
	}
	return out
}

// LivePaths returns a snapshot of the currently connected path specs.
func (a *Applier) LivePaths() map[PathID]PathSpec {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[PathID]PathSpec, len(a.livePaths))
	for k, v := range a.livePaths {
		out[k] = v
	}
	return out
}

// PendingPaths returns a snapshot of paths awaiting their source tag.
func (a *Applier) PendingPaths() map[PathID]PathSpec {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[PathID]PathSpec, len(a.pendingPaths))
	for k, v := range a.pendingPaths {
		out[k] = v
	}
	return out
}

func sinkErr(id SinkID, err error) error {
	return &itemError{kind: "sink", id: string(id), err: err}
}

func pathErr(id PathID, err error) error {
	return &itemError{kind: "path", id: string(id), err: err}
}

type itemError struct {
	kind string
	id   string
	err  error
}

func (e *itemError) Error() string {
	return e.kind + " " + e.id + ": " + e.err.Error()
}

func (e *itemError) Unwrap() error {
	return e.err
}
