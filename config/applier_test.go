package config

import (
	"errors"
	"sync"
	"testing"

	"github.com/netaudio/router/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	mu sync.Mutex

	sinks     map[SinkID]SinkSpec
	paths     map[PathID]PathSpec
	lanes     map[PathID]SinkID
	failSinks map[SinkID]bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		sinks:     make(map[SinkID]SinkSpec),
		paths:     make(map[PathID]PathSpec),
		lanes:     make(map[PathID]SinkID),
		failSinks: make(map[SinkID]bool),
	}
}

func (f *fakeRuntime) CreateSink(spec SinkSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSinks[spec.ID] {
		return errors.New("injected failure")
	}
	f.sinks[spec.ID] = spec
	return nil
}

func (f *fakeRuntime) UpdateSink(spec SinkSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks[spec.ID] = spec
	return nil
}

func (f *fakeRuntime) RemoveSink(id SinkID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sinks, id)
	return nil
}

func (f *fakeRuntime) CreatePath(spec PathSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths[spec.ID] = spec
	return nil
}

func (f *fakeRuntime) UpdatePath(spec PathSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths[spec.ID] = spec
	return nil
}

func (f *fakeRuntime) RemovePath(id PathID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.paths, id)
	return nil
}

func (f *fakeRuntime) ConnectPathToSink(pathID PathID, sinkID SinkID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lanes[pathID] = sinkID
	return nil
}

func (f *fakeRuntime) DisconnectPathFromSink(pathID PathID, sinkID SinkID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.lanes, pathID)
	return nil
}

func TestApplyCreatesSinksBeforePaths(t *testing.T) {
	rt := newFakeRuntime()
	a := NewApplier(rt)

	desired := DesiredState{
		Sinks: []SinkSpec{{ID: "s1", Protocol: ProtocolScreamUDP}},
		Paths: []PathSpec{{ID: "p1", SourceTag: "10.0.0.5", SinkID: "s1"}},
	}
	a.OnTagFirstSeen("10.0.0.5")

	result, err := a.Apply(desired)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SinksCreated)
	assert.Equal(t, 1, result.PathsCreated)
	assert.Equal(t, SinkID("s1"), rt.lanes["p1"])
}

func TestApplyTwiceIsIdempotent(t *testing.T) {
	rt := newFakeRuntime()
	a := NewApplier(rt)
	a.OnTagFirstSeen("10.0.0.5")

	desired := DesiredState{
		Sinks: []SinkSpec{{ID: "s1", Protocol: ProtocolScreamUDP}},
		Paths: []PathSpec{{ID: "p1", SourceTag: "10.0.0.5", SinkID: "s1"}},
	}

	_, err := a.Apply(desired)
	require.NoError(t, err)

	result, err := a.Apply(desired)
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
}

func TestApplyPendingTagAttachesOnFirstSeen(t *testing.T) {
	rt := newFakeRuntime()
	a := NewApplier(rt)

	desired := DesiredState{
		Sinks: []SinkSpec{{ID: "s1", Protocol: ProtocolScreamUDP}},
		Paths: []PathSpec{{ID: "p1", SourceTag: "10.0.0.9", SinkID: "s1"}},
	}
	result, err := a.Apply(desired)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PathsCreated)
	assert.Len(t, a.PendingPaths(), 1)
	assert.Empty(t, a.LivePaths())
	_, connected := rt.lanes["p1"]
	assert.False(t, connected)

	a.OnTagFirstSeen(packet.Tag("10.0.0.9"))
	assert.Len(t, a.LivePaths(), 1)
	assert.Empty(t, a.PendingPaths())
	assert.Equal(t, SinkID("s1"), rt.lanes["p1"])
}

func TestApplyWildcardTagSelector(t *testing.T) {
	rt := newFakeRuntime()
	a := NewApplier(rt)

	desired := DesiredState{
		Sinks: []SinkSpec{{ID: "s1", Protocol: ProtocolScreamUDP}},
		Paths: []PathSpec{{ID: "p1", SourceTag: "10.0.0.*", SinkID: "s1"}},
	}
	_, err := a.Apply(desired)
	require.NoError(t, err)
	assert.Len(t, a.PendingPaths(), 1)

	a.OnTagFirstSeen(packet.Tag("10.0.0.42"))
	assert.Len(t, a.LivePaths(), 1)
}

func TestApplyRejectsPathForUnknownSink(t *testing.T) {
	rt := newFakeRuntime()
	a := NewApplier(rt)

	desired := DesiredState{
		Paths: []PathSpec{{ID: "p1", SourceTag: "10.0.0.5", SinkID: "nonexistent"}},
	}
	result, err := a.Apply(desired)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], ErrUnknownSink)
}

func TestApplyMovesLaneWhenPathTargetSinkChanges(t *testing.T) {
	rt := newFakeRuntime()
	a := NewApplier(rt)
	a.OnTagFirstSeen("10.0.0.5")

	initial := DesiredState{
		Sinks: []SinkSpec{{ID: "s1", Protocol: ProtocolScreamUDP}},
		Paths: []PathSpec{{ID: "p1", SourceTag: "10.0.0.5", SinkID: "s1"}},
	}
	_, err := a.Apply(initial)
	require.NoError(t, err)

	next := DesiredState{
		Sinks: []SinkSpec{
			{ID: "s1", Protocol: ProtocolScreamUDP},
			{ID: "s2", Protocol: ProtocolScreamUDP},
		},
		Paths: []PathSpec{{ID: "p1", SourceTag: "10.0.0.5", SinkID: "s2"}},
	}
	result, err := a.Apply(next)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SinksCreated)
	assert.Equal(t, 1, result.PathsUpdated)
	assert.Equal(t, 0, result.SinksRemoved)
	assert.Equal(t, SinkID("s2"), rt.lanes["p1"])
}

func TestApplyRemovesPathsBeforeSinks(t *testing.T) {
	rt := newFakeRuntime()
	a := NewApplier(rt)
	a.OnTagFirstSeen("10.0.0.5")

	initial := DesiredState{
		Sinks: []SinkSpec{{ID: "s1", Protocol: ProtocolScreamUDP}},
		Paths: []PathSpec{{ID: "p1", SourceTag: "10.0.0.5", SinkID: "s1"}},
	}
	_, err := a.Apply(initial)
	require.NoError(t, err)

	result, err := a.Apply(DesiredState{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.PathsRemoved)
	assert.Equal(t, 1, result.SinksRemoved)
	assert.Empty(t, rt.lanes)
	assert.Empty(t, rt.sinks)
}

func TestApplyRemovesPendingPathRuntime(t *testing.T) {
	rt := newFakeRuntime()
	a := NewApplier(rt)

	initial := DesiredState{
		Sinks: []SinkSpec{{ID: "s1", Protocol: ProtocolScreamUDP}},
		Paths: []PathSpec{{ID: "p1", SourceTag: "10.0.0.9", SinkID: "s1"}},
	}
	_, err := a.Apply(initial)
	require.NoError(t, err)
	require.Len(t, a.PendingPaths(), 1)
	require.Contains(t, rt.paths, PathID("p1"))

	result, err := a.Apply(DesiredState{Sinks: initial.Sinks})
	require.NoError(t, err)
	assert.Equal(t, 1, result.PathsRemoved)
	assert.Empty(t, a.PendingPaths())
	assert.NotContains(t, rt.paths, PathID("p1"))
}

func TestApplyDuplicateIDsRejected(t *testing.T) {
	rt := newFakeRuntime()
	a := NewApplier(rt)

	_, err := a.Apply(DesiredState{Sinks: []SinkSpec{{ID: "s1"}, {ID: "s1"}}})
	assert.ErrorIs(t, err, ErrDuplicateSinkID)
}
