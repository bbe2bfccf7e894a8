package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	snap Snapshot
}

func (f fakeProvider) Snapshot() Snapshot {
	return f.snap
}

func TestCollectorExportsGlobalAndPerSinkMetrics(t *testing.T) {
	provider := fakeProvider{snap: Snapshot{
		Global: GlobalSnapshot{SeenTags: 2, TotalPacketsReceived: 100, TotalPacketsDropped: 5},
		Sinks: map[string]SinkSnapshot{
			"sink-1": {
				SinkID:  "sink-1",
				Faulted: true,
				Lanes:   []LaneSnapshot{{PathID: "path-1", State: "ready", Underruns: 3}},
			},
		},
		Sources: map[string]SourceSnapshot{
			"10.0.0.5": {Tag: "10.0.0.5", PacketCount: 42, CursorUnderruns: 1, PlaybackRate: 1.01},
		},
		Streams: map[string]StreamSnapshot{
			"recv-1": {ReceiverID: "recv-1", Protocol: "scream-udp", PacketsReceived: 100},
		},
	}}

	c := NewCollector(provider)
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily)
	for _, f := range families {
		byName[f.GetName()] = f
	}

	require.Contains(t, byName, "audiorouter_seen_tags")
	assert.Equal(t, 2.0, byName["audiorouter_seen_tags"].Metric[0].GetGauge().GetValue())

	require.Contains(t, byName, "audiorouter_sink_faulted")
	assert.Equal(t, 1.0, byName["audiorouter_sink_faulted"].Metric[0].GetGauge().GetValue())

	require.Contains(t, byName, "audiorouter_source_playback_rate")
	assert.InDelta(t, 1.01, byName["audiorouter_source_playback_rate"].Metric[0].GetGauge().GetValue(), 1e-9)
}
