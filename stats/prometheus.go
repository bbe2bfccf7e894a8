package stats

import "github.com/prometheus/client_golang/prometheus"

// Collector adapts a Provider's snapshot to Prometheus's pull model,
// re-exported here as const gauges and counters rather than a
// push-based aggregator since
// Prometheus already owns the reporting interval.
type Collector struct {
	provider Provider

	seenTags        *prometheus.Desc
	packetsReceived *prometheus.Desc
	packetsDropped  *prometheus.Desc
	malformed       *prometheus.Desc
	rebinds         *prometheus.Desc

	sinkFaulted   *prometheus.Desc
	sinkListeners *prometheus.Desc
	laneUnderruns *prometheus.Desc

	sourcePackets   *prometheus.Desc
	sourceDropped   *prometheus.Desc
	sourceUnderruns *prometheus.Desc
	sourceOverruns  *prometheus.Desc
	sourcePlayRate  *prometheus.Desc

	streamReceived  *prometheus.Desc
	streamDropped   *prometheus.Desc
	streamMalformed *prometheus.Desc
	streamRebinds   *prometheus.Desc
}

// NewCollector builds a Prometheus collector backed by provider.
// Register it with a prometheus.Registry (or the default registerer)
// to expose the engine's stats at /metrics.
func NewCollector(provider Provider) *Collector {
	const ns = "audiorouter"
	return &Collector{
		provider: provider,

		seenTags:        prometheus.NewDesc(ns+"_seen_tags", "Number of source tags observed at least once.", nil, nil),
		packetsReceived: prometheus.NewDesc(ns+"_packets_received_total", "Total packets received across all receivers.", nil, nil),
		packetsDropped:  prometheus.NewDesc(ns+"_packets_dropped_total", "Total packets dropped across all receivers.", nil, nil),
		malformed:       prometheus.NewDesc(ns+"_malformed_packets_total", "Total malformed packets dropped.", nil, nil),
		rebinds:         prometheus.NewDesc(ns+"_socket_rebinds_total", "Total receiver socket rebinds.", nil, nil),

		sinkFaulted:   prometheus.NewDesc(ns+"_sink_faulted", "1 if the sink is in the faulted state.", []string{"sink_id"}, nil),
		sinkListeners: prometheus.NewDesc(ns+"_sink_webrtc_listeners", "Connected WebRTC listeners for this sink.", []string{"sink_id"}, nil),
		laneUnderruns: prometheus.NewDesc(ns+"_lane_underruns_total", "Underrun count for one sink's path lane.", []string{"sink_id", "path_id", "state"}, nil),

		sourcePackets:   prometheus.NewDesc(ns+"_source_partition_packets", "Current buffered packet count for a source tag.", []string{"tag"}, nil),
		sourceDropped:   prometheus.NewDesc(ns+"_source_partition_dropped_total", "Packets dropped from a source partition.", []string{"tag", "reason"}, nil),
		sourceUnderruns: prometheus.NewDesc(ns+"_source_cursor_underruns_total", "Cursor underrun count for a source tag.", []string{"tag"}, nil),
		sourceOverruns:  prometheus.NewDesc(ns+"_source_cursor_overruns_total", "Cursor overrun count for a source tag.", []string{"tag"}, nil),
		sourcePlayRate:  prometheus.NewDesc(ns+"_source_playback_rate", "Current cursor playback-rate multiplier for a source tag.", []string{"tag"}, nil),

		streamReceived:  prometheus.NewDesc(ns+"_receiver_packets_received_total", "Packets received by one receiver.", []string{"receiver_id", "protocol"}, nil),
		streamDropped:   prometheus.NewDesc(ns+"_receiver_packets_dropped_total", "Packets dropped by one receiver.", []string{"receiver_id", "protocol"}, nil),
		streamMalformed: prometheus.NewDesc(ns+"_receiver_malformed_total", "Malformed packets dropped by one receiver.", []string{"receiver_id", "protocol"}, nil),
		streamRebinds:   prometheus.NewDesc(ns+"_receiver_rebinds_total", "Socket rebinds performed by one receiver.", []string{"receiver_id", "protocol"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.seenTags
	ch <- c.packetsReceived
	ch <- c.packetsDropped
	ch <- c.malformed
	ch <- c.rebinds
	ch <- c.sinkFaulted
	ch <- c.sinkListeners
	ch <- c.laneUnderruns
	ch <- c.sourcePackets
	ch <- c.sourceDropped
	ch <- c.sourceUnderruns
	ch <- c.sourceOverruns
	ch <- c.sourcePlayRate
	ch <- c.streamReceived
	ch <- c.streamDropped
	ch <- c.streamMalformed
	ch <- c.streamRebinds
}

// Collect implements prometheus.Collector, re-gathering a fresh
// snapshot from the provider on every scrape.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.provider.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.seenTags, prometheus.GaugeValue, float64(snap.Global.SeenTags))
	ch <- prometheus.MustNewConstMetric(c.packetsReceived, prometheus.CounterValue, float64(snap.Global.TotalPacketsReceived))
	ch <- prometheus.MustNewConstMetric(c.packetsDropped, prometheus.CounterValue, float64(snap.Global.TotalPacketsDropped))
	ch <- prometheus.MustNewConstMetric(c.malformed, prometheus.CounterValue, float64(snap.Global.TotalMalformedDropped))
	ch <- prometheus.MustNewConstMetric(c.rebinds, prometheus.CounterValue, float64(snap.Global.TotalRebinds))

	for sinkID, sink := range snap.Sinks {
		faulted := 0.0
		if sink.Faulted {
			faulted = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.sinkFaulted, prometheus.GaugeValue, faulted, sinkID)
		ch <- prometheus.MustNewConstMetric(c.sinkListeners, prometheus.GaugeValue, float64(sink.WebRTCListeners), sinkID)
		for _, lane := range sink.Lanes {
			ch <- prometheus.MustNewConstMetric(c.laneUnderruns, prometheus.CounterValue, float64(lane.Underruns), sinkID, lane.PathID, lane.State)
		}
	}

	for tag, source := range snap.Sources {
		ch <- prometheus.MustNewConstMetric(c.sourcePackets, prometheus.GaugeValue, float64(source.PacketCount), tag)
		ch <- prometheus.MustNewConstMetric(c.sourceDropped, prometheus.CounterValue, float64(source.DroppedOld), tag, "history_window")
		ch <- prometheus.MustNewConstMetric(c.sourceDropped, prometheus.CounterValue, float64(source.DroppedFull), tag, "partition_full")
		ch <- prometheus.MustNewConstMetric(c.sourceUnderruns, prometheus.CounterValue, float64(source.CursorUnderruns), tag)
		ch <- prometheus.MustNewConstMetric(c.sourceOverruns, prometheus.CounterValue, float64(source.CursorOverruns), tag)
		ch <- prometheus.MustNewConstMetric(c.sourcePlayRate, prometheus.GaugeValue, source.PlaybackRate, tag)
	}

	for id, stream := range snap.Streams {
		ch <- prometheus.MustNewConstMetric(c.streamReceived, prometheus.CounterValue, float64(stream.PacketsReceived), id, stream.Protocol)
		ch <- prometheus.MustNewConstMetric(c.streamDropped, prometheus.CounterValue, float64(stream.PacketsDropped), id, stream.Protocol)
		ch <- prometheus.MustNewConstMetric(c.streamMalformed, prometheus.CounterValue, float64(stream.MalformedDropped), id, stream.Protocol)
		ch <- prometheus.MustNewConstMetric(c.streamRebinds, prometheus.CounterValue, float64(stream.Rebinds), id, stream.Protocol)
	}
}
