// Package stats implements the control-plane's get_stats() snapshot
// and its Prometheus export. It defines the
// snapshot shape and a Provider the engine implements; Collector
// adapts a Provider to prometheus.Collector so the values are
// re-gathered on every scrape rather than pushed on a timer.
package stats
