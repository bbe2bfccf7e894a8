// Command audiorouterd is the process entrypoint: it loads a YAML
// configuration describing the engine's tunables, its receivers, and
// its desired sink/path topology, then runs the engine until signalled.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/netaudio/router/config"
	"github.com/netaudio/router/engine"
	"github.com/netaudio/router/receiver"
	"github.com/netaudio/router/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// receiverSpec declares one receiver to start at boot. Receivers are
// not part of config.DesiredState; they are
// started directly from this file rather than reconciled by the
// applier.
type receiverSpec struct {
	ID              string `yaml:"id"`
	ListenAddr      string `yaml:"listen_addr"`
	Protocol        string `yaml:"protocol"`
	TagIncludesPort bool   `yaml:"tag_includes_port"`
}

type fileConfig struct {
	Engine       engine.Config       `yaml:"engine"`
	Receivers    []receiverSpec      `yaml:"receivers"`
	DesiredState config.DesiredState `yaml:"desired_state"`
	MetricsAddr  string              `yaml:"metrics_addr"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Engine:      engine.DefaultConfig(),
		MetricsAddr: ":9090",
	}
}

func main() {
	path := flag.String("config", "", "path to a YAML desired-state/engine configuration file")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := defaultFileConfig()
	if *path != "" {
		data, err := os.ReadFile(*path)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "main",
				"path":     *path,
				"error":    err.Error(),
			}).Fatal("failed to read config file")
		}
		// Re-seed defaults into the engine section before unmarshaling
		// so fields the file omits keep their defaults.
		loaded := fileConfig{Engine: engine.DefaultConfig(), MetricsAddr: cfg.MetricsAddr}
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "main",
				"path":     *path,
				"error":    err.Error(),
			}).Fatal("failed to parse config file")
		}
		cfg = loaded
	}

	eng := engine.New(cfg.Engine)
	defer eng.Close()

	for i, rs := range cfg.Receivers {
		if rs.ID == "" {
			cfg.Receivers[i].ID = config.NewListenerID()
		}
	}
	for _, rs := range cfg.Receivers {
		rcfg := cfg.Engine.Receiver
		rcfg.ListenAddr = rs.ListenAddr
		rcfg.TagIncludesPort = rs.TagIncludesPort
		switch rs.Protocol {
		case "rtp":
			rcfg.Protocol = receiver.ProtocolRTP
		case "rtp-process":
			rcfg.Protocol = receiver.ProtocolRTPPerProcess
		default:
			rcfg.Protocol = receiver.ProtocolScreamUDP
		}
		if err := eng.AddReceiver(rs.ID, rcfg); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "main",
				"receiver_id": rs.ID,
				"error":       err.Error(),
			}).Fatal("failed to start receiver")
		}
	}

	for i, s := range cfg.DesiredState.Sinks {
		if s.ID == "" {
			cfg.DesiredState.Sinks[i].ID = config.NewSinkID()
		}
	}
	for i, p := range cfg.DesiredState.Paths {
		if p.ID == "" {
			cfg.DesiredState.Paths[i].ID = config.NewPathID()
		}
	}

	if len(cfg.DesiredState.Sinks) > 0 || len(cfg.DesiredState.Paths) > 0 {
		result, err := eng.ApplyState(cfg.DesiredState)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "main",
				"error":    err.Error(),
			}).Fatal("failed to apply initial desired state")
		}
		logrus.WithFields(logrus.Fields{
			"function":      "main",
			"sinks_created": result.SinksCreated,
			"paths_created": result.PathsCreated,
			"errors":        len(result.Errors),
		}).Info("applied initial desired state")
		for _, e := range result.Errors {
			logrus.WithFields(logrus.Fields{
				"function": "main",
				"error":    e.Error(),
			}).Warn("desired state item rejected")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(stats.NewCollector(statsProvider{eng}))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"addr":     cfg.MetricsAddr,
		}).Info("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithFields(logrus.Fields{
				"function": "main",
				"error":    err.Error(),
			}).Error("metrics server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logrus.WithFields(logrus.Fields{
		"function": "main",
		"signal":   sig.String(),
	}).Info("shutting down")

	_ = srv.Close()
}

// statsProvider adapts *engine.Engine to stats.Provider without
// exporting GetStats under a different name.
type statsProvider struct {
	eng *engine.Engine
}

func (p statsProvider) Snapshot() stats.Snapshot {
	return p.eng.GetStats()
}
