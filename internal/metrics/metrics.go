// Package metrics counts sync passes and component outcomes in a Prometheus
// registry.
//
// The launcher is not a long-running server, so nothing is scraped. After
// each pass the registry can be written to a node_exporter textfile, which
// the textfile collector picks up on the next scrape.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pflauncher/launcher/internal/updater"
)

const namespace = "pflauncher"

// Metrics holds the launcher metrics and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	// PassesTotal counts finished passes.
	// Labels: status (nothing_to_do, updated, partial_failure, offline, failed)
	PassesTotal *prometheus.CounterVec

	// OutcomesTotal counts component outcomes.
	// Labels: component, kind, error_kind
	OutcomesTotal *prometheus.CounterVec

	// DownloadedBytesTotal counts payload bytes downloaded.
	// Labels: component
	DownloadedBytesTotal *prometheus.CounterVec

	// UnverifiedInstallsTotal counts installs without a published digest.
	// Labels: component
	UnverifiedInstallsTotal *prometheus.CounterVec

	PassDuration       prometheus.Histogram
	LastPassTimestamp  prometheus.Gauge
	LastPassSuccessful prometheus.Gauge
	Playable           prometheus.Gauge
}

var _ updater.Observer = (*Metrics)(nil)

// New creates the metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PassesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "passes_total",
			Help:      "Total sync passes by status",
		}, []string{"status"}),
		OutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "component_outcomes_total",
			Help:      "Total component outcomes by kind and error kind",
		}, []string{"component", "kind", "error_kind"}),
		DownloadedBytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "downloaded_bytes_total",
			Help:      "Total payload bytes downloaded",
		}, []string{"component"}),
		UnverifiedInstallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "unverified_installs_total",
			Help:      "Total payloads installed without a published digest",
		}, []string{"component"}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of sync passes",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
		}),
		LastPassTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_pass_timestamp_seconds",
			Help:      "Unix time the last sync pass started",
		}),
		LastPassSuccessful: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_pass_successful",
			Help:      "1 if the last pass finished without failures, else 0",
		}),
		Playable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "game_playable",
			Help:      "1 if the game executable was located after the last pass",
		}),
	}
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePass records a finished pass.
func (m *Metrics) ObservePass(r *updater.Result) {
	m.PassesTotal.WithLabelValues(string(r.Status)).Inc()
	m.PassDuration.Observe(r.Duration.Seconds())
	m.LastPassTimestamp.Set(float64(r.Started.Unix()))
	m.LastPassSuccessful.Set(boolValue(r.Err == nil && r.Status != updater.StatusPartialFailure))
	m.Playable.Set(boolValue(r.Playable))

	for _, o := range r.Outcomes {
		m.OutcomesTotal.WithLabelValues(o.Component, string(o.Kind), o.ErrorKind()).Inc()
		if o.Bytes > 0 {
			m.DownloadedBytesTotal.WithLabelValues(o.Component).Add(float64(o.Bytes))
		}
		if o.Kind == updater.Updated && !o.Verified {
			m.UnverifiedInstallsTotal.WithLabelValues(o.Component).Inc()
		}
	}
}

// WriteTextfile writes the registry in the text exposition format. The
// file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
