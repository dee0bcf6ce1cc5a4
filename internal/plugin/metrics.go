// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

package plugin

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bluefox-game/bluefox/internal/toolchain"
)

// Status label values for stage metrics.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds the plugin pipeline's Prometheus collectors.
// A nil *Metrics records nothing.
type Metrics struct {
	Candidates    *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Libraries     prometheus.Gauge
}

// Compile-time interface check.
var _ toolchain.StageObserver = (*Metrics)(nil)

// NewMetrics creates the pipeline collectors and registers them with reg.
// Panics if registration fails (following prometheus convention).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Candidates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bluefox_plugin_candidates_total",
				Help: "Plugin directory entries processed, by outcome",
			},
			[]string{"outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bluefox_plugin_compile_duration_seconds",
				Help:    "Duration of each external compilation stage in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage", "status"},
		),
		Libraries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bluefox_plugin_libraries_loaded",
			Help: "Native libraries currently held by the registry",
		}),
	}

	reg.MustRegister(m.Candidates, m.StageDuration, m.Libraries)
	return m
}

// ObserveStage implements toolchain.StageObserver.
func (m *Metrics) ObserveStage(stage toolchain.Stage, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.StageDuration.WithLabelValues(string(stage), status).Observe(elapsed.Seconds())
}

func (m *Metrics) recordOutcome(o Outcome) {
	if m == nil {
		return
	}
	m.Candidates.WithLabelValues(outcomeLabel(o)).Inc()
}

func (m *Metrics) setLibraries(n int) {
	if m == nil {
		return
	}
	m.Libraries.Set(float64(n))
}
