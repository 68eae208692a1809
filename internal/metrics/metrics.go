// SPDX-License-Identifier: MPL-2.0

// Package metrics exposes Prometheus collectors for binary provisioning,
// module loading and isolate supervision. A nil *Recorder is valid and records
// nothing, so components can take one optionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "edgeserve"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeRetry   = "retry"
)

// Recorder owns a private registry and the collectors registered on it.
type Recorder struct {
	registry *prometheus.Registry

	downloadAttempts  *prometheus.CounterVec
	moduleFetches     *prometheus.CounterVec
	isolateRestarts   *prometheus.CounterVec
	readinessDuration *prometheus.HistogramVec
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		downloadAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "binary",
				Name:      "download_attempts_total",
				Help:      "Runtime archive download attempts by outcome",
			},
			[]string{"outcome"},
		),
		moduleFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loader",
				Name:      "module_loads_total",
				Help:      "Module loads by specifier kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		isolateRestarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "supervisor",
				Name:      "isolate_starts_total",
				Help:      "Isolate start attempts by outcome",
			},
			[]string{"outcome"},
		),
		readinessDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "supervisor",
				Name:      "readiness_seconds",
				Help:      "Time from spawn until the readiness gate resolved",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"ready"},
		),
	}
	r.registry.MustRegister(r.downloadAttempts, r.moduleFetches, r.isolateRestarts, r.readinessDuration)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// DownloadAttempt counts one archive download attempt.
func (r *Recorder) DownloadAttempt(outcome string) {
	if r == nil {
		return
	}
	r.downloadAttempts.WithLabelValues(outcome).Inc()
}

// ModuleLoad counts one module load for the given specifier kind.
func (r *Recorder) ModuleLoad(kind, outcome string) {
	if r == nil {
		return
	}
	r.moduleFetches.WithLabelValues(kind, outcome).Inc()
}

// IsolateStart counts one isolate start.
func (r *Recorder) IsolateStart(outcome string) {
	if r == nil {
		return
	}
	r.isolateRestarts.WithLabelValues(outcome).Inc()
}

// Readiness observes how long the readiness gate took to resolve.
func (r *Recorder) Readiness(d time.Duration, ready bool) {
	if r == nil {
		return
	}
	label := "false"
	if ready {
		label = "true"
	}
	r.readinessDuration.WithLabelValues(label).Observe(d.Seconds())
}
