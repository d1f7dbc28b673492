// Package metrics records build pipeline activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sitegen"

// Outcome labels a finished build.
type Outcome string

// Build outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Recorder owns a private registry and the collectors registered on it.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry      *prom.Registry
	builds        *prom.CounterVec
	buildDuration prom.Histogram
	pages         prom.Gauge
	lastSuccess   prom.Gauge
	triggers      prom.Counter
	building      prom.Gauge
}

// New constructs a Recorder with its own registry, including Go runtime and
// process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prom.NewRegistry(),
		builds: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Completed build passes by outcome",
		}, []string{"outcome"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Wall time of full build passes",
			Buckets:   prom.DefBuckets,
		}),
		pages: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_build_pages",
			Help:      "Pages written by the most recent successful build",
		}),
		lastSuccess: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the most recent successful build",
		}),
		triggers: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "rebuild_triggers_total",
			Help:      "Change triggers received by the rebuild worker",
		}),
		building: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "building",
			Help:      "1 while a build pass is in flight",
		}),
	}
	r.registry.MustRegister(r.builds, r.buildDuration, r.pages, r.lastSuccess, r.triggers, r.building)
	r.registry.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prom.Registry {
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
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// BuildStarted marks a build pass as in flight.
func (r *Recorder) BuildStarted() {
	if r == nil {
		return
	}
	r.building.Set(1)
}

// BuildFinished records the outcome of a build pass.
func (r *Recorder) BuildFinished(outcome Outcome, d time.Duration, pages int) {
	if r == nil {
		return
	}
	r.building.Set(0)
	r.builds.WithLabelValues(string(outcome)).Inc()
	r.buildDuration.Observe(d.Seconds())
	if outcome == OutcomeSuccess {
		r.pages.Set(float64(pages))
		r.lastSuccess.SetToCurrentTime()
	}
}

// TriggerReceived counts a change trigger delivered to the rebuild worker.
func (r *Recorder) TriggerReceived() {
	if r == nil {
		return
	}
	r.triggers.Inc()
}
