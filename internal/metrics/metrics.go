// Package metrics provides Prometheus counters for the search/sync coordinator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dealgrip"

// Recorder owns a private registry so several coordinators (and tests) can
// coexist in one process. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	// DispatchTotal counts debounced dispatches by listing mode.
	DispatchTotal *prometheus.CounterVec
	// DispatchDeferredTotal counts timer fires pushed back by the hard rate limit.
	DispatchDeferredTotal prometheus.Counter
	// PageFetchTotal counts page fetches by result (ok, error, stale).
	PageFetchTotal *prometheus.CounterVec
	// StaleResponsesTotal counts responses dropped because their key was superseded.
	StaleResponsesTotal prometheus.Counter
	// MutationTotal counts settled mutations by outcome (committed, rolled_back, noop).
	MutationTotal *prometheus.CounterVec
	// PageFetchDuration measures page fetch latency in seconds.
	PageFetchDuration prometheus.Histogram
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Total number of debounced search dispatches",
			},
			[]string{"mode"},
		),
		DispatchDeferredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_deferred_total",
				Help:      "Total number of dispatches deferred by the rate limit",
			},
		),
		PageFetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "page_fetch_total",
				Help:      "Total number of page fetches",
			},
			[]string{"result"},
		),
		StaleResponsesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_responses_total",
				Help:      "Total number of responses dropped for superseded keys",
			},
		),
		MutationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutation_total",
				Help:      "Total number of settled optimistic mutations",
			},
			[]string{"outcome"},
		),
		PageFetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "page_fetch_duration_seconds",
				Help:      "Duration of page fetches in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	r.registry.MustRegister(
		r.DispatchTotal,
		r.DispatchDeferredTotal,
		r.PageFetchTotal,
		r.StaleResponsesTotal,
		r.MutationTotal,
		r.PageFetchDuration,
	)
	return r
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the recorder's metrics in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordDispatch records a debounced dispatch
func (r *Recorder) RecordDispatch(mode string) {
	if r == nil {
		return
	}
	r.DispatchTotal.WithLabelValues(mode).Inc()
}

// RecordDeferred records a rate-limited deferral
func (r *Recorder) RecordDeferred() {
	if r == nil {
		return
	}
	r.DispatchDeferredTotal.Inc()
}

// RecordPageFetch records a completed page fetch
func (r *Recorder) RecordPageFetch(result string, seconds float64) {
	if r == nil {
		return
	}
	r.PageFetchTotal.WithLabelValues(result).Inc()
	r.PageFetchDuration.Observe(seconds)
}

// RecordStale records a dropped stale response
func (r *Recorder) RecordStale() {
	if r == nil {
		return
	}
	r.StaleResponsesTotal.Inc()
}

// RecordMutation records a settled mutation
func (r *Recorder) RecordMutation(outcome string) {
	if r == nil {
		return
	}
	r.MutationTotal.WithLabelValues(outcome).Inc()
}
