/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package broker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsLabelOutcome = "outcome"

// DefaultRequestDurationBuckets is default buckets for request duration histogram.
var DefaultRequestDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 150, 300, 600}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// DurationBuckets is a list of buckets for request duration histogram.
	DurationBuckets []float64

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents collector of metrics for the broker.
type PrometheusMetrics struct {
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	RetransmissionsTotal prometheus.Counter
	LateArrivalsTotal    prometheus.Counter
	PendingRequests      prometheus.Gauge
	FreeSlots            prometheus.Gauge
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	durationBuckets := opts.DurationBuckets
	if durationBuckets == nil {
		durationBuckets = DefaultRequestDurationBuckets
	}

	return &PrometheusMetrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   opts.Namespace,
				Name:        "requests_total",
				Help:        "Number of requests dispatched to agents, by final outcome.",
				ConstLabels: opts.ConstLabels,
			},
			[]string{metricsLabelOutcome},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   opts.Namespace,
				Name:        "request_duration_seconds",
				Help:        "Time from accepting the client's connection until the reply is written.",
				Buckets:     durationBuckets,
				ConstLabels: opts.ConstLabels,
			},
			[]string{metricsLabelOutcome},
		),
		RetransmissionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "retransmissions_total",
			Help:        "Number of requests sent again because the agent didn't acknowledge them in time.",
			ConstLabels: opts.ConstLabels,
		}),
		LateArrivalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "late_arrivals_total",
			Help:        "Number of agent replies with unknown (completed or never issued) request identifiers.",
			ConstLabels: opts.ConstLabels,
		}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "pending_requests",
			Help:        "Number of requests registered in the correlation table.",
			ConstLabels: opts.ConstLabels,
		}),
		FreeSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "free_slots",
			Help:        "Number of free dispatch slots.",
			ConstLabels: opts.ConstLabels,
		}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.RequestsTotal,
		pm.RequestDuration,
		pm.RetransmissionsTotal,
		pm.LateArrivalsTotal,
		pm.PendingRequests,
		pm.FreeSlots,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.RequestsTotal)
	prometheus.Unregister(pm.RequestDuration)
	prometheus.Unregister(pm.RetransmissionsTotal)
	prometheus.Unregister(pm.LateArrivalsTotal)
	prometheus.Unregister(pm.PendingRequests)
	prometheus.Unregister(pm.FreeSlots)
}

// ObserveRequest records the outcome and duration of a completed request.
func (pm *PrometheusMetrics) ObserveRequest(outcome Outcome, duration time.Duration) {
	pm.RequestsTotal.WithLabelValues(string(outcome)).Inc()
	pm.RequestDuration.WithLabelValues(string(outcome)).Observe(duration.Seconds())
}
