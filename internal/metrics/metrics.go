// Package metrics registers the Prometheus collectors for the promotion
// pipeline. All collectors are registered on the default registry and served
// by the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synapseflow_scans_total",
		Help: "Tier sweeps started, by tier.",
	}, []string{"tier"})

	SweepErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synapseflow_sweep_errors_total",
		Help: "Tier sweeps aborted by an error, by tier.",
	}, []string{"tier"})

	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "synapseflow_sweep_duration_seconds",
		Help:    "Duration of one tier sweep.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tier"})

	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synapseflow_decisions_total",
		Help: "Promotion decisions recorded, by tier and status.",
	}, []string{"tier", "status"})

	EntitiesMergedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synapseflow_entities_merged_total",
		Help: "Raw candidate records folded into canonical entities, by tier.",
	}, []string{"tier"})

	EventsPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synapseflow_events_published_total",
		Help: "Outbox events delivered to the event bus.",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synapseflow_http_requests_total",
		Help: "HTTP requests served, by method, route pattern and status class.",
	}, []string{"method", "route", "class"})
)
