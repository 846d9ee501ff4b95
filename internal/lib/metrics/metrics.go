// Package metrics owns the Prometheus collectors exposed at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trackr"

// Outcome labels shared by the counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeIgnored = "ignored"
	OutcomeDropped = "dropped"
)

type Metrics struct {
	registry *prometheus.Registry

	RateLimitHits     *prometheus.CounterVec
	WebhookDeliveries *prometheus.CounterVec
	NotificationsSent *prometheus.CounterVec
	SQSForwards       *prometheus.CounterVec
	GroupsMerged      prometheus.Counter
	EventsIngested    *prometheus.CounterVec
}

// New builds the collectors on a private registry, so several instances can
// coexist in tests.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by rate limiting.",
		}, []string{"group", "category", "kind"}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Source code webhook deliveries by provider and outcome.",
		}, []string{"provider", "outcome"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by provider and outcome.",
		}, []string{"provider", "outcome"}),
		SQSForwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sqs_forwards_total",
			Help:      "Events forwarded to Amazon SQS by outcome.",
		}, []string{"outcome"}),
		GroupsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_merged_total",
			Help:      "Groups folded into another group.",
		}),
		EventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Accepted events, split by whether they opened a group.",
		}, []string{"new_group"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RateLimitHits,
		m.WebhookDeliveries,
		m.NotificationsSent,
		m.SQSForwards,
		m.GroupsMerged,
		m.EventsIngested,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
