// Package metrics holds the Prometheus collectors for credit flows.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use through a nil pointer; every recorder is a no-op then.
type Metrics struct {
	registry    *prometheus.Registry
	generations *prometheus.CounterVec
	grants      *prometheus.CounterVec
	granted     prometheus.Counter
	throttled   prometheus.Counter
	bootstraps  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "painter",
			Name:      "generations_total",
			Help:      "Generation requests by outcome.",
		}, []string{"outcome"}),
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "painter",
			Name:      "payment_events_total",
			Help:      "Payment events by reconciliation outcome.",
		}, []string{"outcome"}),
		granted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "painter",
			Name:      "credits_granted_total",
			Help:      "Credits added by payment reconciliation.",
		}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "painter",
			Name:      "throttled_requests_total",
			Help:      "Requests rejected by the per-user throttle.",
		}),
		bootstraps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "painter",
			Name:      "account_bootstraps_total",
			Help:      "EnsureAccount calls by whether an account was created.",
		}, []string{"created"}),
	}
	reg.MustRegister(m.generations, m.grants, m.granted, m.throttled, m.bootstraps)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Generation(outcome string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PaymentEvent(outcome string, credits int) {
	if m == nil {
		return
	}
	m.grants.WithLabelValues(outcome).Inc()
	if credits > 0 {
		m.granted.Add(float64(credits))
	}
}

func (m *Metrics) Throttled() {
	if m == nil {
		return
	}
	m.throttled.Inc()
}

func (m *Metrics) Bootstrap(created bool) {
	if m == nil {
		return
	}
	label := "false"
	if created {
		label = "true"
	}
	m.bootstraps.WithLabelValues(label).Inc()
}
