// Package metrics exposes Prometheus counters for ingress decisions and
// delivery outcomes.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mightyhooks/internal/dispatch"
)

const namespace = "mightyhooks"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ingressTotal     *prometheus.CounterVec
	deliveriesTotal  *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ingressTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingress_total",
				Help:      "Inbound hook calls by outcome (accepted or rejection reason)",
			},
			[]string{"outcome"},
		),
		deliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Outbound deliveries by result and stage",
			},
			[]string{"result", "stage"},
		),
		deliveryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delivery_duration_seconds",
				Help:      "Outbound delivery latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
	}
}

// ObserveIngress counts one inbound decision.
func (m *Metrics) ObserveIngress(outcome string) {
	m.ingressTotal.WithLabelValues(outcome).Inc()
}

// RecordDelivery implements dispatch.Recorder.
func (m *Metrics) RecordDelivery(_ context.Context, o dispatch.Outcome) {
	m.deliveriesTotal.WithLabelValues(o.Result(), o.Stage).Inc()
	if o.Stage == dispatch.StageDeliver {
		m.deliveryDuration.WithLabelValues(o.Result()).Observe(o.Duration.Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
