package client

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the client collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Requests        prometheus.Counter
	Retransmissions prometheus.Counter
	Unavailable     prometheus.Counter
	RTT             prometheus.Histogram
	ErrorsTotal     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttt_client_requests_total",
			Help: "Total requests issued",
		}),
		Retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttt_client_retransmissions_total",
			Help: "Total request retransmissions after a retry interval elapsed",
		}),
		Unavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttt_client_unavailable_total",
			Help: "Requests that exhausted every attempt",
		}),
		RTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ttt_client_request_duration_seconds",
			Help:    "Time from first send to matching reply",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ttt_client_errors_total",
			Help: "Total number of errors by type",
		}, []string{"error_type"}),
	}

	m.Registry.MustRegister(m.Requests, m.Retransmissions, m.Unavailable, m.RTT, m.ErrorsTotal)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordError(errorType string) {
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
