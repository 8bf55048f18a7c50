package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server collectors. Each instance owns its registry so
// several servers can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	// Sessions
	ActiveSessions     prometheus.Gauge
	TotalSessions      prometheus.Counter
	SessionsTerminated *prometheus.CounterVec
	SessionDuration    prometheus.Histogram

	// Datagrams
	DatagramsReceived prometheus.Counter
	DatagramsDropped  *prometheus.CounterVec
	RepliesSent       prometheus.Counter
	DuplicateReplies  prometheus.Counter

	// Liveness
	ProbesSent prometheus.Counter

	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the server collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ttt_server_active_sessions",
			Help: "Number of sessions with a live worker",
		}),
		TotalSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttt_server_sessions_total",
			Help: "Total number of sessions created",
		}),
		SessionsTerminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ttt_server_sessions_terminated_total",
			Help: "Sessions terminated, by reason",
		}, []string{"reason"}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ttt_server_session_duration_seconds",
			Help:    "Lifetime of sessions",
			Buckets: prometheus.DefBuckets,
		}),

		DatagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttt_server_datagrams_received_total",
			Help: "Total datagrams read from the socket",
		}),
		DatagramsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ttt_server_datagrams_dropped_total",
			Help: "Datagrams discarded, by reason",
		}, []string{"reason"}),
		RepliesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttt_server_replies_sent_total",
			Help: "Replies sent for newly applied requests",
		}),
		DuplicateReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttt_server_duplicate_replies_total",
			Help: "Cached replies resent for duplicate requests",
		}),

		ProbesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttt_server_probes_sent_total",
			Help: "Liveness pings sent to idle clients",
		}),

		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ttt_server_errors_total",
			Help: "Total number of errors by type",
		}, []string{"error_type"}),
	}

	m.Registry.MustRegister(
		m.ActiveSessions,
		m.TotalSessions,
		m.SessionsTerminated,
		m.SessionDuration,
		m.DatagramsReceived,
		m.DatagramsDropped,
		m.RepliesSent,
		m.DuplicateReplies,
		m.ProbesSent,
		m.ErrorsTotal,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordSessionStart records a new session.
func (m *Metrics) RecordSessionStart() {
	m.TotalSessions.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionEnd records a terminated session and its lifetime.
func (m *Metrics) RecordSessionEnd(reason string, seconds float64) {
	m.ActiveSessions.Dec()
	m.SessionsTerminated.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(seconds)
}

// RecordDrop counts a discarded datagram.
func (m *Metrics) RecordDrop(reason string) {
	m.DatagramsDropped.WithLabelValues(reason).Inc()
}

// RecordError counts an error.
func (m *Metrics) RecordError(errorType string) {
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
