package server

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/NicolasHaas/campus/pkg/protocol"
)

const metricsNamespace = "campus"

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	startTime time.Time

	ConnectionsTotal  prometheus.Counter
	ConnectionsActive prometheus.Gauge
	Requests          *prometheus.CounterVec   // op, status
	RequestDuration   *prometheus.HistogramVec // op
	HandlerPanics     prometheus.Counter
	Logins            *prometheus.CounterVec // result
	OnlineSessions    prometheus.Gauge
	PushFailures      prometheus.Counter
	OversizedReplies  prometheus.Counter
}

// NewMetrics registers the collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() so servers do not share state.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		startTime: time.Now(),

		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Connections accepted since start.",
		}),
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections_active",
			Help:      "Connections currently open.",
		}),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Requests handled by opcode and response status.",
		}, []string{"op", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent handling a request, by opcode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		HandlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handler_panics_total",
			Help:      "Handler panics recovered at the dispatch boundary.",
		}),
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		OnlineSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "online_sessions",
			Help:      "Users currently present in the online registry.",
		}),
		PushFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "push_failures_total",
			Help:      "Server-initiated messages that could not be delivered.",
		}),
		OversizedReplies: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "oversized_replies_total",
			Help:      "Responses replaced by INTERNAL_ERROR because they exceeded the frame limit.",
		}),
	}
}

// observe records one handled request. Opcodes outside the protocol share
// one label value to keep cardinality bounded.
func (m *Metrics) observe(op protocol.Opcode, status protocol.Status, elapsed time.Duration) {
	label := string(op)
	if op.Kind() == protocol.KindUnknown {
		label = "UNKNOWN"
	}
	m.Requests.WithLabelValues(label, status.String()).Inc()
	m.RequestDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

// MetricsSnapshot is a point-in-time summary for the periodic log line.
type MetricsSnapshot struct {
	Uptime            time.Duration
	ConnectionsTotal  int64
	ConnectionsActive int64
	OnlineSessions    int64
	HandlerPanics     int64
	PushFailures      int64
	OversizedReplies  int64
}

// Snapshot reads the scalar collectors.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Uptime:            time.Since(m.startTime).Truncate(time.Second),
		ConnectionsTotal:  int64(metricValue(m.ConnectionsTotal)),
		ConnectionsActive: int64(metricValue(m.ConnectionsActive)),
		OnlineSessions:    int64(metricValue(m.OnlineSessions)),
		HandlerPanics:     int64(metricValue(m.HandlerPanics)),
		PushFailures:      int64(metricValue(m.PushFailures)),
		OversizedReplies:  int64(metricValue(m.OversizedReplies)),
	}
}

func metricValue(c prometheus.Metric) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	switch {
	case m.Counter != nil:
		return m.GetCounter().GetValue()
	case m.Gauge != nil:
		return m.GetGauge().GetValue()
	default:
		return 0
	}
}

// StartPeriodicLog logs a summary every interval until done is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				snap := m.Snapshot()
				slog.Info("server metrics",
					"uptime", snap.Uptime.String(),
					"connections_active", snap.ConnectionsActive,
					"connections_total", snap.ConnectionsTotal,
					"online_sessions", snap.OnlineSessions,
					"handler_panics", snap.HandlerPanics,
					"push_failures", snap.PushFailures,
				)
			}
		}
	}()
}
