package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/GriffinCanCode/apm-agent/internal/control"
	"github.com/GriffinCanCode/apm-agent/internal/notify"
)

const namespace = "agent"

// FillCounter exposes entropy pool refill counts.
type FillCounter interface {
	SyncFills() uint64
	AsyncFills() uint64
}

// ConnectionCounter exposes control channel connection state.
type ConnectionCounter interface {
	Accepted() uint64
	Connected() bool
}

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry
	factory  promauto.Factory

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Control channel metrics
	MessagesTotal      *prometheus.CounterVec
	AnomaliesTotal     *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	AgentDisabledTotal prometheus.Counter

	// Notifier lifecycle metrics
	NotifierStatus    prometheus.Gauge
	RestartsTotal     *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    prometheus.Counter

	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds running totals for the JSON status API
type Snapshot struct {
	Messages      int64 `json:"messages"`
	Anomalies     int64 `json:"anomalies"`
	AgentDisabled int64 `json:"agentDisabled"`
	Restarts      int64 `json:"restarts"`
	HTTPRequests  int64 `json:"httpRequests"`
	HTTPErrors    int64 `json:"httpErrors"`
}

// NewMetrics creates a collector on a fresh registry that also carries
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetricsWith(reg)
}

// NewMetricsWith creates a collector registering on reg.
func NewMetricsWith(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		registry:  reg,
		factory:   f,
		startTime: time.Now(),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of diagnostics HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Diagnostics HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),

		MessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "control",
				Name:      "messages_total",
				Help:      "Control messages received, by source and type",
			},
			[]string{"source", "type"},
		),
		AnomaliesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "control",
				Name:      "anomalies_total",
				Help:      "Parse and sequence anomalies detected on the control channel",
			},
			[]string{"kind"},
		),
		NotificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notify",
				Name:      "entries_total",
				Help:      "Log entries produced by the notification router, by level",
			},
			[]string{"level"},
		),
		AgentDisabledTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notify",
				Name:      "agent_disabled_total",
				Help:      "Invalid-credential warnings that disabled the agent",
			},
		),

		NotifierStatus: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "notifier",
				Name:      "status",
				Help:      "Last observed notifier status code",
			},
		),
		RestartsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifier",
				Name:      "restarts_total",
				Help:      "Notifier restarts attempted by the supervisor, by outcome",
			},
			[]string{"outcome"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "notifier",
				Name:      "operation_duration_seconds",
				Help:      "Notifier lifecycle operation duration in seconds",
				Buckets:   []float64{.001, .01, .1, .5, 1, 5, 15, 30, 60},
			},
			[]string{"operation", "outcome"},
		),

		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ws",
				Name:      "connections",
				Help:      "Number of active notification stream clients",
			},
		),
		WSMessages: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ws",
				Name:      "messages_total",
				Help:      "Notification events written to stream clients",
			},
		),
	}

	f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Agent uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry backing the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WatchPool exports the pool's refill counters.
func (m *Metrics) WatchPool(pool FillCounter) {
	m.factory.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entropy",
			Name:      "sync_fills_total",
			Help:      "Allocations served synchronously from the entropy source",
		},
		func() float64 { return float64(pool.SyncFills()) },
	)
	m.factory.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entropy",
			Name:      "async_fills_total",
			Help:      "Completed background buffer refills",
		},
		func() float64 { return float64(pool.AsyncFills()) },
	)
}

// WatchServer exports the control server's connection state.
func (m *Metrics) WatchServer(srv ConnectionCounter) {
	m.factory.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "connections_total",
			Help:      "Peer connections accepted on the control socket",
		},
		func() float64 { return float64(srv.Accepted()) },
	)
	m.factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "connected",
			Help:      "1 while a peer is attached to the control socket",
		},
		func() float64 {
			if srv.Connected() {
				return 1
			}
			return 0
		},
	)
}

// RecordMessage records a control message and the entries routed for it.
// It matches the notify.Router observer signature.
func (m *Metrics) RecordMessage(msg control.Message, entries []notify.Entry) {
	m.MessagesTotal.WithLabelValues(string(msg.Source), string(msg.Type)).Inc()
	if msg.Anomaly != control.AnomalyNone {
		m.AnomaliesTotal.WithLabelValues(string(msg.Anomaly)).Inc()
	}

	disabled := 0
	for _, e := range entries {
		m.NotificationsTotal.WithLabelValues(string(e.Level)).Inc()
		if e.Effect == notify.EffectAgentDisabled {
			m.AgentDisabledTotal.Inc()
			disabled++
		}
	}

	m.mu.Lock()
	m.snapshot.Messages++
	if msg.Anomaly != control.AnomalyNone {
		m.snapshot.Anomalies++
	}
	m.snapshot.AgentDisabled += int64(disabled)
	m.mu.Unlock()
}

// SetNotifierStatus records the last observed notifier status.
func (m *Metrics) SetNotifierStatus(status control.Status) {
	m.NotifierStatus.Set(float64(status))
}

// RecordRestart records a supervisor restart attempt.
func (m *Metrics) RecordRestart(outcome string) {
	m.RestartsTotal.WithLabelValues(outcome).Inc()
	m.mu.Lock()
	m.snapshot.Restarts++
	m.mu.Unlock()
}

// RecordHTTPRequest records a diagnostics HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.HTTPRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.HTTPErrors++
	}
	m.mu.Unlock()
}

// IncWSConnections increments stream connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements stream connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// IncWSMessages counts one event written to a stream client
func (m *Metrics) IncWSMessages() {
	m.WSMessages.Inc()
}

// Snapshot returns the running totals.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
