package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "corsbridge"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Probe metrics
	ProbeAttempts *prometheus.CounterVec
	ProbeDuration *prometheus.HistogramVec

	// Cache metrics
	OriginsResolved *prometheus.CounterVec

	// Hook metrics
	Rewrites         *prometheus.CounterVec
	StatusesUnmasked *prometheus.CounterVec

	// Downstream client metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	BreakerChanges  *prometheus.CounterVec

	// Snapshot for logs and tests - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds running totals alongside the Prometheus series.
type Snapshot struct {
	ProbeAttempts    int64
	OriginsSupported int64
	OriginsProxied   int64
	RewritesDirect   int64
	RewritesProxied  int64
	StatusesUnmasked int64
	Requests         int64
	RequestErrors    int64
	TotalDuration    float64 // sum of all request durations
}

// NewMetrics registers the collectors on reg. A nil reg registers on a fresh
// private registry, which keeps independent instances (and tests) from
// colliding on the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		ProbeAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_attempts_total",
				Help:      "Capability probe requests by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		ProbeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Capability probe request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method"},
		),
		OriginsResolved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "origins_resolved_total",
				Help:      "Origins whose capability was decided, by capability",
			},
			[]string{"capability"},
		),
		Rewrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rewrites_total",
				Help:      "URL rewrite decisions (direct, proxied, opaque)",
			},
			[]string{"decision"},
		),
		StatusesUnmasked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_unmasked_total",
				Help:      "Proxied responses whose redirect status was restored",
			},
			[]string{"status"},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Downstream requests issued by the client",
			},
			[]string{"method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Downstream request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
		BreakerChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_state_changes_total",
				Help:      "Per-origin circuit breaker transitions",
			},
			[]string{"origin", "to"},
		),
	}
}

// ProbeAttempt records one probe request
func (m *Metrics) ProbeAttempt(method, outcome string, elapsed time.Duration) {
	m.ProbeAttempts.WithLabelValues(method, outcome).Inc()
	m.ProbeDuration.WithLabelValues(method).Observe(elapsed.Seconds())

	m.mu.Lock()
	m.snapshot.ProbeAttempts++
	m.mu.Unlock()
}

// OriginResolved records a capability verdict
func (m *Metrics) OriginResolved(capability string) {
	m.OriginsResolved.WithLabelValues(capability).Inc()

	m.mu.Lock()
	switch capability {
	case "supported":
		m.snapshot.OriginsSupported++
	case "unsupported":
		m.snapshot.OriginsProxied++
	}
	m.mu.Unlock()
}

// Rewrite records a rewrite decision
func (m *Metrics) Rewrite(decision string) {
	m.Rewrites.WithLabelValues(decision).Inc()

	m.mu.Lock()
	switch decision {
	case "direct":
		m.snapshot.RewritesDirect++
	case "proxied":
		m.snapshot.RewritesProxied++
	}
	m.mu.Unlock()
}

// StatusUnmasked records a restored redirect status
func (m *Metrics) StatusUnmasked(status int) {
	m.StatusesUnmasked.WithLabelValues(strconv.Itoa(status)).Inc()

	m.mu.Lock()
	m.snapshot.StatusesUnmasked++
	m.mu.Unlock()
}

// RecordRequest records a downstream request. status is 0 when the request
// failed before a response arrived.
func (m *Metrics) RecordRequest(method string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.RequestsTotal.WithLabelValues(method, label).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Requests++
	m.snapshot.TotalDuration += duration.Seconds()
	if status == 0 || status >= 400 {
		m.snapshot.RequestErrors++
	}
	m.mu.Unlock()
}

// BreakerStateChange records a circuit breaker transition
func (m *Metrics) BreakerStateChange(origin, to string) {
	m.BreakerChanges.WithLabelValues(origin, to).Inc()
}

// Snapshot returns a copy of the running totals
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
