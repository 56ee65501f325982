// Package metrics holds the Prometheus collectors for exchange calls and the
// sandbox server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hlink"

// Metrics implements exchange.Observer and records sandbox traffic.
type Metrics struct {
	ExchangeRequests *prometheus.CounterVec
	ExchangeLatency  *prometheus.HistogramVec
	SandboxRequests  *prometheus.CounterVec
	SandboxLatency   *prometheus.HistogramVec
	SandboxIssued    prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg uses a
// fresh registry, which keeps tests independent of the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		ExchangeRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_requests_total",
			Help:      "Exchange requests by operation and outcome",
		}, []string{"op", "outcome"}),
		ExchangeLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_request_duration_seconds",
			Help:      "Latency of exchange requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		SandboxRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sandbox_requests_total",
			Help:      "Sandbox requests by route and status code",
		}, []string{"route", "code"}),
		SandboxLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sandbox_request_duration_seconds",
			Help:      "Latency of sandbox requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		SandboxIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sandbox_credentials_issued_total",
			Help:      "Credentials signed by the sandbox",
		}),
	}
}

// ObserveRequest records one exchange round trip.
func (m *Metrics) ObserveRequest(op, outcome string, elapsed time.Duration) {
	m.ExchangeRequests.WithLabelValues(op, outcome).Inc()
	m.ExchangeLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveSandbox records one sandbox response.
func (m *Metrics) ObserveSandbox(route string, code int, elapsed time.Duration) {
	m.SandboxRequests.WithLabelValues(route, statusLabel(code)).Inc()
	m.SandboxLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	}
	return "other"
}
