package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's Prometheus instruments.
// Initialize once at server startup and share across requests; a nil
// *Metrics is valid and records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authAttempts    *prometheus.CounterVec
	forwardDuration *prometheus.HistogramVec
}

// NewMetrics creates the instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "markgw",
			Name:      "requests_total",
			Help:      "Inbound requests by route group and response code class.",
		}, []string{"route_group", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "markgw",
			Name:      "request_duration_seconds",
			Help:      "Inbound request latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"route_group"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "markgw",
			Name:      "auth_attempts_total",
			Help:      "Authentication decisions by method, strategy and result.",
		}, []string{"method", "strategy", "result"}),
		forwardDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "markgw",
			Name:      "forward_duration_seconds",
			Help:      "Downstream call latency by target and outcome.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"target", "outcome"}),
	}
	reg.MustRegister(m.requests, m.requestDuration, m.authAttempts, m.forwardDuration)
	return m
}

// ObserveRequest records one inbound request.
func (m *Metrics) ObserveRequest(routeGroup string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(routeGroup, statusClass(status)).Inc()
	m.requestDuration.WithLabelValues(routeGroup).Observe(d.Seconds())
}

// ObserveAuth records one authentication decision.
func (m *Metrics) ObserveAuth(method, strategy string, success bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if success {
		result = "accepted"
	}
	m.authAttempts.WithLabelValues(method, strategy, result).Inc()
}

// ObserveForward records one downstream call.
func (m *Metrics) ObserveForward(target, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.forwardDuration.WithLabelValues(target, outcome).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
