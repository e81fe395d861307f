package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the grounding engine. This is a
// write-only surface: the engine publishes, the collector scrapes, nothing
// reads back.
type Metrics struct {
	AttemptTotal           *prometheus.CounterVec
	RequestTotal           *prometheus.CounterVec
	ProviderLatencyMs      *prometheus.HistogramVec
	GroundedEffectiveTotal *prometheus.CounterVec
	UnexpectedToolCalls    *prometheus.CounterVec
	RateLimitHits          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		AttemptTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groundcheck_attempt_total",
			Help: "Provider call attempts, including retries.",
		}, []string{"provider", "model", "outcome"}),

		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groundcheck_request_total",
			Help: "Completed grounding requests by final status.",
		}, []string{"provider", "model", "mode", "status"}),

		ProviderLatencyMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "groundcheck_provider_latency_ms",
			Help:    "Per-attempt provider round-trip latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"provider", "model"}),

		GroundedEffectiveTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groundcheck_grounded_effective_total",
			Help: "Requests whose result was confirmed grounded.",
		}, []string{"provider", "model"}),

		UnexpectedToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groundcheck_unexpected_tool_call_total",
			Help: "Search invocations reported by the provider when grounding was not requested.",
		}, []string{"provider", "model"}),

		RateLimitHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groundcheck_rate_limit_hit_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"dimension"}),
	}
}

// RecordAttempt records one provider call attempt, success or failure.
func (m *Metrics) RecordAttempt(provider, model, outcome string, latencyMs float64) {
	m.AttemptTotal.WithLabelValues(provider, model, outcome).Inc()
	m.ProviderLatencyMs.WithLabelValues(provider, model).Observe(latencyMs)
}

// RecordRequest records the final outcome of one grounding request.
func (m *Metrics) RecordRequest(provider, model, mode, status string, groundedEffective bool) {
	m.RequestTotal.WithLabelValues(provider, model, mode, status).Inc()
	if groundedEffective {
		m.GroundedEffectiveTotal.WithLabelValues(provider, model).Inc()
	}
}

// RecordRateLimitHit records one rejected request per limited dimension.
func (m *Metrics) RecordRateLimitHit(dimension string) {
	m.RateLimitHits.WithLabelValues(dimension).Inc()
}

// RecordUnexpectedToolCalls records search calls performed under mode NONE.
func (m *Metrics) RecordUnexpectedToolCalls(provider, model string, count int) {
	if count > 0 {
		m.UnexpectedToolCalls.WithLabelValues(provider, model).Add(float64(count))
	}
}
