package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// newTestMetrics builds Metrics on a private registry so tests do not
// pollute the default one.
func newTestMetrics() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		AttemptTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_groundcheck_attempt_total",
			Help: "Test counter",
		}, []string{"provider", "model", "outcome"}),
		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_groundcheck_request_total",
			Help: "Test counter",
		}, []string{"provider", "model", "mode", "status"}),
		ProviderLatencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "test_groundcheck_provider_latency_ms",
			Help:    "Test histogram",
			Buckets: []float64{100, 500, 1000},
		}, []string{"provider", "model"}),
		GroundedEffectiveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_groundcheck_grounded_effective_total",
			Help: "Test counter",
		}, []string{"provider", "model"}),
		UnexpectedToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_groundcheck_unexpected_tool_call_total",
			Help: "Test counter",
		}, []string{"provider", "model"}),
		RateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_groundcheck_rate_limit_hit_total",
			Help: "Test counter",
		}, []string{"dimension"}),
	}

	reg.MustRegister(m.AttemptTotal, m.RequestTotal, m.ProviderLatencyMs,
		m.GroundedEffectiveTotal, m.UnexpectedToolCalls, m.RateLimitHits)
	return m, reg
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	var metric dto.Metric
	counter.Write(&metric)
	return *metric.Counter.Value
}

func TestRecordAttempt(t *testing.T) {
	m, _ := newTestMetrics()

	m.RecordAttempt("openai", "gpt-5", "success", 420)
	m.RecordAttempt("openai", "gpt-5", "transport_error", 60000)

	if got := counterValue(t, m.AttemptTotal, "openai", "gpt-5", "success"); got != 1 {
		t.Errorf("expected 1 successful attempt, got %v", got)
	}
	if got := counterValue(t, m.AttemptTotal, "openai", "gpt-5", "transport_error"); got != 1 {
		t.Errorf("expected 1 failed attempt, got %v", got)
	}
}

func TestRecordRequest(t *testing.T) {
	m, _ := newTestMetrics()

	m.RecordRequest("gemini", "gemini-2.5-pro", "REQUIRED", "ok", true)
	m.RecordRequest("gemini", "gemini-2.5-pro", "REQUIRED", "grounding_required", false)

	if got := counterValue(t, m.RequestTotal, "gemini", "gemini-2.5-pro", "REQUIRED", "ok"); got != 1 {
		t.Errorf("expected 1 ok request, got %v", got)
	}
	if got := counterValue(t, m.GroundedEffectiveTotal, "gemini", "gemini-2.5-pro"); got != 1 {
		t.Errorf("grounded_effective should only count confirmed groundings, got %v", got)
	}
}

func TestRecordUnexpectedToolCalls(t *testing.T) {
	m, _ := newTestMetrics()

	m.RecordUnexpectedToolCalls("openai", "gpt-5", 3)
	m.RecordUnexpectedToolCalls("openai", "gpt-5", 0) // no-op

	if got := counterValue(t, m.UnexpectedToolCalls, "openai", "gpt-5"); got != 3 {
		t.Errorf("expected 3 unexpected tool calls, got %v", got)
	}
}

func TestRecordRateLimitHit(t *testing.T) {
	m, _ := newTestMetrics()

	m.RecordRateLimitHit("window")
	m.RecordRateLimitHit("window")
	m.RecordRateLimitHit("daily")

	if got := counterValue(t, m.RateLimitHits, "window"); got != 2 {
		t.Errorf("expected 2 window hits, got %v", got)
	}
	if got := counterValue(t, m.RateLimitHits, "daily"); got != 1 {
		t.Errorf("expected 1 daily hit, got %v", got)
	}
}
