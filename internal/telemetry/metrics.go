package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the chat gateway.
type Metrics struct {
	RequestTotal       *prometheus.CounterVec
	RequestDurationMs  *prometheus.HistogramVec
	TimeToFirstByteMs  *prometheus.HistogramVec
	TokensTotal        *prometheus.CounterVec
	StepsPerRequest    *prometheus.HistogramVec
	ToolInvocations    *prometheus.CounterVec
	RateLimitHitsTotal *prometheus.CounterVec
	OriginRejected     prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// uses the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		RequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_request_total",
			Help: "Total number of chat requests processed by the gateway.",
		}, []string{"model", "provider", "status", "identity_type"}),

		RequestDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_request_duration_ms",
			Help:    "Total chat request duration in milliseconds, including every model step.",
			Buckets: []float64{250, 500, 1000, 2500, 5000, 10000, 20000, 40000, 80000},
		}, []string{"model", "provider"}),

		TimeToFirstByteMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_time_to_first_byte_ms",
			Help:    "Time from request start until the first streamed event.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"provider"}),

		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_tokens_total",
			Help: "Total tokens processed.",
		}, []string{"model", "direction"}),

		StepsPerRequest: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_steps",
			Help:    "Model steps taken per chat request.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}, []string{"finish_reason"}),

		ToolInvocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_tool_invocations_total",
			Help: "Tool invocations by terminal state.",
		}, []string{"tool", "state"}),

		RateLimitHitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_rate_limit_hits_total",
			Help: "Requests rejected by the message quota.",
		}, []string{"identity_type"}),

		OriginRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "chat_origin_rejected_total",
			Help: "Requests rejected by the origin allow-list.",
		}),
	}
}

// RecordRequest records metrics for a completed request.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	m.RequestTotal.WithLabelValues(
		labels.Model, labels.Provider, labels.Status, labels.IdentityType,
	).Inc()

	if labels.DurationMs > 0 {
		m.RequestDurationMs.WithLabelValues(labels.Model, labels.Provider).Observe(labels.DurationMs)
	}
	if labels.Steps > 0 {
		m.StepsPerRequest.WithLabelValues(labels.FinishReason).Observe(float64(labels.Steps))
	}
	if labels.InputTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Model, "input").Add(float64(labels.InputTokens))
	}
	if labels.OutputTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Model, "output").Add(float64(labels.OutputTokens))
	}
}

func (m *Metrics) RecordFirstByte(provider string, ms float64) {
	m.TimeToFirstByteMs.WithLabelValues(provider).Observe(ms)
}

func (m *Metrics) RecordToolInvocation(tool, state string) {
	m.ToolInvocations.WithLabelValues(tool, state).Inc()
}

func (m *Metrics) RecordRateLimitHit(identityType string) {
	m.RateLimitHitsTotal.WithLabelValues(identityType).Inc()
}

// RequestLabels holds the label values for recording a request.
type RequestLabels struct {
	Model        string
	Provider     string
	Status       string
	IdentityType string
	FinishReason string
	Steps        int
	DurationMs   float64
	InputTokens  int
	OutputTokens int
}
