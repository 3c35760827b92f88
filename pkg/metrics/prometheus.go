package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// PrometheusRecorder implements Recorder on Prometheus collectors.
type PrometheusRecorder struct {
	requestsTotal    *prometheus.CounterVec
	tokensTotal      *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	rejectionsTotal  *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	queueWaitTime    *prometheus.HistogramVec
	compactionsTotal *prometheus.CounterVec
	compactionSaved  *prometheus.CounterVec
}

// NewPrometheusRecorder registers the collectors with the default registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_backend_requests_total",
				Help: "Backend requests by model, status, and error type",
			},
			[]string{"model", "status", "error_type"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_backend_tokens_total",
				Help: "Tokens consumed by backend requests",
			},
			[]string{"model", "type"},
		),
		retriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_backend_retries_total",
				Help: "Retry re-attempts by model",
			},
			[]string{"model"},
		),
		rejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_backend_rejections_total",
				Help: "Fast-fail rejections by model and reason",
			},
			[]string{"model", "reason"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_backend_request_duration_seconds",
				Help:    "Backend request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		queueWaitTime: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_admission_wait_duration_seconds",
				Help:    "Time spent waiting for bulkhead or rate-limit admission",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		compactionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_compactions_total",
				Help: "History compaction passes by strategy",
			},
			[]string{"strategy"},
		),
		compactionSaved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_compaction_tokens_saved_total",
				Help: "Tokens removed from history by compaction",
			},
			[]string{"strategy"},
		),
	}
}

// ObserveRequest implements Recorder.
func (p *PrometheusRecorder) ObserveRequest(model, status, errorType string, promptTokens, completionTokens int, duration time.Duration) {
	p.requestsTotal.WithLabelValues(model, status, errorType).Inc()
	p.requestDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		p.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		p.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// IncRetry implements Recorder.
func (p *PrometheusRecorder) IncRetry(model string) {
	p.retriesTotal.WithLabelValues(model).Inc()
}

// IncRejection implements Recorder.
func (p *PrometheusRecorder) IncRejection(model, reason string) {
	p.rejectionsTotal.WithLabelValues(model, reason).Inc()
}

// ObserveQueueWait implements Recorder.
func (p *PrometheusRecorder) ObserveQueueWait(model string, duration time.Duration) {
	p.queueWaitTime.WithLabelValues(model).Observe(duration.Seconds())
}

// ObserveCompaction implements Recorder.
func (p *PrometheusRecorder) ObserveCompaction(strategy string, tokensBefore, tokensAfter int) {
	p.compactionsTotal.WithLabelValues(strategy).Inc()
	if saved := tokensBefore - tokensAfter; saved > 0 {
		p.compactionSaved.WithLabelValues(strategy).Add(float64(saved))
	}
}
