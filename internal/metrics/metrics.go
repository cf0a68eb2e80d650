package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ark_evaluator_http_requests_total",
			Help: "Total number of HTTP requests by method, endpoint and status.",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ark_evaluator_http_request_duration_seconds",
			Help:    "HTTP request latency by method, endpoint and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ark_evaluator_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)

	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ark_evaluator_evaluations_total",
			Help: "Total evaluations by type, provider and outcome.",
		},
		[]string{"type", "provider", "outcome"},
	)

	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ark_evaluator_evaluation_duration_seconds",
			Help:    "End-to-end evaluation latency by type and provider.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"type", "provider"},
	)

	ModelTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ark_evaluator_model_tokens_total",
			Help: "Tokens consumed by model calls, by model and kind (prompt|completion).",
		},
		[]string{"model", "kind"},
	)
)
