package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_moderation_submissions_total",
			Help: "Review submissions by outcome",
		},
		[]string{"outcome"},
	)

	ModerationRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_moderation_sightengine_requests_total",
			Help: "Moderation API calls by mode and status",
		},
		[]string{"mode", "status"},
	)

	ModerationDegraded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_moderation_degraded_total",
			Help: "Analyses that ran without moderation metrics",
		},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "review_moderation_stage_duration_seconds",
			Help:    "Duration of each analysis stage in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_moderation_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	AnalysesInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "review_moderation_analyses_in_progress",
			Help: "Sessions currently waiting on an analysis cycle",
		},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "review_moderation_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(SubmissionsTotal)
		prometheus.MustRegister(ModerationRequests)
		prometheus.MustRegister(ModerationDegraded)
		prometheus.MustRegister(StageDuration)
		prometheus.MustRegister(LLMTokensUsed)
		prometheus.MustRegister(AnalysesInProgress)
		prometheus.MustRegister(CircuitState)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
