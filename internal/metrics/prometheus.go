package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_submissions_total",
			Help: "Total number of approval requests submitted",
		},
		[]string{"entity_type", "priority", "outcome"},
	)

	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_decisions_total",
			Help: "Total number of decisions applied to approval requests",
		},
		[]string{"entity_type", "decision"},
	)

	sideEffectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_side_effect_failures_total",
			Help: "Entity side effects that failed after a decision was committed",
		},
		[]string{"entity_type"},
	)

	bestEffortFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_best_effort_failures_total",
			Help: "Assignment, audit and notification failures that were logged and swallowed",
		},
		[]string{"stage"},
	)

	slaBreached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "approval_sla_breached",
			Help: "Open approval requests past their SLA deadline at the last statistics run",
		},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "approval_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordSubmission counts a submission; outcome is "pending", "auto_approved" or "duplicate".
func RecordSubmission(entityType, priority, outcome string) {
	submissionsTotal.WithLabelValues(entityType, priority, outcome).Inc()
}

func RecordDecision(entityType, decision string) {
	decisionsTotal.WithLabelValues(entityType, decision).Inc()
}

func RecordSideEffectFailure(entityType string) {
	sideEffectFailuresTotal.WithLabelValues(entityType).Inc()
}

// RecordBestEffortFailure counts a swallowed failure by stage: "assignment", "audit" or "notification".
func RecordBestEffortFailure(stage string) {
	bestEffortFailuresTotal.WithLabelValues(stage).Inc()
}

func SetSLABreached(count int) {
	slaBreached.Set(float64(count))
}

func RecordHTTPRequest(method, route string, statusCode int, durationSeconds float64) {
	status := "unknown"
	if statusCode >= 200 && statusCode < 300 {
		status = "2xx"
	} else if statusCode >= 300 && statusCode < 400 {
		status = "3xx"
	} else if statusCode >= 400 && statusCode < 500 {
		status = "4xx"
	} else if statusCode >= 500 {
		status = "5xx"
	}

	httpRequestDuration.WithLabelValues(method, route, status).Observe(durationSeconds)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
