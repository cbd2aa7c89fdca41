// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LLM request outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeCached      = "cached"
	OutcomeRateLimited = "rate_limited"
	OutcomeTimeout     = "timeout"
	OutcomeConnection  = "connection"
	OutcomeAuth        = "auth"
	OutcomeStatus      = "http_error"
	OutcomeEmpty       = "empty"
	OutcomeCanceled    = "canceled"
)

var (
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plubot_llm_requests_total",
			Help: "Completed LLM client calls by outcome",
		},
		[]string{"outcome"},
	)

	LLMCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plubot_llm_cache_total",
			Help: "LLM response cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	LLMWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plubot_llm_wait_seconds",
			Help:    "Time spent waiting for a rate limiter slot",
			Buckets: []float64{0, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
		},
	)

	FlowMatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plubot_flow_matches_total",
			Help: "Inbound messages answered by a flow rule",
		},
	)

	QuotaRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plubot_quota_rejections_total",
			Help: "Messages refused because the owner's monthly quota is exhausted",
		},
	)

	IntakeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plubot_intake_transitions_total",
			Help: "Intake state machine transitions",
		},
		[]string{"from", "to"},
	)

	InboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plubot_inbound_messages_total",
			Help: "Inbound messages by channel and path (owned, intake, verify, duplicate)",
		},
		[]string{"channel", "path"},
	)

	dbConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "plubot_db_connections",
			Help: "Database pool connections by state",
		},
		[]string{"state"},
	)
)

// ObserveLLMWait records a limiter wait.
func ObserveLLMWait(d time.Duration) {
	LLMWait.Observe(d.Seconds())
}

// ObserveDBStats publishes a snapshot of the connection pool.
func ObserveDBStats(stats sql.DBStats) {
	dbConnections.WithLabelValues("open").Set(float64(stats.OpenConnections))
	dbConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	dbConnections.WithLabelValues("idle").Set(float64(stats.Idle))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
