package research

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deep_research",
		Name:      "search_queries_total",
		Help:      "Search queries by outcome.",
	}, []string{"outcome"})

	rateLimitRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "deep_research",
		Name:      "rate_limit_retries_total",
		Help:      "Retries caused by provider throttling.",
	})

	modelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deep_research",
		Name:      "model_calls_total",
		Help:      "Structured model calls by task and outcome.",
	}, []string{"task", "outcome"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deep_research",
		Name:      "runs_total",
		Help:      "Research runs by strategy and final status.",
	}, []string{"strategy", "status"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "deep_research",
		Name:      "run_duration_seconds",
		Help:      "Wall time of research runs.",
		Buckets:   prometheus.ExponentialBuckets(10, 2, 8),
	}, []string{"strategy"})
)
