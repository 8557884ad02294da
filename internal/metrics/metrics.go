// Package metrics exposes the engine's prometheus instrumentation: signal
// counts, scheduler job outcomes, pass latency, and cache counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/samlafell/mlb-betting-sub012/internal/cache"
)

var (
	// SignalsDetected counts admitted signals by strategy.
	SignalsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlbbet",
		Name:      "signals_detected_total",
		Help:      "Admitted signals by strategy",
	}, []string{"strategy"})

	// ProcessorFailures counts isolated per-strategy detection failures.
	ProcessorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlbbet",
		Name:      "processor_failures_total",
		Help:      "Detection failures isolated per strategy",
	}, []string{"strategy"})

	// JobsFinished counts scheduler jobs by terminal state.
	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlbbet",
		Name:      "scheduler_jobs_total",
		Help:      "Scheduler jobs by terminal state",
	}, []string{"state"})

	// PassDuration observes end-to-end detection pass latency.
	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mlbbet",
		Name:      "detection_pass_seconds",
		Help:      "End-to-end detection pass duration",
		Buckets:   prometheus.DefBuckets,
	})

	// BacktestRuns counts backtest executions by strategy and outcome.
	BacktestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlbbet",
		Name:      "backtest_runs_total",
		Help:      "Backtest executions by strategy and outcome",
	}, []string{"strategy", "outcome"})

	// Recommendations counts persisted recommendation bundles by market.
	Recommendations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlbbet",
		Name:      "recommendations_total",
		Help:      "Recommendation bundles produced by market",
	}, []string{"market"})

	cacheHits = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mlbbet",
		Name:      "cache_hits",
		Help:      "Cache hits by cache name",
	}, []string{"cache"})

	cacheMisses = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mlbbet",
		Name:      "cache_misses",
		Help:      "Cache misses by cache name",
	}, []string{"cache"})

	cacheEvictions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mlbbet",
		Name:      "cache_evictions",
		Help:      "Cache evictions by cache name",
	}, []string{"cache"})
)

// ObserveCache publishes a cache's counter snapshot under its name.
func ObserveCache(name string, stats cache.Stats) {
	cacheHits.WithLabelValues(name).Set(float64(stats.Hits))
	cacheMisses.WithLabelValues(name).Set(float64(stats.Misses))
	cacheEvictions.WithLabelValues(name).Set(float64(stats.Evictions))
}
