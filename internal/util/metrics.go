package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CalculationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_calculations_total",
		Help: "Total number of pricing calculations",
	}, []string{"result"})

	CalculationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricing_calculation_duration_seconds",
		Help:    "Latency of a single pipeline run",
		Buckets: prometheus.DefBuckets,
	})

	StepsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricing_steps_applied_total",
		Help: "Total number of pricing steps recorded",
	})

	RulesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_rules_skipped_total",
		Help: "Total number of rules skipped during evaluation",
	}, []string{"reason"})

	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricing_cache_hits_total",
		Help: "Total number of breakdown cache hits",
	})

	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricing_cache_misses_total",
		Help: "Total number of breakdown cache misses",
	})

	CacheInvalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_cache_invalidations_total",
		Help: "Total number of cache invalidations by scope",
	}, []string{"scope"})

	BatchSizeObserved = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricing_batch_size",
		Help:    "Number of contexts per batch calculation",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})

	SimulationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricing_simulations_total",
		Help: "Total number of what-if rule simulations",
	})

	SyncJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_jobs_total",
		Help: "Total number of catalog sync jobs by terminal status",
	}, []string{"status"})

	SyncConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_sync_conflicts_total",
		Help: "Total number of sync triggers rejected due to a running job on the same scope",
	})

	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pricing_active_stream_subscriptions",
		Help: "Currently connected progress stream subscribers",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
