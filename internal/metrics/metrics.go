// Package metrics holds the Prometheus collectors of the diff engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Diff cache metrics
	DiffRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphdiff_diff_requests_total",
		Help: "Total number of diff requests by outcome",
	}, []string{"outcome"})

	CachedRootsUsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphdiff_cached_roots_used_total",
		Help: "Total number of cached diff roots reused to answer a request",
	})

	RangesCalculated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphdiff_ranges_calculated_total",
		Help: "Total number of missing time ranges calculated from the graph",
	})

	CalculationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "graphdiff_calculation_duration_seconds",
		Help:    "Duration of one raw diff calculation and enrichment",
		Buckets: prometheus.DefBuckets,
	})

	CompactedRoots = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphdiff_compacted_roots_total",
		Help: "Total number of cached diff roots replaced by their combination",
	})

	// Conflict metrics
	ConflictsDetected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graphdiff_conflicts_detected",
		Help: "Number of conflicts found by the last branch diff update",
	})

	// Merge serialization metrics
	MergeBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphdiff_merge_batches_total",
		Help: "Total number of merge batches produced",
	})

	MergeOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphdiff_merge_operations_total",
		Help: "Total number of merge operations produced by kind and action",
	}, []string{"kind", "action"})
)
