// Package metrics exposes Prometheus instruments for the allocation
// engine. All instruments are registered on the default registry and
// served from the /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal counts allocation attempts by trigger and outcome
	// ("success", "hard", "unknown", "transient_exhausted", "skipped").
	AttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tablewise",
		Subsystem: "allocator",
		Name:      "attempts_total",
		Help:      "Allocation attempts by trigger and outcome.",
	}, []string{"trigger", "outcome"})

	// HoldsTotal counts hold proposals by outcome ("accepted",
	// "conflict", "rate_limited", "invalid").
	HoldsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tablewise",
		Subsystem: "allocator",
		Name:      "holds_total",
		Help:      "Hold proposals by outcome.",
	}, []string{"outcome"})

	// SearchDuration observes the candidate generation plus scoring
	// phase of one allocation decision.
	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tablewise",
		Subsystem: "allocator",
		Name:      "search_duration_seconds",
		Help:      "Duration of the candidate search and scoring phase.",
		Buckets:   prometheus.DefBuckets,
	})

	// SessionConflictsTotal counts optimistic-concurrency rejections
	// ("stale_context", "version").
	SessionConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tablewise",
		Subsystem: "allocator",
		Name:      "session_conflicts_total",
		Help:      "Manual session rejections by kind.",
	}, []string{"kind"})
)
