package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wishlist_mutations_total",
			Help: "Wishlist mutations by operation and outcome (success, noop, failure)",
		},
		[]string{"operation", "outcome"},
	)

	reconciliationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wishlist_reconciliations_total",
			Help: "Optimistic updates rolled back by reloading after a failed sync",
		},
	)

	loadFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wishlist_load_failures_total",
			Help: "Loads that fell back to an empty collection",
		},
	)

	syncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wishlist_sync_duration_seconds",
			Help:    "Latency of whole-collection writes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wishlist_sessions_active",
			Help: "Number of in-memory wishlist sessions",
		},
	)
)
