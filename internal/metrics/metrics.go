// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes Prometheus collectors for the query pipeline.
// Collectors are registered on the default registry at init time; the
// binary decides whether to serve them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts cache-aside reads answered from the query cache.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "biblio_cache_hits_total",
		Help: "Query cache hits",
	})

	// CacheMisses counts cache-aside reads that fell through to a fetch,
	// including refresh bypasses.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "biblio_cache_misses_total",
		Help: "Query cache misses and refresh bypasses",
	})

	// RateLimitAdmitted counts calls admitted by the limiter.
	RateLimitAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "biblio_ratelimit_admitted_total",
		Help: "Calls admitted by the sliding-window limiter",
	})

	// RateLimitRejected counts callers rejected because their estimated
	// queue wait exceeded the configured bound.
	RateLimitRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "biblio_ratelimit_rejected_total",
		Help: "Callers rejected by admission control",
	})

	// TransportRetries counts retry attempts by cause.
	TransportRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biblio_transport_retries_total",
		Help: "Transport retry attempts by cause",
	}, []string{"cause"})

	// QueryDuration observes end-to-end Run durations by outcome.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "biblio_query_duration_seconds",
		Help:    "End-to-end query duration by outcome",
		Buckets: []float64{0.005, 0.05, 0.25, 1, 2.5, 10, 30},
	}, []string{"outcome"})
)
