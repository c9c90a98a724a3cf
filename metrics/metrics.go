package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Interest pipeline
	InterestEventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interest_events_recorded_total",
			Help: "Behavior events appended to the interest stream",
		},
		[]string{"kind", "result"}, // result: ok, error
	)

	InterestEventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interest_events_consumed_total",
			Help: "Stream entries processed by the interest aggregator",
		},
		[]string{"result"}, // scored, discarded, error
	)

	// Enrichment pipeline
	EnrichmentClaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_claims_total",
			Help: "Claim attempts on product enrichment state",
		},
		[]string{"result"}, // won, lost, error
	)

	EnrichmentJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_jobs_total",
			Help: "Finished enrichment jobs by outcome",
		},
		[]string{"outcome"}, // completed, failed, claim_lost, rejected
	)

	EnrichmentJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrichment_job_duration_seconds",
			Help:    "Wall time of enrichment jobs",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	EnrichmentQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "enrichment_queue_depth",
			Help: "Jobs waiting for a worker",
		},
	)

	// External services
	ExternalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "external_requests_total",
			Help: "Calls to crawler, sentiment and ranker services",
		},
		[]string{"service", "result"}, // success, failure, rejected
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "0 = closed, 1 = half-open, 2 = open",
		},
		[]string{"service"},
	)

	// Recommendations
	RecommendationSections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_sections_total",
			Help: "Recommendation sections by kind and outcome",
		},
		[]string{"section", "outcome"}, // served, empty, error
	)
)
