// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "provenance_feed"

var (
	EntriesParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_parsed_total",
			Help:      "Feed entries seen by the parser, by source and outcome.",
		},
		[]string{"source", "outcome"}, // outcome: kept, skipped
	)

	SourceFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetch_failures_total",
			Help:      "Sources that could not be fetched or parsed.",
		},
		[]string{"source"},
	)

	ItemsStored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_stored_total",
		Help:      "Records successfully upserted.",
	})

	ItemStoreFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "item_store_failures_total",
		Help:      "Records that failed to upsert.",
	})

	IngestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Completed ingest runs, by status.",
		},
		[]string{"status"}, // status: success, partial, failure
	)

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_duration_seconds",
		Help:      "Duration of ingest runs.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})

	ObservationsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "observations_queued_total",
		Help:      "Observation payloads accepted into the sidecar queue.",
	})

	ObservationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "observations_dropped_total",
		Help:      "Observation payloads dropped because the queue was full.",
	})

	ObservationsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "observations_delivered_total",
		Help:      "Observation payloads accepted by the provenance service.",
	})

	ObservationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "observations_failed_total",
		Help:      "Observation payloads that failed delivery.",
	})

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status.",
		},
		[]string{"method", "route", "status"},
	)
)
