// Package metrics exposes package-level Prometheus collectors for the
// engine's hot paths: collection, parsing, rule evaluation, webhook
// dispatch, and store ingestion. Collectors are registered once at
// init.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsCollectedTotal counts LogEntry values successfully parsed
	// and tagged by the host collector, labeled by host and channel.
	EventsCollectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_events_collected_total",
			Help: "Total number of log entries collected, by host and channel",
		},
		[]string{"host", "channel"},
	)

	// ParseFailuresTotal counts per-fragment parse errors.
	ParseFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_parse_failures_total",
			Help: "Total number of event fragments that failed to parse, by host and channel",
		},
		[]string{"host", "channel"},
	)

	// CollectionCycleDuration times one Collector Pool cycle.
	CollectionCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_collection_cycle_duration_seconds",
			Help:    "Duration of one collection cycle across all hosts",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HostCollectionFailuresTotal counts failed channel collections on a
	// host (an executor error or a non-zero PowerShell exit), labeled by
	// host and channel.
	HostCollectionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_host_collection_failures_total",
			Help: "Total number of host/channel collection failures",
		},
		[]string{"host", "channel"},
	)

	// RuleEvaluationsTotal counts watcher rule evaluations, labeled by
	// whether the rule fired.
	RuleEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_rule_evaluations_total",
			Help: "Total number of rule evaluations, by rule and outcome",
		},
		[]string{"rule", "fired"},
	)

	// WebhookDuration times outbound notifier HTTP calls.
	WebhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_webhook_duration_seconds",
			Help:    "Duration of outbound webhook calls, by flavor",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"flavor"},
	)

	// StoreInsertBatchSize observes the row count of each InsertBatch
	// call.
	StoreInsertBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_store_insert_batch_size",
			Help:    "Number of rows per store insert batch",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		EventsCollectedTotal,
		ParseFailuresTotal,
		CollectionCycleDuration,
		HostCollectionFailuresTotal,
		RuleEvaluationsTotal,
		WebhookDuration,
		StoreInsertBatchSize,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
