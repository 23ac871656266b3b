// Package metrics defines the Prometheus surface for the pipeline: every
// counter, histogram, gauge, and summary named by the observability
// contract this repo publishes on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "events_processed_total",
		Help: "Total events successfully processed.",
	})
	EventsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "events_failed_total",
		Help: "Total events that failed processing.",
	})
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits on windowed-counter and read-API lookups.",
	})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses on windowed-counter and read-API lookups.",
	})
	ABVariantAssignments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ab_variant_assignments",
		Help: "A/B variant assignments by variant id.",
	}, []string{"variant"})
	FeatureDriftAlerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feature_drift_alerts",
		Help: "Feature drift alerts triggered, by feature name.",
	}, []string{"feature_name"})
	TimestampParseFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "event_timestamp_parse_failures_total",
		Help: "Events whose timestamp was missing or unparsable and fell back to now().",
	})

	FeatureComputationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "feature_computation_seconds",
		Help:    "Time to compute the feature record for one event.",
		Buckets: prometheus.DefBuckets,
	})
	BatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "batch_size",
		Help:    "Number of events in a flushed batch.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	KafkaConsumerLag = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kafka_consumer_lag",
		Help: "Consumer lag behind the latest offset on the input topic.",
	})

	FeatureValueDistribution = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name:       "feature_value_distribution",
		Help:       "Distribution of computed feature values.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"feature_name"})
)

// MustRegisterAll registers this package's collector set into registerer.
// Call it once at process startup, before serving /metrics.
func MustRegisterAll(registerer prometheus.Registerer) {
	registerer.MustRegister(
		EventsProcessed,
		EventsFailed,
		CacheHits,
		CacheMisses,
		ABVariantAssignments,
		FeatureDriftAlerts,
		TimestampParseFailures,
		FeatureComputationSeconds,
		BatchSize,
		KafkaConsumerLag,
		FeatureValueDistribution,
	)
}
