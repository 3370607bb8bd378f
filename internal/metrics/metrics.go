// Package metrics provides Prometheus metrics for shard processing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for shardfetch.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Sample metrics
	SamplesProcessed *prometheus.CounterVec
	FetchRetries     prometheus.Counter
	FetchedBytes     prometheus.Counter
	InFlightFetches  prometheus.Gauge

	// Shard metrics
	ShardsProcessed prometheus.Counter
	ShardsFailed    prometheus.Counter
	ShardDuration   prometheus.Histogram
}

// New registers the metrics with reg under namespace.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "shardfetch"
	}
	f := promauto.With(reg)

	return &Metrics{
		SamplesProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "samples_processed_total",
				Help:      "Total number of samples processed, by status",
			},
			[]string{"status"},
		),
		FetchRetries: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_retries_total",
				Help:      "Total number of repeated fetch attempts",
			},
		),
		FetchedBytes: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetched_bytes_total",
				Help:      "Total number of body bytes downloaded",
			},
		),
		InFlightFetches: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_fetches",
				Help:      "Number of fetches currently holding a concurrency slot",
			},
		),
		ShardsProcessed: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shards_processed_total",
				Help:      "Total number of shards processed successfully",
			},
		),
		ShardsFailed: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shards_failed_total",
				Help:      "Total number of shards that failed",
			},
		),
		ShardDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "shard_duration_seconds",
				Help:      "Wall time to process a shard",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
			},
		),
	}
}

// Init registers metrics with the default Prometheus registry.
// Call this once at startup.
func Init(namespace string) *Metrics {
	return New(prometheus.DefaultRegisterer, namespace)
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncSamples increments the sample counter for status.
func (m *Metrics) IncSamples(status string) {
	if m == nil {
		return
	}
	m.SamplesProcessed.WithLabelValues(status).Inc()
}

// IncFetchRetries increments the retry counter.
func (m *Metrics) IncFetchRetries() {
	if m == nil {
		return
	}
	m.FetchRetries.Inc()
}

// AddFetchedBytes adds n downloaded bytes.
func (m *Metrics) AddFetchedBytes(n int) {
	if m == nil {
		return
	}
	m.FetchedBytes.Add(float64(n))
}

// FetchStarted marks a fetch as holding a slot.
func (m *Metrics) FetchStarted() {
	if m == nil {
		return
	}
	m.InFlightFetches.Inc()
}

// FetchFinished releases a fetch slot.
func (m *Metrics) FetchFinished() {
	if m == nil {
		return
	}
	m.InFlightFetches.Dec()
}

// ObserveShard records a finished shard.
func (m *Metrics) ObserveShard(ok bool, seconds float64) {
	if m == nil {
		return
	}
	if ok {
		m.ShardsProcessed.Inc()
		m.ShardDuration.Observe(seconds)
		return
	}
	m.ShardsFailed.Inc()
}
