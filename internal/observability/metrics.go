package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// enrichment pipeline.
type Metrics struct {
	// Fetch stage.
	FetchResults   *prometheus.CounterVec // label: outcome={ok,no_data,failed}
	FetchRetries   prometheus.Counter
	FetchDuration  prometheus.Histogram
	ChunksWritten  prometheus.Counter
	WindowDuration prometheus.Histogram
	FetchRunning   prometheus.Gauge

	// Load stage.
	FactsInserted     prometheus.Counter
	FactsSkipped      prometheus.Counter
	DimensionsCreated *prometheus.CounterVec // label: dimension
	RowsPublished     prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchResults,
		m.FetchRetries,
		m.FetchDuration,
		m.ChunksWritten,
		m.WindowDuration,
		m.FetchRunning,
		m.FactsInserted,
		m.FactsSkipped,
		m.DimensionsCreated,
		m.RowsPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics without touching the default registry
// to avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "race_etl",
			Name:      "fetch_results_total",
			Help:      "Weather fetches by outcome.",
		}, []string{"outcome"}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "race_etl",
			Name:      "fetch_retries_total",
			Help:      "Retry attempts after a failed weather fetch.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "race_etl",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of one weather fetch including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ChunksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "race_etl",
			Name:      "chunks_written_total",
			Help:      "Chunk artifacts persisted by the fetch stage.",
		}),
		WindowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "race_etl",
			Name:      "window_duration_seconds",
			Help:      "Duration of one fetch window excluding the cool-down.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		FetchRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "race_etl",
			Name:      "fetch_running",
			Help:      "1 while the fetch stage is active, 0 otherwise.",
		}),
		FactsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "race_etl",
			Name:      "facts_inserted_total",
			Help:      "New fact rows inserted into the warehouse.",
		}),
		FactsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "race_etl",
			Name:      "facts_skipped_total",
			Help:      "Fact rows skipped because an identical fact already existed.",
		}),
		DimensionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "race_etl",
			Name:      "dimensions_created_total",
			Help:      "Dimension rows created, by dimension table.",
		}, []string{"dimension"}),
		RowsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "race_etl",
			Name:      "rows_published_total",
			Help:      "Enriched rows published to the Kafka sink topic.",
		}),
	}
}
