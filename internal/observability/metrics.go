package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// validation service.
type Metrics struct {
	ObservationsLoaded  *prometheus.CounterVec // labels: source={satellite,ground}
	RowsRejected        *prometheus.CounterVec // labels: source={satellite,ground}, reason
	PairsMatched        prometheus.Counter
	SatelliteUnmatched  prometheus.Counter
	RunActive           prometheus.Gauge
	ReportsPublished    prometheus.Counter
	PublishErrors       prometheus.Counter
	GroupStatus         *prometheus.CounterVec // labels: status={validated,insufficient_data,degenerate}
	MatchDuration       prometheus.Histogram
	AnalysisDuration    *prometheus.HistogramVec // labels: section={deming,bland_altman,bootstrap,permutation,loco}
	RunDuration         prometheus.Histogram
	SensitivityDuration prometheus.Histogram
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ObservationsLoaded,
		m.RowsRejected,
		m.PairsMatched,
		m.SatelliteUnmatched,
		m.RunActive,
		m.ReportsPublished,
		m.PublishErrors,
		m.GroupStatus,
		m.MatchDuration,
		m.AnalysisDuration,
		m.RunDuration,
		m.SensitivityDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ObservationsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tempo_validation",
			Name:      "observations_loaded_total",
			Help:      "Rows successfully parsed from the input files, by source.",
		}, []string{"source"}),
		RowsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tempo_validation",
			Name:      "rows_rejected_total",
			Help:      "Input rows dropped during parsing or quality filtering.",
		}, []string{"source", "reason"}),
		PairsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tempo_validation",
			Name:      "pairs_matched_total",
			Help:      "Satellite/ground pairs produced by the matcher.",
		}),
		SatelliteUnmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tempo_validation",
			Name:      "satellite_unmatched_total",
			Help:      "Quality-passing satellite observations with no station in range.",
		}),
		RunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tempo_validation",
			Name:      "run_active",
			Help:      "1 while a validation run is in progress, 0 otherwise.",
		}),
		ReportsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tempo_validation",
			Name:      "reports_published_total",
			Help:      "Validation reports published to Kafka.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tempo_validation",
			Name:      "publish_errors_total",
			Help:      "Failed report publish attempts.",
		}),
		GroupStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tempo_validation",
			Name:      "group_status_total",
			Help:      "Analysis groups by final status.",
		}, []string{"status"}),
		MatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tempo_validation",
			Name:      "match_duration_seconds",
			Help:      "Duration of the spatiotemporal matching phase.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		AnalysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tempo_validation",
			Name:      "analysis_duration_seconds",
			Help:      "Duration of each statistical section per group.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		}, []string{"section"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tempo_validation",
			Name:      "run_duration_seconds",
			Help:      "End-to-end duration of a validation run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}),
		SensitivityDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tempo_validation",
			Name:      "sensitivity_duration_seconds",
			Help:      "Duration of the sensitivity re-matching grid.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60},
		}),
	}
}
