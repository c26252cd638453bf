package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// preprocessing pipeline.
type Metrics struct {
	ArchivesProcessed prometheus.Counter
	ArchivesFailed    prometheus.Counter
	RowsCleaned       prometheus.Counter
	WorkersActive     prometheus.Gauge

	// Cleaning metrics.
	BoundsNulled prometheus.Counter
	IQRNulled    prometheus.Counter

	// Spatial mapping metrics.
	PolygonCache     *prometheus.CounterVec // labels: result={hit,miss}
	CoordsJoined     prometheus.Counter
	UnmappedDropped  prometheus.Counter
	MappingFallbacks prometheus.Counter
	ArchiveDuration  prometheus.Histogram
	TempDirsRecorded prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ArchivesProcessed,
		m.ArchivesFailed,
		m.RowsCleaned,
		m.WorkersActive,
		m.BoundsNulled,
		m.IQRNulled,
		m.PolygonCache,
		m.CoordsJoined,
		m.UnmappedDropped,
		m.MappingFallbacks,
		m.ArchiveDuration,
		m.TempDirsRecorded,
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
		ArchivesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reanalysis_etl",
			Name:      "archives_processed_total",
			Help:      "Daily archives processed to a persisted artifact.",
		}),
		ArchivesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reanalysis_etl",
			Name:      "archives_failed_total",
			Help:      "Daily archives that could not be processed.",
		}),
		RowsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reanalysis_etl",
			Name:      "rows_cleaned_total",
			Help:      "Grid rows that passed through the outlier filter.",
		}),
		WorkersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reanalysis_etl",
			Name:      "workers_active",
			Help:      "Worker goroutines currently processing an archive.",
		}),
		BoundsNulled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reanalysis_etl",
			Name:      "bounds_nulled_total",
			Help:      "Values nulled by the physical-bounds filter.",
		}),
		IQRNulled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reanalysis_etl",
			Name:      "iqr_nulled_total",
			Help:      "Values nulled by the IQR filter.",
		}),
		PolygonCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reanalysis_etl",
			Name:      "polygon_cache_total",
			Help:      "Administrative polygon cache lookups by result.",
		}, []string{"result"}),
		CoordsJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reanalysis_etl",
			Name:      "coords_joined_total",
			Help:      "Distinct rounded coordinates joined against polygons.",
		}),
		UnmappedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reanalysis_etl",
			Name:      "unmapped_dropped_total",
			Help:      "Rows dropped because no administrative unit matched.",
		}),
		MappingFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reanalysis_etl",
			Name:      "mapping_fallbacks_total",
			Help:      "Archives that fell back to grid-level persistence.",
		}),
		ArchiveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reanalysis_etl",
			Name:      "archive_duration_seconds",
			Help:      "Duration of a complete single-archive processing task.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		TempDirsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reanalysis_etl",
			Name:      "temp_dirs_recorded_total",
			Help:      "Temp directories appended to the deferred-cleanup manifest.",
		}),
	}
}
