package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Reconciliation metrics.
	SeriesBuilt    *prometheus.CounterVec // labels: method={station,model-fallback}
	SeriesNoData   prometheus.Counter
	QualityFlags   *prometheus.CounterVec // labels: flag
	SeriesLag      prometheus.Histogram
	RefreshRunning prometheus.Gauge
	RefreshErrors  prometheus.Counter
	PublishErrors  prometheus.Counter

	// Upstream metrics.
	UpstreamRequests *prometheus.CounterVec   // labels: source={meteostat,openmeteo}, outcome={success,error,empty}
	UpstreamDuration *prometheus.HistogramVec // labels: source
	StationCache     *prometheus.CounterVec   // labels: result={hit,miss,shared}
	StationEnabled   prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SeriesBuilt,
		m.SeriesNoData,
		m.QualityFlags,
		m.SeriesLag,
		m.RefreshRunning,
		m.RefreshErrors,
		m.PublishErrors,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.StationCache,
		m.StationEnabled,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SeriesBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recent_precip",
			Name:      "series_built_total",
			Help:      "Reconciled series built, by the source that produced them.",
		}, []string{"method"}),
		SeriesNoData: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recent_precip",
			Name:      "series_no_data_total",
			Help:      "Reconciliations where neither source yielded a usable series.",
		}),
		QualityFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recent_precip",
			Name:      "quality_flags_total",
			Help:      "Quality flags attached to built series.",
		}, []string{"flag"}),
		SeriesLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "recent_precip",
			Name:      "series_lag_minutes",
			Help:      "Minutes between the latest reported hour and build time.",
			Buckets:   []float64{15, 30, 60, 90, 120, 180, 240, 360, 720},
		}),
		RefreshRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "recent_precip",
			Name:      "refresh_running",
			Help:      "1 when the refresh loop is active, 0 when shut down.",
		}),
		RefreshErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recent_precip",
			Name:      "refresh_errors_total",
			Help:      "Location refreshes that failed.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recent_precip",
			Name:      "publish_errors_total",
			Help:      "Series snapshots that could not be published.",
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recent_precip",
			Name:      "upstream_requests_total",
			Help:      "Upstream API requests by source and outcome.",
		}, []string{"source", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "recent_precip",
			Name:      "upstream_duration_seconds",
			Help:      "Upstream API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		StationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recent_precip",
			Name:      "station_cache_total",
			Help:      "Station cache lookups by result.",
		}, []string{"result"}),
		StationEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "recent_precip",
			Name:      "station_enabled",
			Help:      "1 when the station source is configured, 0 otherwise.",
		}),
	}
}
