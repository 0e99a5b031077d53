package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by pipeline runs. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	stageRows     *prometheus.GaugeVec
	runs          *prometheus.CounterVec
	flagged       prometheus.Gauge
	dropped       prometheus.Gauge
	canonical     prometheus.Gauge
	cache         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "costdb",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"stage"}),
		stageRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "costdb",
			Name:      "stage_rows",
			Help:      "Rows produced by each stage in the latest run.",
		}, []string{"stage"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "costdb",
			Name:      "runs_total",
			Help:      "Finished pipeline runs by status.",
		}, []string{"status"}),
		flagged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "costdb",
			Name:      "anomalies_flagged",
			Help:      "Purchase orders flagged as price anomalies in the latest run.",
		}),
		dropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "costdb",
			Name:      "rows_dropped",
			Help:      "Raw rows dropped as invalid in the latest run.",
		}),
		canonical: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "costdb",
			Name:      "canonical_items",
			Help:      "Distinct canonical items in the latest run.",
		}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "costdb",
			Name:      "embedding_cache_requests_total",
			Help:      "Embedding cache lookups by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.stageDuration, m.stageRows, m.runs, m.flagged, m.dropped, m.canonical, m.cache)
	}
	return m
}

// ObserveStage records one stage's duration and output row count.
func (m *Metrics) ObserveStage(stage string, d time.Duration, rows int) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	m.stageRows.WithLabelValues(stage).Set(float64(rows))
}

// RunFinished counts a run and, when it completed, publishes its headline numbers.
func (m *Metrics) RunFinished(status string, flagged, dropped, canonical int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	if status != "complete" {
		return
	}
	m.flagged.Set(float64(flagged))
	m.dropped.Set(float64(dropped))
	m.canonical.Set(float64(canonical))
}

// CacheLookup counts embedding cache hits and misses.
func (m *Metrics) CacheLookup(hits, misses int) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues("hit").Add(float64(hits))
	m.cache.WithLabelValues("miss").Add(float64(misses))
}
