package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the analysis collectors on their own registry
type Metrics struct {
	registry *prometheus.Registry

	Analyses         *prometheus.CounterVec
	ProbeResults     *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	HealthScore      prometheus.Histogram
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dental_analyses_total",
			Help: "Total number of analyses by outcome (complete or fallback)",
		}, []string{"outcome"}),

		ProbeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dental_probe_results_total",
			Help: "Total number of model probes by outcome",
		}, []string{"outcome"}),

		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dental_analysis_duration_seconds",
			Help:    "Wall time of a full analysis",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),

		HealthScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dental_health_score",
			Help:    "Distribution of overall health scores",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}),
	}

	m.registry.MustRegister(
		m.Analyses,
		m.ProbeResults,
		m.AnalysisDuration,
		m.HealthScore,
		prometheus.NewGoCollector(),
	)
	return m
}

// ObserveProbe counts one probe outcome
func (m *Metrics) ObserveProbe(outcome string) {
	m.ProbeResults.WithLabelValues(outcome).Inc()
}

// ObserveAnalysis records a finished analysis
func (m *Metrics) ObserveAnalysis(outcome string, elapsed time.Duration, score int) {
	m.Analyses.WithLabelValues(outcome).Inc()
	m.AnalysisDuration.Observe(elapsed.Seconds())
	m.HealthScore.Observe(float64(score))
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
