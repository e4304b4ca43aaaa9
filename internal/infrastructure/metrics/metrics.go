package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/safeeats/backend/internal/domain"
)

// Metrics records scan outcomes on a dedicated registry
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal        *prometheus.CounterVec
	MatchesTotal      *prometheus.CounterVec
	DetectionDuration prometheus.Histogram
	DetectionFailures prometheus.Counter
	RateLimitedTotal  prometheus.Counter
}

// New registers the service metrics on reg
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ScansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safeeats_scans_total",
			Help: "Total number of scans by kind and resulting classification",
		}, []string{"kind", "classification"}),
		MatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safeeats_matches_total",
			Help: "Total number of allergen matches reported, by source",
		}, []string{"source"}),
		DetectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "safeeats_detection_duration_seconds",
			Help:    "Latency of calls to the ML detection service",
			Buckets: prometheus.DefBuckets,
		}),
		DetectionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "safeeats_detection_failures_total",
			Help: "Total number of failed detection calls that fell back to local matching",
		}),
		RateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "safeeats_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		}),
	}
}

// RecordScan counts a completed scan and its matches
func (m *Metrics) RecordScan(kind string, result *domain.ScanResult) {
	if result == nil {
		return
	}
	m.ScansTotal.WithLabelValues(kind, string(result.Classification)).Inc()
	for _, match := range result.Matches {
		m.MatchesTotal.WithLabelValues(string(match.Source)).Inc()
	}
}

// RecordDetection observes one detection call
func (m *Metrics) RecordDetection(duration time.Duration, err error) {
	m.DetectionDuration.Observe(duration.Seconds())
	if err != nil {
		m.DetectionFailures.Inc()
	}
}

func (m *Metrics) RecordRateLimited() {
	m.RateLimitedTotal.Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
