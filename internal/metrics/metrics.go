// ABOUTME: Prometheus metrics for exchanges, subscribers, and analysis runs
// ABOUTME: Registered on a private registry so tests don't collide

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all gateway instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	ExchangesTotal    *prometheus.CounterVec
	ExchangeDuration  prometheus.Histogram
	SubscribersActive prometheus.Gauge
	SessionsActive    prometheus.Gauge
	AnalysisRuns      *prometheus.CounterVec
	PropositionsSaved prometheus.Counter
	DocumentsIngested prometheus.Counter
}

// New creates a metrics set on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ExchangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_exchanges_total",
			Help: "Completed message exchanges by mode and outcome.",
		}, []string{"mode", "outcome"}),
		ExchangeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_exchange_duration_seconds",
			Help:    "Wall time from user message to assistant reply.",
			Buckets: prometheus.DefBuckets,
		}),
		SubscribersActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_stream_subscribers_active",
			Help: "Currently attached SSE subscribers.",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_sessions_active",
			Help: "Live sessions in the registry.",
		}),
		AnalysisRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_analysis_runs_total",
			Help: "Background analysis runs by outcome.",
		}, []string{"outcome"}),
		PropositionsSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_propositions_saved_total",
			Help: "Extracted propositions persisted to the store.",
		}),
		DocumentsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_documents_ingested_total",
			Help: "Documents ingested from the data directory.",
		}),
	}
}

// Handler returns the HTTP handler exposing this metrics set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
