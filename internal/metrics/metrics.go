// Package metrics exposes Prometheus collectors for the estimation pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/resaleoracle/internal/models"
)

const namespace = "resaleoracle"

// Metrics holds the pipeline collectors on a private registry so tests and
// multiple servers in one process never collide on the default registerer.
type Metrics struct {
	registry *prometheus.Registry

	estimates     *prometheus.CounterVec
	fallbacks     prometheus.Counter
	persistErrors prometheus.Counter
	duration      prometheus.Histogram
	suggested     prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		estimates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimates_total",
			Help:      "Completed estimates by origin of the comparable listings.",
		}, []string{"origin"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_recommendations_total",
			Help:      "Estimates answered with the generic fallback recommendation.",
		}),
		persistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Estimates that could not be written to storage.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "estimate_duration_seconds",
			Help:      "Wall time of one estimate including listing acquisition.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		suggested: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "suggested_price_euros",
			Help:      "Distribution of suggested prices.",
			Buckets:   []float64{5, 10, 15, 20, 30, 50, 75, 100, 200},
		}),
	}
	m.registry.MustRegister(
		m.estimates,
		m.fallbacks,
		m.persistErrors,
		m.duration,
		m.suggested,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveEstimate records a finished estimate. Nil receivers are no-ops.
func (m *Metrics) ObserveEstimate(e *models.Estimate, elapsed time.Duration) {
	if m == nil || e == nil {
		return
	}
	m.estimates.WithLabelValues(string(e.Origin)).Inc()
	if e.Recommendation.UsedFallback {
		m.fallbacks.Inc()
	}
	m.duration.Observe(elapsed.Seconds())
	m.suggested.Observe(e.Recommendation.SuggestedPrice)
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistErrors.Inc()
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
