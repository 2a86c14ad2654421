package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"

	"github.com/volgate/volgate/internal/bins"
)

// MetricsRegistry holds all Prometheus metrics for the admission engine. It
// carries its own registry so parallel test servers never collide on the
// default global one.
type MetricsRegistry struct {
	registry *prometheus.Registry

	// Evaluation pipeline metrics
	EvalDuration *prometheus.HistogramVec
	Evaluations  *prometheus.CounterVec
	EvalErrors   *prometheus.CounterVec

	// Capital ledger metrics
	BinExposure prometheus.Gauge
	BinEntries  prometheus.Gauge

	// Session metrics
	SessionResets prometheus.Counter
}

// NewMetricsRegistry creates a registry with all engine metrics registered.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		EvalDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "volgate_evaluation_duration_seconds",
				Help:    "Duration of candidate evaluations in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"outcome"},
		),

		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volgate_evaluations_total",
				Help: "Total candidate evaluations by outcome",
			},
			[]string{"outcome"},
		),

		EvalErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volgate_evaluation_errors_total",
				Help: "Total evaluation errors by kind",
			},
			[]string{"kind"},
		),

		BinExposure: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "volgate_bin_exposure_usd",
				Help: "Current committed capital in the sleeve, USD",
			},
		),

		BinEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "volgate_bin_entries",
				Help: "Number of open entries in the sleeve",
			},
		),

		SessionResets: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "volgate_session_resets_total",
				Help: "Total explicit session resets",
			},
		),
	}

	m.registry.MustRegister(
		m.EvalDuration,
		m.Evaluations,
		m.EvalErrors,
		m.BinExposure,
		m.BinEntries,
		m.SessionResets,
	)

	return m
}

// RecordEvaluation records one completed evaluation.
func (m *MetricsRegistry) RecordEvaluation(outcome string, duration time.Duration) {
	m.Evaluations.WithLabelValues(outcome).Inc()
	m.EvalDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordEvaluationError records a failed evaluation.
func (m *MetricsRegistry) RecordEvaluationError(kind string) {
	m.EvalErrors.WithLabelValues(kind).Inc()
}

// RecordSessionReset records an explicit session reset.
func (m *MetricsRegistry) RecordSessionReset() {
	m.SessionResets.Inc()
}

// SetBinExposure publishes the current ledger totals.
func (m *MetricsRegistry) SetBinExposure(snap bins.Snapshot) {
	m.BinExposure.Set(snap.TotalExposure)
	m.BinEntries.Set(float64(len(snap.Entries)))
}

// EvaluationCount reads back the counter for one outcome label. Used by
// status reporting where scraping the text exposition would be overkill.
func (m *MetricsRegistry) EvaluationCount(outcome string) float64 {
	counter, err := m.Evaluations.GetMetricWithLabelValues(outcome)
	if err != nil {
		return 0
	}
	var pb io_prometheus_client.Metric
	if err := counter.Write(&pb); err != nil {
		return 0
	}
	return pb.GetCounter().GetValue()
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
