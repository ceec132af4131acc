package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus-backed recorder SPEC_FULL's Observability
// section asks for: queued job depth, dialog-advance latency, and
// broadcast-drop counts, plus step failure counts. It satisfies
// internal/engine.Metrics and broadcast.Hub.OnDrop's callback, grounded on
// the teacher's internal/observability/metrics.go
// (promauto.NewCounterVec/HistogramVec), scoped down to this module's four
// domain concerns.
type Metrics struct {
	StepDuration  *prometheus.HistogramVec
	StepFailures  *prometheus.CounterVec
	QueuedJobs    prometheus.Gauge
	BroadcastDrops *prometheus.CounterVec
}

// NewMetrics registers and returns the counters/histograms this module
// reports to the default Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		StepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dialogd_step_duration_seconds",
				Help:    "Duration of a single workflow step's handler execution, by step type",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"step_type"},
		),
		StepFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dialogd_step_failures_total",
				Help: "Total step handler failures, by step type",
			},
			[]string{"step_type"},
		),
		QueuedJobs: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dialogd_queued_jobs",
				Help: "Current number of queued (not yet leased) jobs",
			},
		),
		BroadcastDrops: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dialogd_broadcast_drops_total",
				Help: "Total broadcast clients dropped for falling behind, by event",
			},
			[]string{"event"},
		),
	}
}

// ObserveStepDuration implements internal/engine.Metrics.
func (m *Metrics) ObserveStepDuration(stepType string, d time.Duration) {
	m.StepDuration.WithLabelValues(stepType).Observe(d.Seconds())
}

// IncStepFailure implements internal/engine.Metrics.
func (m *Metrics) IncStepFailure(stepType string) {
	m.StepFailures.WithLabelValues(stepType).Inc()
}

// SetQueuedJobs records the current queue depth. jobs.Worker does not call
// it; the gauge changes only when a caller sets it.
func (m *Metrics) SetQueuedJobs(n int) {
	m.QueuedJobs.Set(float64(n))
}

// RecordBroadcastDrop implements the callback shape broadcast.Hub.OnDrop
// expects.
func (m *Metrics) RecordBroadcastDrop(clientID, event string) {
	m.BroadcastDrops.WithLabelValues(event).Inc()
}
