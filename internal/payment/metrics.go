// Package payment provides metrics for payment orchestration.
package payment

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricPaymentAttemptsTotal    = "payment_attempts_total"
	MetricPaymentConfirmDuration  = "payment_confirm_duration_seconds"
	MetricRedirectCapturesTotal   = "redirect_captures_total"
	MetricSubmissionFailuresTotal = "post_payment_submission_failures_total"
)

// Capture result labels.
const (
	CaptureResultCompleted      = "completed"
	CaptureResultFailed         = "failed"
	CaptureResultAlreadyHandled = "already_handled"
	CaptureResultCancelled      = "cancelled"
)

// Metrics contains Prometheus metrics for payment orchestration.
// All operations are thread-safe.
type Metrics struct {
	attemptsTotal      *prometheus.CounterVec
	confirmDuration    *prometheus.HistogramVec
	capturesTotal      *prometheus.CounterVec
	submissionFailures prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPaymentAttemptsTotal,
				Help: "Total number of payment attempts by rail and terminal state",
			},
			[]string{"rail", "state"},
		),
		confirmDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricPaymentConfirmDuration,
				Help:    "Histogram of in-process confirmation duration in seconds by rail",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"rail"},
		),
		capturesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRedirectCapturesTotal,
				Help: "Total number of redirect order capture attempts by result",
			},
			[]string{"result"},
		),
		submissionFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricSubmissionFailuresTotal,
				Help: "Total number of submissions that failed after a successful payment",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.attemptsTotal,
		m.confirmDuration,
		m.capturesTotal,
		m.submissionFailures,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncAttempt increments the attempt counter for a rail/terminal-state pair.
func (m *Metrics) IncAttempt(rail string, state State) {
	m.attemptsTotal.WithLabelValues(rail, string(state)).Inc()
}

// ObserveConfirmDuration records an in-process confirmation duration sample.
func (m *Metrics) ObserveConfirmDuration(rail string, seconds float64) {
	m.confirmDuration.WithLabelValues(rail).Observe(seconds)
}

// IncCapture increments the capture counter for a result.
func (m *Metrics) IncCapture(result string) {
	m.capturesTotal.WithLabelValues(result).Inc()
}

// IncSubmissionFailure increments the post-payment submission failure
// counter.
func (m *Metrics) IncSubmissionFailure() {
	m.submissionFailures.Inc()
}
