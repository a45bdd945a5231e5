package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records outcomes of checkout executions.
type CheckoutMetrics struct {
	duration  *prometheus.HistogramVec
	purchased *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout executions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	purchased := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_lines_purchased",
		Help: "Cart lines successfully purchased.",
	}, []string{"outcome"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_lines_failed",
		Help: "Cart lines that failed during checkout.",
	}, []string{"reason"})
	reg.MustRegister(duration, purchased, failed)
	return &CheckoutMetrics{
		duration:  duration,
		purchased: purchased,
		failed:    failed,
	}
}

// ObserveDuration records the duration for the given checkout outcome.
func (c *CheckoutMetrics) ObserveDuration(outcome string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// AddPurchased counts lines purchased under the given outcome.
func (c *CheckoutMetrics) AddPurchased(outcome string, n int) {
	if c == nil || c.purchased == nil || n <= 0 {
		return
	}
	c.purchased.WithLabelValues(normalizeLabel(outcome)).Add(float64(n))
}

// IncFailed counts a failed line by reason.
func (c *CheckoutMetrics) IncFailed(reason string) {
	if c == nil || c.failed == nil {
		return
	}
	c.failed.WithLabelValues(normalizeLabel(reason)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
