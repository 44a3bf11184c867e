package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FulfillmentMetrics tracks the payment pipeline and the flows that hang off it.
type FulfillmentMetrics struct {
	payments     *prometheus.CounterVec
	duration     prometheus.Histogram
	shortages    prometheus.Counter
	claimFailure prometheus.Counter
	refunds      prometheus.Counter
}

// NewFulfillmentMetrics registers the pipeline metrics. A nil registerer yields
// a no-op instance.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	m := &FulfillmentMetrics{
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fulfillment_payments_total",
			Help: "Paid events processed, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fulfillment_duration_seconds",
			Help:    "Time spent in the fulfillment transaction.",
			Buckets: prometheus.DefBuckets,
		}),
		shortages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fulfillment_stock_shortages_total",
			Help: "Paid events that could not reserve stock.",
		}),
		claimFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fulfillment_claim_failures_total",
			Help: "Rejected guest order claims.",
		}),
		refunds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fulfillment_refunds_total",
			Help: "Warranties refunded.",
		}),
	}
	reg.MustRegister(m.payments, m.duration, m.shortages, m.claimFailure, m.refunds)
	return m
}

// ObservePayment records one pipeline run. outcome is success, replay or failed.
func (m *FulfillmentMetrics) ObservePayment(outcome string, duration time.Duration) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.duration.Observe(duration.Seconds())
}

func (m *FulfillmentMetrics) IncShortage() {
	if m == nil || m.shortages == nil {
		return
	}
	m.shortages.Inc()
}

func (m *FulfillmentMetrics) IncClaimFailure() {
	if m == nil || m.claimFailure == nil {
		return
	}
	m.claimFailure.Inc()
}

func (m *FulfillmentMetrics) IncRefund() {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.Inc()
}
