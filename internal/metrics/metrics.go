// Package metrics holds the Prometheus collectors for bookings, the ledger,
// background sweeps and provider webhooks. A nil *Metrics records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	BookingsCreatedTotal    prometheus.Counter
	BookingTransitionsTotal *prometheus.CounterVec
	LedgerPostingsTotal     *prometheus.CounterVec
	LedgerAmountCentsTotal  *prometheus.CounterVec
	LedgerRejectedTotal     *prometheus.CounterVec
	PaymentsTotal           *prometheus.CounterVec
	PromocodesAppliedTotal  *prometheus.CounterVec
	SweepProcessedTotal     *prometheus.CounterVec
	SweepErrorsTotal        *prometheus.CounterVec
	WebhookEventsTotal      *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
	WithdrawalsTotal        *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BookingsCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "bookings_created_total",
			Help: "Bookings created",
		}),
		BookingTransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "Booking status transitions",
		}, []string{"from", "to"}),
		LedgerPostingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_postings_total",
			Help: "Ledger entries written",
		}, []string{"purpose"}),
		LedgerAmountCentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_amount_cents_total",
			Help: "Absolute amount of ledger entries written, in cents",
		}, []string{"purpose"}),
		LedgerRejectedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_rejected_total",
			Help: "Ledger entries refused for insufficient balance",
		}, []string{"purpose"}),
		PaymentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_payments_total",
			Help: "Booking payments by funding source",
		}, []string{"source"}),
		PromocodesAppliedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "promocodes_applied_total",
			Help: "Promocode applications by type",
		}, []string{"type"}),
		SweepProcessedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_processed_total",
			Help: "Bookings handled by background sweeps",
		}, []string{"sweep"}),
		SweepErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_errors_total",
			Help: "Bookings a sweep failed to handle",
		}, []string{"sweep"}),
		WebhookEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Provider webhook events by type and outcome",
		}, []string{"type", "result"}),
		ProviderRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payment_provider_request_duration_seconds",
			Help:    "Payment provider API latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
		}, []string{"op", "ok"}),
		WithdrawalsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "withdrawals_total",
			Help: "Withdrawal state changes",
		}, []string{"status"}),
	}
}

func (m *Metrics) RecordBookingCreated() {
	if m == nil {
		return
	}
	m.BookingsCreatedTotal.Inc()
}

func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.BookingTransitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordPosting(purpose string, amountCents int64) {
	if m == nil {
		return
	}
	if amountCents < 0 {
		amountCents = -amountCents
	}
	m.LedgerPostingsTotal.WithLabelValues(purpose).Inc()
	m.LedgerAmountCentsTotal.WithLabelValues(purpose).Add(float64(amountCents))
}

func (m *Metrics) RecordRejectedPosting(purpose string) {
	if m == nil {
		return
	}
	m.LedgerRejectedTotal.WithLabelValues(purpose).Inc()
}

// RecordPayment counts a booking payment; source is "balance", "card" or "free".
func (m *Metrics) RecordPayment(source string) {
	if m == nil {
		return
	}
	m.PaymentsTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordPromocodeApplied(promocodeType string) {
	if m == nil {
		return
	}
	m.PromocodesAppliedTotal.WithLabelValues(promocodeType).Inc()
}

func (m *Metrics) RecordSweep(sweep string, processed, failed int) {
	if m == nil {
		return
	}
	m.SweepProcessedTotal.WithLabelValues(sweep).Add(float64(processed))
	m.SweepErrorsTotal.WithLabelValues(sweep).Add(float64(failed))
}

func (m *Metrics) RecordWebhook(eventType, result string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) ObserveProvider(op string, ok bool, seconds float64) {
	if m == nil {
		return
	}
	okStr := "false"
	if ok {
		okStr = "true"
	}
	m.ProviderRequestDuration.WithLabelValues(op, okStr).Observe(seconds)
}

func (m *Metrics) RecordWithdrawal(status string) {
	if m == nil {
		return
	}
	m.WithdrawalsTotal.WithLabelValues(status).Inc()
}
