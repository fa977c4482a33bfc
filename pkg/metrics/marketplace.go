package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Marketplace records the money-moving and lifecycle events of the service.
// A nil *Marketplace is valid and records nothing.
type Marketplace struct {
	ledgerEntries   *prometheus.CounterVec
	ledgerAmount    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	disputeActions  *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
}

// NewMarketplace registers the marketplace metrics on the provided registerer.
func NewMarketplace(reg prometheus.Registerer) *Marketplace {
	if reg == nil {
		return &Marketplace{}
	}
	ledgerEntries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_entries_total",
		Help: "Ledger entries written, by type and balance field.",
	}, []string{"type", "field"})
	ledgerAmount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_amount_total",
		Help: "Sum of ledger entry magnitudes, by type.",
	}, []string{"type"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order status transitions, by target status.",
	}, []string{"status"})
	disputeActions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispute_actions_total",
		Help: "Dispute actions applied, by action.",
	}, []string{"action"})
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verifications_total",
		Help: "Payment verification attempts, by outcome.",
	}, []string{"outcome"})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_duration_seconds",
		Help:    "Latency of payment gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Notification deliveries, by sink and outcome.",
	}, []string{"sink", "outcome"})
	reg.MustRegister(ledgerEntries, ledgerAmount, transitions, disputeActions, verifications, gatewayDuration, notifications)
	return &Marketplace{
		ledgerEntries:   ledgerEntries,
		ledgerAmount:    ledgerAmount,
		transitions:     transitions,
		disputeActions:  disputeActions,
		verifications:   verifications,
		gatewayDuration: gatewayDuration,
		notifications:   notifications,
	}
}

// LedgerEntry counts one written entry and its magnitude.
func (m *Marketplace) LedgerEntry(entryType, field string, amount float64) {
	if m == nil || m.ledgerEntries == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(normalizeLabel(entryType), normalizeLabel(field)).Inc()
	m.ledgerAmount.WithLabelValues(normalizeLabel(entryType)).Add(amount)
}

// OrderTransition counts an order entering the given status.
func (m *Marketplace) OrderTransition(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// DisputeAction counts an applied dispute action.
func (m *Marketplace) DisputeAction(action string) {
	if m == nil || m.disputeActions == nil {
		return
	}
	m.disputeActions.WithLabelValues(normalizeLabel(action)).Inc()
}

// PaymentVerification counts a verification outcome (created, duplicate, rejected, failed).
func (m *Marketplace) PaymentVerification(outcome string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveGateway records the duration of a gateway call.
func (m *Marketplace) ObserveGateway(outcome string, duration time.Duration) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// NotificationDelivery counts a delivery attempt on a sink.
func (m *Marketplace) NotificationDelivery(sink string, ok bool) {
	if m == nil || m.notifications == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.notifications.WithLabelValues(normalizeLabel(sink), outcome).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
