package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "paymall"

// Checkout outcomes.
const (
	CheckoutCreated = "created"
	CheckoutReused  = "reused"
	CheckoutEmpty   = "empty_cart"
)

// Settlement outcomes.
const (
	SettlementPaid          = "paid"
	SettlementReplayed      = "replayed"
	SettlementRefinalized   = "refinalized"
	SettlementFailed        = "failed"
	SettlementStockConflict = "stock_conflict"
	SettlementExpired       = "expired"
)

// CheckoutMetrics counts order creation and payment settlement outcomes.
// A nil *CheckoutMetrics is a valid no-op recorder.
type CheckoutMetrics struct {
	checkouts   *prometheus.CounterVec
	settlements *prometheus.CounterVec
	expired     prometheus.Counter
	lowStock    prometheus.Counter
	settleTime  prometheus.Histogram
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkouts_total",
		Help:      "Checkout calls by outcome.",
	}, []string{"outcome"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_settlements_total",
		Help:      "Payment confirmations by outcome.",
	}, []string{"outcome"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_expired_total",
		Help:      "Orders lazily moved to EXPIRED.",
	})
	lowStock := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_low_stock_alerts_total",
		Help:      "Low stock alerts fired during settlement.",
	})
	settleTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "payment_settlement_duration_seconds",
		Help:      "Time spent in the settlement transaction.",
		Buckets:   prometheus.DefBuckets,
	})
	reg.MustRegister(checkouts, settlements, expired, lowStock, settleTime)
	return &CheckoutMetrics{
		checkouts:   checkouts,
		settlements: settlements,
		expired:     expired,
		lowStock:    lowStock,
		settleTime:  settleTime,
	}
}

func (m *CheckoutMetrics) IncCheckout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *CheckoutMetrics) IncSettlement(outcome string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *CheckoutMetrics) AddExpired(n int) {
	if m == nil || m.expired == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func (m *CheckoutMetrics) AddLowStock(n int) {
	if m == nil || m.lowStock == nil || n <= 0 {
		return
	}
	m.lowStock.Add(float64(n))
}

// ObserveSettlement records how long a confirmation held its locks.
func (m *CheckoutMetrics) ObserveSettlement(d time.Duration) {
	if m == nil || m.settleTime == nil {
		return
	}
	m.settleTime.Observe(d.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
