package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCheckoutMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)
	m.IncCheckout(CheckoutCreated)
	m.IncCheckout(CheckoutReused)
	m.IncCheckout(CheckoutReused)
	m.IncSettlement(SettlementStockConflict)
	m.AddExpired(3)
	m.AddLowStock(0)
	m.ObserveSettlement(20 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := counterValue(mfs, "paymall_checkouts_total", "outcome", CheckoutReused); err != nil {
		t.Fatalf("fetch checkouts: %v", err)
	} else if got != 2 {
		t.Fatalf("expected reused=2, got %f", got)
	}
	if got, err := counterValue(mfs, "paymall_payment_settlements_total", "outcome", SettlementStockConflict); err != nil {
		t.Fatalf("fetch settlements: %v", err)
	} else if got != 1 {
		t.Fatalf("expected stock_conflict=1, got %f", got)
	}

	expired := findMetricFamily(mfs, "paymall_orders_expired_total")
	if expired == nil || expired.GetMetric()[0].GetCounter().GetValue() != 3 {
		t.Fatalf("expected expired counter of 3")
	}
	low := findMetricFamily(mfs, "paymall_inventory_low_stock_alerts_total")
	if low == nil || low.GetMetric()[0].GetCounter().GetValue() != 0 {
		t.Fatalf("non-positive adds must be ignored")
	}
	hist := findMetricFamily(mfs, "paymall_payment_settlement_duration_seconds")
	if hist == nil || hist.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected one settlement observation")
	}
}

func TestNilCheckoutMetricsIsNoop(t *testing.T) {
	var m *CheckoutMetrics
	m.IncCheckout(CheckoutCreated)
	m.IncSettlement("")
	m.AddExpired(1)
	m.ObserveSettlement(time.Second)

	unregistered := NewCheckoutMetrics(nil)
	unregistered.IncCheckout(CheckoutCreated)
}

func counterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
