package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSyncMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)
	m.ObserveDrain("completed", 250*time.Millisecond)
	m.AddSynced(3)
	m.AddSynced(0)
	m.IncFailed("business_rejection")
	m.IncFailed("")
	m.IncCoalesced()
	m.SetPending(4)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got := singleValue(t, mfs, "offline_sales_synced_total"); got != 3 {
		t.Fatalf("expected synced=3, got %f", got)
	}
	if got := singleValue(t, mfs, "offline_drain_coalesced_total"); got != 1 {
		t.Fatalf("expected coalesced=1, got %f", got)
	}
	if got := singleValue(t, mfs, "offline_sales_pending"); got != 4 {
		t.Fatalf("expected pending=4, got %f", got)
	}
	if got, err := labelledCounter(mfs, "offline_sales_failed_total", "reason", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected unknown failure=1, got %f err=%v", got, err)
	}
	if got, err := histogramSum(mfs, "offline_drain_duration_seconds", "outcome", "completed"); err != nil || got <= 0 {
		t.Fatalf("expected drain duration sum > 0, got %f err=%v", got, err)
	}
}

func TestCheckoutMetricsCountsByStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)
	m.IncSale("completed_offline")
	m.IncSale("completed_offline")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := labelledCounter(mfs, "checkout_sales_total", "status", "completed_offline"); err != nil || got != 2 {
		t.Fatalf("expected 2 offline sales, got %f err=%v", got, err)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var s *SyncMetrics
	s.ObserveDrain("x", time.Second)
	s.AddSynced(1)
	s.IncFailed("x")
	s.IncCoalesced()
	s.SetPending(1)
	NewSyncMetrics(nil).AddSynced(1)

	var c *CheckoutMetrics
	c.IncSale("completed")
	NewCheckoutMetrics(nil).IncSale("completed")
}

func singleValue(t *testing.T, mfs []*dto.MetricFamily, name string) float64 {
	t.Helper()
	mf := findMetricFamily(mfs, name)
	if mf == nil || len(mf.GetMetric()) == 0 {
		t.Fatalf("metric %q not found", name)
	}
	metric := mf.GetMetric()[0]
	if metric.GetGauge() != nil {
		return metric.GetGauge().GetValue()
	}
	return metric.GetCounter().GetValue()
}

func labelledCounter(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
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

func histogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
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
