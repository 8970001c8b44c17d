package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records offline queue drains.
type SyncMetrics struct {
	duration  *prometheus.HistogramVec
	synced    prometheus.Counter
	failed    *prometheus.CounterVec
	coalesced prometheus.Counter
	pending   prometheus.Gauge
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "offline_drain_duration_seconds",
		Help:    "Duration of offline queue drains in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	synced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offline_sales_synced_total",
		Help: "Offline sales accepted by the backend and removed from the queue.",
	})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_sales_failed_total",
		Help: "Offline sale submissions that failed and stayed queued.",
	}, []string{"reason"})
	coalesced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offline_drain_coalesced_total",
		Help: "Drain triggers that arrived while a drain was already running.",
	})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "offline_sales_pending",
		Help: "Sales currently waiting in the offline queue.",
	})
	reg.MustRegister(duration, synced, failed, coalesced, pending)
	return &SyncMetrics{
		duration:  duration,
		synced:    synced,
		failed:    failed,
		coalesced: coalesced,
		pending:   pending,
	}
}

// ObserveDrain records how long a drain took and how it ended.
func (m *SyncMetrics) ObserveDrain(outcome string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(outcome)).Observe(d.Seconds())
}

func (m *SyncMetrics) AddSynced(n int) {
	if m == nil || m.synced == nil || n <= 0 {
		return
	}
	m.synced.Add(float64(n))
}

func (m *SyncMetrics) IncFailed(reason string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *SyncMetrics) IncCoalesced() {
	if m == nil || m.coalesced == nil {
		return
	}
	m.coalesced.Inc()
}

// SetPending publishes the current queue depth.
func (m *SyncMetrics) SetPending(n int) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(n))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
