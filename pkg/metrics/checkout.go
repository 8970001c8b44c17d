package metrics

import "github.com/prometheus/client_golang/prometheus"

// CheckoutMetrics counts finished checkouts by outcome.
type CheckoutMetrics struct {
	sales *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	sales := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sales_total",
		Help: "Checkouts by final status (completed, completed_offline, rejected, invalid, failed).",
	}, []string{"status"})
	reg.MustRegister(sales)
	return &CheckoutMetrics{sales: sales}
}

func (m *CheckoutMetrics) IncSale(status string) {
	if m == nil || m.sales == nil {
		return
	}
	m.sales.WithLabelValues(normalizeLabel(status)).Inc()
}
