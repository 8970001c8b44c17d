package enums

// SaleStatus is the terminal outcome of a checkout.
type SaleStatus string

const (
	SaleStatusCompleted        SaleStatus = "completed"
	SaleStatusCompletedOffline SaleStatus = "completed_offline"
)

// IsOffline reports whether the sale is waiting in the offline queue.
func (s SaleStatus) IsOffline() bool {
	return s == SaleStatusCompletedOffline
}
