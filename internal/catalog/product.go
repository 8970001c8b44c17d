package catalog

import (
	"time"

	"github.com/angelmondragon/holopos/pkg/enums"
	"github.com/shopspring/decimal"
)

// Product is the read-only view of a catalog item the terminal prices against.
type Product struct {
	ID        int64
	Name      string
	Barcode   string
	UnitPrice decimal.Decimal
	Stock     int
	Bulk      *BulkConfig
	Discounts []BulkDiscount
}

// BulkConfig describes a pack sold at an aggregate price.
type BulkConfig struct {
	Quantity      int
	Price         decimal.Decimal
	UnitOfMeasure string
}

// PackPricing reports whether quantities should be split into packs and loose units.
func (p Product) PackPricing() bool {
	return p.Bulk != nil && p.Bulk.Quantity > 1
}

// BulkDiscount is a quantity-triggered discount attached to a product.
type BulkDiscount struct {
	ID              int64
	Name            string
	ProductID       int64
	Type            enums.DiscountType
	MinimumQuantity int
	Value           decimal.Decimal
	Active          bool
	StartDate       time.Time
	EndDate         *time.Time
}

// IsApplicableAt reports whether the discount covers quantity at instant now.
// The validity window is [StartDate, EndDate).
func (d BulkDiscount) IsApplicableAt(now time.Time, quantity int) bool {
	if !d.Active {
		return false
	}
	if quantity < d.MinimumQuantity {
		return false
	}
	if now.Before(d.StartDate) {
		return false
	}
	if d.EndDate != nil && !now.Before(*d.EndDate) {
		return false
	}
	return true
}

// Customer is the loyalty member optionally attached to a sale.
type Customer struct {
	ID            int64
	Name          string
	Phone         string
	LoyaltyPoints int
}
