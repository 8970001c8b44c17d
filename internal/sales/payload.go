// Package sales holds the sale submission document shared by checkout, the
// offline queue and the backend client.
package sales

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/holopos/pkg/errors"
	"github.com/shopspring/decimal"
)

// Item is one sold line as the backend records it.
type Item struct {
	ProductID   int64           `json:"product_id"`
	Quantity    int             `json:"quantity"`
	PriceAtSale decimal.Decimal `json:"price_at_sale"`
}

// Payload is the body of a sale submission. Amounts marshal as decimal strings.
type Payload struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	ChangeGiven decimal.Decimal `json:"change_given"`
	Items       []Item          `json:"items"`
	CustomerID  *int64          `json:"customer_id,omitempty"`
}

// Confirmation is what the backend returns for an accepted sale.
type Confirmation struct {
	ID int64 `json:"id"`
}

// Validate checks the invariants every stored or submitted payload must hold.
func (p Payload) Validate() error {
	if len(p.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "sale has no items")
	}
	for i, item := range p.Items {
		if item.ProductID <= 0 {
			return invalidItem(i, "product_id", "must be positive")
		}
		if item.Quantity < 1 {
			return invalidItem(i, "quantity", "must be at least 1")
		}
		if item.PriceAtSale.IsNegative() {
			return invalidItem(i, "price_at_sale", "must not be negative")
		}
	}
	if p.TotalAmount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "total_amount must not be negative")
	}
	if p.PaidAmount.LessThan(p.TotalAmount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "paid_amount is less than total_amount").
			WithDetails(map[string]any{"total_amount": p.TotalAmount.StringFixed(2), "paid_amount": p.PaidAmount.StringFixed(2)})
	}
	if !p.ChangeGiven.Equal(p.PaidAmount.Sub(p.TotalAmount)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "change_given does not match paid_amount - total_amount")
	}
	return nil
}

// ItemCount is the number of units across all lines.
func (p Payload) ItemCount() int {
	n := 0
	for _, item := range p.Items {
		n += item.Quantity
	}
	return n
}

func invalidItem(index int, field, reason string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid item %d", index)).
		WithDetails(map[string]any{"index": index, "field": field, "reason": reason})
}
