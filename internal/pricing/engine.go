package pricing

import (
	"github.com/angelmondragon/holopos/internal/catalog"
	"github.com/angelmondragon/holopos/pkg/clock"
	"github.com/angelmondragon/holopos/pkg/enums"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// AppliedDiscount is the discount chosen for a line and what it was worth.
type AppliedDiscount struct {
	DiscountID int64              `json:"discount_id"`
	Name       string             `json:"name"`
	Type       enums.DiscountType `json:"discount_type"`
	Value      decimal.Decimal    `json:"value"`
}

// LineQuote breaks a line price into its parts.
type LineQuote struct {
	Quantity int              `json:"quantity"`
	Base     decimal.Decimal  `json:"base"`
	Discount *AppliedDiscount `json:"discount,omitempty"`
	Final    decimal.Decimal  `json:"final"`
}

// Engine prices cart lines. It holds no state besides the clock used to
// evaluate discount windows.
type Engine struct {
	clock clock.Clock
}

func NewEngine(c clock.Clock) *Engine {
	if c == nil {
		c = clock.NewRealClock()
	}
	return &Engine{clock: c}
}

// ComputeLinePrice returns the price of quantity units of product, never negative.
func (e *Engine) ComputeLinePrice(product catalog.Product, quantity int) decimal.Decimal {
	return e.Quote(product, quantity).Final
}

// Quote prices a line and reports which discount, if any, was taken.
func (e *Engine) Quote(product catalog.Product, quantity int) LineQuote {
	if quantity <= 0 {
		return LineQuote{Quantity: quantity, Base: decimal.Zero, Final: decimal.Zero}
	}

	base := BasePrice(product, quantity)
	quote := LineQuote{Quantity: quantity, Base: base, Final: base}

	best := BestDiscount(ApplicableDiscounts(product.Discounts, e.clock, quantity), product.UnitPrice, quantity)
	if best == nil {
		return quote
	}
	quote.Discount = best
	quote.Final = clampZero(base.Sub(best.Value))
	return quote
}

// BasePrice splits quantity into full packs and loose units when the product
// sells in packs, otherwise charges the unit price throughout.
func BasePrice(product catalog.Product, quantity int) decimal.Decimal {
	if quantity <= 0 {
		return decimal.Zero
	}
	if !product.PackPricing() {
		return product.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	}
	packs := quantity / product.Bulk.Quantity
	remainder := quantity % product.Bulk.Quantity
	return product.Bulk.Price.Mul(decimal.NewFromInt(int64(packs))).
		Add(product.UnitPrice.Mul(decimal.NewFromInt(int64(remainder))))
}

// ApplicableDiscounts keeps the discounts that cover quantity right now,
// preserving input order.
func ApplicableDiscounts(discounts []catalog.BulkDiscount, c clock.Clock, quantity int) []catalog.BulkDiscount {
	now := c.Now()
	out := make([]catalog.BulkDiscount, 0, len(discounts))
	for _, d := range discounts {
		if d.IsApplicableAt(now, quantity) {
			out = append(out, d)
		}
	}
	return out
}

// DiscountValue is the deduction d grants on quantity units at unitPrice.
// Percentage applies to the undiscounted unit total, fixed is a flat amount
// and bundle gives discount_value free units per minimum_quantity reached.
func DiscountValue(d catalog.BulkDiscount, unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	qty := decimal.NewFromInt(int64(quantity))
	switch d.Type {
	case enums.DiscountTypePercentage:
		return unitPrice.Mul(qty).Mul(d.Value).Div(hundred)
	case enums.DiscountTypeFixed:
		return d.Value
	case enums.DiscountTypeBundle:
		if d.MinimumQuantity <= 0 {
			return decimal.Zero
		}
		bundles := decimal.NewFromInt(int64(quantity / d.MinimumQuantity))
		return bundles.Mul(d.Value).Mul(unitPrice)
	default:
		return decimal.Zero
	}
}

// BestDiscount picks the largest deduction. Only a strictly larger value
// replaces the current pick, so the earliest discount wins a tie.
func BestDiscount(candidates []catalog.BulkDiscount, unitPrice decimal.Decimal, quantity int) *AppliedDiscount {
	var best *AppliedDiscount
	for _, d := range candidates {
		value := DiscountValue(d, unitPrice, quantity)
		if best == nil || value.GreaterThan(best.Value) {
			best = &AppliedDiscount{
				DiscountID: d.ID,
				Name:       d.Name,
				Type:       d.Type,
				Value:      value,
			}
		}
	}
	return best
}

func clampZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
