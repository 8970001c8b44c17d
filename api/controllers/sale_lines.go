package controllers

import (
	"fmt"

	"github.com/angelmondragon/holopos/internal/cart"
	"github.com/angelmondragon/holopos/internal/catalog"
	"github.com/angelmondragon/holopos/internal/pricing"
	pkgerrors "github.com/angelmondragon/holopos/pkg/errors"
	"github.com/shopspring/decimal"
)

type productLookup interface {
	Get(id int64) (catalog.Product, bool)
}

type lineRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

type lineResponse struct {
	ProductID int64                    `json:"product_id"`
	Name      string                   `json:"name"`
	Quantity  int                      `json:"quantity"`
	Base      decimal.Decimal          `json:"base"`
	Discount  *pricing.AppliedDiscount `json:"discount,omitempty"`
	Final     decimal.Decimal          `json:"final"`
}

// buildCart resolves requested lines against the catalog. Quantities above
// stock are clamped the same way the cart does for the cashier; the
// adjustments are returned so callers can warn or refuse.
func buildCart(products productLookup, items []lineRequest) (*cart.Cart, []cart.Adjustment, error) {
	c := cart.New()
	var adjustments []cart.Adjustment
	for i, item := range items {
		product, ok := products.Get(item.ProductID)
		if !ok {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown product").
				WithDetails(map[string]any{"index": i, "product_id": item.ProductID})
		}
		adj := c.Add(product, item.Quantity)
		if adj.Clamped {
			adjustments = append(adjustments, adj)
		}
	}
	return c, adjustments, nil
}

func quoteLines(c *cart.Cart, pricer cart.Pricer) ([]lineResponse, decimal.Decimal) {
	lines := c.Lines()
	quotes := c.Quotes(pricer)
	out := make([]lineResponse, 0, len(lines))
	total := decimal.Zero
	for i, line := range lines {
		q := quotes[i]
		out = append(out, lineResponse{
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			Quantity:  line.Quantity,
			Base:      q.Base,
			Discount:  q.Discount,
			Final:     q.Final,
		})
		total = total.Add(q.Final)
	}
	return out, total
}

func adjustmentWarnings(adjustments []cart.Adjustment) []string {
	warnings := make([]string, 0, len(adjustments))
	for _, adj := range adjustments {
		if adj.Applied == 0 {
			warnings = append(warnings, fmt.Sprintf("product %d is out of stock", adj.ProductID))
			continue
		}
		warnings = append(warnings, fmt.Sprintf("product %d quantity adjusted from %d to %d", adj.ProductID, adj.Requested, adj.Applied))
	}
	return warnings
}
