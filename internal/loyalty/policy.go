package loyalty

import (
	"fmt"

	"github.com/angelmondragon/holopos/internal/catalog"
	"github.com/shopspring/decimal"
)

// Delta is the loyalty movement a sale causes for one customer.
type Delta struct {
	CustomerID   int64 `json:"customer_id"`
	PointsBefore int   `json:"points_before"`
	PointsEarned int   `json:"points_earned"`
	PointsAfter  int   `json:"points_after"`
}

// Policy awards one point per AmountPerPoint spent, rounded down.
type Policy struct {
	AmountPerPoint decimal.Decimal
}

func NewPolicy(amountPerPoint string) (Policy, error) {
	amount, err := decimal.NewFromString(amountPerPoint)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid loyalty amount per point %q: %w", amountPerPoint, err)
	}
	if !amount.IsPositive() {
		return Policy{}, fmt.Errorf("loyalty amount per point must be positive, got %s", amount)
	}
	return Policy{AmountPerPoint: amount}, nil
}

func (p Policy) PointsFor(total decimal.Decimal) int {
	if !p.AmountPerPoint.IsPositive() || !total.IsPositive() {
		return 0
	}
	return int(total.Div(p.AmountPerPoint).Floor().IntPart())
}

// Delta computes the movement for customer, nil when no customer is attached.
func (p Policy) Delta(customer *catalog.Customer, total decimal.Decimal) *Delta {
	if customer == nil {
		return nil
	}
	earned := p.PointsFor(total)
	return &Delta{
		CustomerID:   customer.ID,
		PointsBefore: customer.LoyaltyPoints,
		PointsEarned: earned,
		PointsAfter:  customer.LoyaltyPoints + earned,
	}
}
