package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/holopos/api/responses"
	"github.com/angelmondragon/holopos/api/validators"
	"github.com/angelmondragon/holopos/internal/cart"
	"github.com/angelmondragon/holopos/internal/catalog"
	checkoutsvc "github.com/angelmondragon/holopos/internal/checkout"
	pkgerrors "github.com/angelmondragon/holopos/pkg/errors"
	"github.com/angelmondragon/holopos/pkg/logger"
	"github.com/shopspring/decimal"
)

type checkoutService interface {
	Checkout(ctx context.Context, c *cart.Cart, paid decimal.Decimal, customer *catalog.Customer) (*checkoutsvc.SaleResult, error)
}

type customerLookup interface {
	GetCustomer(ctx context.Context, id int64) (*catalog.Customer, error)
}

type checkoutRequest struct {
	Items      []lineRequest   `json:"items" validate:"required,min=1,dive"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	CustomerID *int64          `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
}

// Checkout rings up a sale built from the request lines. Unlike a quote, a
// line that would have to be clamped is refused so the cashier confirms the
// real quantity first.
func Checkout(svc checkoutService, products productLookup, customers customerLookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || products == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		c, adjustments, err := buildCart(products, payload.Items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(adjustments) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "requested quantity exceeds stock").
				WithDetails(map[string]any{"adjustments": adjustments}))
			return
		}

		customer, err := resolveCustomer(r.Context(), customers, payload.CustomerID, logg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Checkout(r.Context(), c, payload.PaidAmount, customer)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Status.IsOffline() {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// resolveCustomer loads the loyalty member. When the backend cannot be reached
// the sale still goes through with the id alone; the backend credits the
// points once the sale syncs.
func resolveCustomer(ctx context.Context, customers customerLookup, id *int64, logg *logger.Logger) (*catalog.Customer, error) {
	if id == nil {
		return nil, nil
	}
	if customers == nil {
		return &catalog.Customer{ID: *id}, nil
	}
	customer, err := customers.GetCustomer(ctx, *id)
	if err == nil {
		return customer, nil
	}
	if pkgerrors.IsCode(err, pkgerrors.CodeNetwork) {
		if logg != nil {
			logg.Warn(logg.WithField(ctx, "customer_id", *id), "customer lookup unavailable, continuing without loyalty balance")
		}
		return &catalog.Customer{ID: *id}, nil
	}
	return nil, err
}
