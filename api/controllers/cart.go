package controllers

import (
	"net/http"

	"github.com/angelmondragon/holopos/api/responses"
	"github.com/angelmondragon/holopos/api/validators"
	"github.com/angelmondragon/holopos/internal/cart"
	pkgerrors "github.com/angelmondragon/holopos/pkg/errors"
	"github.com/angelmondragon/holopos/pkg/logger"
	"github.com/shopspring/decimal"
)

type quoteRequest struct {
	Items []lineRequest `json:"items" validate:"required,min=1,dive"`
}

type quoteResponse struct {
	Lines       []lineResponse    `json:"lines"`
	Total       decimal.Decimal   `json:"total"`
	Adjustments []cart.Adjustment `json:"adjustments,omitempty"`
}

// CartQuote prices a prospective cart without recording anything.
func CartQuote(products productLookup, pricer cart.Pricer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if products == nil || pricer == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing unavailable"))
			return
		}

		var payload quoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		c, adjustments, err := buildCart(products, payload.Items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines, total := quoteLines(c, pricer)
		responses.WriteSuccessWithWarnings(w, quoteResponse{
			Lines:       lines,
			Total:       total,
			Adjustments: adjustments,
		}, adjustmentWarnings(adjustments))
	}
}
