package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/holopos/api/responses"
	"github.com/angelmondragon/holopos/internal/catalog"
	pkgerrors "github.com/angelmondragon/holopos/pkg/errors"
	"github.com/angelmondragon/holopos/pkg/logger"
)

type catalogRefresher interface {
	Refresh(ctx context.Context) (int, error)
	RefreshedAt() time.Time
}

type catalogLister interface {
	All() []catalog.Product
}

type barcodeFinder interface {
	FindByBarcode(barcode string) (catalog.Product, bool)
}

type productResponse struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	Barcode       string           `json:"barcode,omitempty"`
	UnitPrice     decimal.Decimal  `json:"unit_price"`
	Stock         int              `json:"stock"`
	IsBulkProduct bool             `json:"is_bulk_product"`
	BulkQuantity  int              `json:"bulk_quantity,omitempty"`
	BulkPrice     *decimal.Decimal `json:"bulk_price,omitempty"`
	UnitOfMeasure string           `json:"unit_of_measure,omitempty"`
	Discounts     int              `json:"active_discounts"`
}

type productListResponse struct {
	Count    int               `json:"count"`
	Products []productResponse `json:"products"`
}

func newProductResponse(p catalog.Product) productResponse {
	resp := productResponse{
		ID:        p.ID,
		Name:      p.Name,
		Barcode:   p.Barcode,
		UnitPrice: p.UnitPrice,
		Stock:     p.Stock,
	}
	if p.PackPricing() {
		price := p.Bulk.Price
		resp.IsBulkProduct = true
		resp.BulkQuantity = p.Bulk.Quantity
		resp.BulkPrice = &price
		resp.UnitOfMeasure = p.Bulk.UnitOfMeasure
	}
	for _, d := range p.Discounts {
		if d.Active {
			resp.Discounts++
		}
	}
	return resp
}

// CatalogProducts lists the cached catalog in backend order, for the product picker.
func CatalogProducts(cache catalogLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cache == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		products := cache.All()
		out := make([]productResponse, 0, len(products))
		for _, p := range products {
			out = append(out, newProductResponse(p))
		}
		responses.WriteSuccess(w, productListResponse{Count: len(out), Products: out})
	}
}

// CatalogBarcode resolves a scanned barcode against the cached catalog.
func CatalogBarcode(cache barcodeFinder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cache == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		code := strings.TrimSpace(chi.URLParam(r, "code"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "barcode is required"))
			return
		}
		product, ok := cache.FindByBarcode(code)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"barcode": code}))
			return
		}
		responses.WriteSuccess(w, newProductResponse(product))
	}
}

type refreshResponse struct {
	Products    int       `json:"products"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// CatalogRefresh pulls the product listing from the backend. On failure the
// till keeps pricing against the catalog it already has.
func CatalogRefresh(cache catalogRefresher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cache == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		n, err := cache.Refresh(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, refreshResponse{Products: n, RefreshedAt: cache.RefreshedAt()})
	}
}
