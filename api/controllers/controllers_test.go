package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/holopos/internal/cart"
	"github.com/angelmondragon/holopos/internal/catalog"
	checkoutsvc "github.com/angelmondragon/holopos/internal/checkout"
	"github.com/angelmondragon/holopos/internal/offline"
	"github.com/angelmondragon/holopos/internal/pricing"
	"github.com/angelmondragon/holopos/internal/reconcile"
	"github.com/angelmondragon/holopos/pkg/clock"
	"github.com/angelmondragon/holopos/pkg/enums"
	pkgerrors "github.com/angelmondragon/holopos/pkg/errors"
	"github.com/angelmondragon/holopos/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type productMap map[int64]catalog.Product

func (m productMap) Get(id int64) (catalog.Product, bool) {
	p, ok := m[id]
	return p, ok
}

func testProducts() productMap {
	return productMap{
		7: {
			ID:        7,
			Name:      "Rice",
			UnitPrice: decimal.NewFromInt(100),
			Stock:     40,
			Bulk:      &catalog.BulkConfig{Quantity: 6, Price: decimal.NewFromInt(500)},
		},
		9: {
			ID:        9,
			Name:      "Beans",
			UnitPrice: decimal.NewFromInt(100),
			Stock:     3,
		},
	}
}

type stubCheckout struct {
	cart     *cart.Cart
	paid     decimal.Decimal
	customer *catalog.Customer
	result   *checkoutsvc.SaleResult
	err      error
}

func (s *stubCheckout) Checkout(_ context.Context, c *cart.Cart, paid decimal.Decimal, customer *catalog.Customer) (*checkoutsvc.SaleResult, error) {
	s.cart, s.paid, s.customer = c, paid, customer
	return s.result, s.err
}

type stubCustomers struct {
	customer *catalog.Customer
	err      error
}

func (s stubCustomers) GetCustomer(context.Context, int64) (*catalog.Customer, error) {
	return s.customer, s.err
}

func serve(t *testing.T, h http.HandlerFunc, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Error.Code
}

func TestCartQuotePricesLinesAndWarnsOnClamp(t *testing.T) {
	h := CartQuote(testProducts(), pricing.NewEngine(clock.NewMockClock(fixedNow)), nil)
	resp := serve(t, h, http.MethodPost, `{"items":[{"product_id":7,"quantity":14},{"product_id":9,"quantity":5}]}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data     quoteResponse `json:"data"`
		Warnings []string      `json:"warnings"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Len(t, envelope.Data.Lines, 2)
	if !envelope.Data.Lines[0].Final.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("unexpected rice price %s", envelope.Data.Lines[0].Final)
	}
	if envelope.Data.Lines[1].Quantity != 3 {
		t.Fatalf("expected beans clamped to 3, got %d", envelope.Data.Lines[1].Quantity)
	}
	if !envelope.Data.Total.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("unexpected total %s", envelope.Data.Total)
	}
	require.Len(t, envelope.Warnings, 1)
	require.Contains(t, envelope.Warnings[0], "from 5 to 3")
}

func TestCartQuoteRejectsBadInput(t *testing.T) {
	h := CartQuote(testProducts(), pricing.NewEngine(clock.NewMockClock(fixedNow)), nil)
	cases := map[string]string{
		"empty items":     `{"items":[]}`,
		"zero quantity":   `{"items":[{"product_id":7,"quantity":0}]}`,
		"unknown product": `{"items":[{"product_id":404,"quantity":1}]}`,
		"unknown field":   `{"items":[{"product_id":7,"quantity":1}],"discount":5}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := serve(t, h, http.MethodPost, body)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", resp.Code)
			}
			if code := errorCode(t, resp); code != string(pkgerrors.CodeValidation) {
				t.Fatalf("unexpected code %s", code)
			}
		})
	}
}

func TestCheckoutCreatesSale(t *testing.T) {
	saleID := int64(91)
	svc := &stubCheckout{result: &checkoutsvc.SaleResult{Status: enums.SaleStatusCompleted, SaleID: &saleID}}
	customers := stubCustomers{customer: &catalog.Customer{ID: 5, LoyaltyPoints: 12}}
	h := Checkout(svc, testProducts(), customers, nil)

	resp := serve(t, h, http.MethodPost, `{"items":[{"product_id":7,"quantity":2}],"paid_amount":"250.00","customer_id":5}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.cart == nil || svc.cart.Len() != 1 {
		t.Fatalf("expected one cart line to reach the service")
	}
	if !svc.paid.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("unexpected paid amount %s", svc.paid)
	}
	if svc.customer == nil || svc.customer.LoyaltyPoints != 12 {
		t.Fatalf("expected loaded customer, got %+v", svc.customer)
	}

	var envelope struct {
		Data checkoutsvc.SaleResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	if envelope.Data.SaleID == nil || *envelope.Data.SaleID != 91 {
		t.Fatalf("unexpected sale id %v", envelope.Data.SaleID)
	}
}

func TestCheckoutOfflineSaleIsAccepted(t *testing.T) {
	svc := &stubCheckout{result: &checkoutsvc.SaleResult{Status: enums.SaleStatusCompletedOffline, LocalID: "offline_1_ab"}}
	h := Checkout(svc, testProducts(), nil, nil)

	resp := serve(t, h, http.MethodPost, `{"items":[{"product_id":7,"quantity":1}],"paid_amount":100}`)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", resp.Code)
	}
}

func TestCheckoutRefusesClampedLines(t *testing.T) {
	svc := &stubCheckout{}
	h := Checkout(svc, testProducts(), nil, nil)

	resp := serve(t, h, http.MethodPost, `{"items":[{"product_id":9,"quantity":4}],"paid_amount":1000}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.cart != nil {
		t.Fatal("service must not be called for clamped lines")
	}
}

func TestCheckoutFallsBackWhenCustomerLookupIsOffline(t *testing.T) {
	svc := &stubCheckout{result: &checkoutsvc.SaleResult{Status: enums.SaleStatusCompletedOffline}}
	customers := stubCustomers{err: pkgerrors.New(pkgerrors.CodeNetwork, "backend unreachable")}
	h := Checkout(svc, testProducts(), customers, nil)

	resp := serve(t, h, http.MethodPost, `{"items":[{"product_id":7,"quantity":1}],"paid_amount":100,"customer_id":5}`)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", resp.Code)
	}
	if svc.customer == nil || svc.customer.ID != 5 {
		t.Fatalf("expected id-only customer, got %+v", svc.customer)
	}
}

func TestCheckoutSurfacesCustomerNotFound(t *testing.T) {
	svc := &stubCheckout{}
	customers := stubCustomers{err: pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")}
	h := Checkout(svc, testProducts(), customers, nil)

	resp := serve(t, h, http.MethodPost, `{"items":[{"product_id":7,"quantity":1}],"paid_amount":100,"customer_id":5}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestCheckoutMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", pkgerrors.New(pkgerrors.CodeValidation, "insufficient payment"), http.StatusBadRequest},
		{"business rejection", pkgerrors.New(pkgerrors.CodeBusinessRejection, "product inactive"), http.StatusUnprocessableEntity},
		{"storage", pkgerrors.New(pkgerrors.CodeStorageCorruption, "snapshot unreadable"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := Checkout(&stubCheckout{err: tc.err}, testProducts(), nil, nil)
			resp := serve(t, h, http.MethodPost, `{"items":[{"product_id":7,"quantity":1}],"paid_amount":100}`)
			if resp.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, resp.Code)
			}
		})
	}
}

type stubQueue struct {
	sales []offline.PendingSale
	err   error
}

func (s stubQueue) List(context.Context) ([]offline.PendingSale, error) {
	return s.sales, s.err
}

type stubReconciler struct {
	result reconcile.Result
	err    error
}

func (s stubReconciler) Reconcile(context.Context) (reconcile.Result, error) {
	return s.result, s.err
}

func TestOfflineSalesListsQueue(t *testing.T) {
	h := OfflineSales(stubQueue{sales: []offline.PendingSale{{LocalID: "offline_1_aa"}, {LocalID: "offline_2_bb"}}}, nil)
	resp := serve(t, h, http.MethodGet, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data pendingResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	if envelope.Data.Count != 2 || envelope.Data.Sales[1].LocalID != "offline_2_bb" {
		t.Fatalf("unexpected listing %+v", envelope.Data)
	}
}

func TestOfflineSalesEmptyQueueEncodesArray(t *testing.T) {
	resp := serve(t, OfflineSales(stubQueue{}, nil), http.MethodGet, "")
	require.Contains(t, resp.Body.String(), `"sales":[]`)
}

func TestOfflineSyncReportsFailures(t *testing.T) {
	result := reconcile.Result{
		Synced:    1,
		Failed:    1,
		Remaining: 1,
		Failures: []reconcile.Failure{{
			LocalID: "offline_2_bb",
			Code:    pkgerrors.CodeBusinessRejection,
			Err:     errors.New("product inactive"),
		}},
	}
	resp := serve(t, OfflineSync(stubReconciler{result: result}, nil, logger.Nop()), http.MethodPost, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data syncResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, 1, envelope.Data.Synced)
	require.Len(t, envelope.Data.Failures, 1)
	require.Equal(t, "BUSINESS_REJECTION", envelope.Data.Failures[0].Code)
	require.Equal(t, "product inactive", envelope.Data.Failures[0].Error)
}

func TestOfflineSyncStorageError(t *testing.T) {
	err := pkgerrors.New(pkgerrors.CodeStorageCorruption, "snapshot unreadable")
	resp := serve(t, OfflineSync(stubReconciler{err: err}, nil, nil), http.MethodPost, "")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}

type stubScheduler struct {
	calls int
}

func (s *stubScheduler) Trigger() { s.calls++ }

func TestOfflineSyncHandsOffToRunner(t *testing.T) {
	scheduler := &stubScheduler{}
	reconciler := stubReconciler{err: errors.New("must not drain inline")}
	h := OfflineSync(reconciler, scheduler, nil)

	req := httptest.NewRequest(http.MethodPost, "/?wait=false", nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	require.Equal(t, http.StatusAccepted, resp.Code)
	require.Contains(t, resp.Body.String(), `"queued":true`)
	require.Equal(t, 1, scheduler.calls)
}

func TestOfflineSyncWithoutRunner(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/?wait=false", nil)
	resp := httptest.NewRecorder()
	OfflineSync(stubReconciler{}, nil, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusInternalServerError, resp.Code)
}

type stubMonitor struct {
	online bool
}

func (m *stubMonitor) IsOnline() bool { return m.online }

func (m *stubMonitor) Set(online bool) bool {
	changed := m.online != online
	m.online = online
	return changed
}

func TestConnectivityGetAndSet(t *testing.T) {
	monitor := &stubMonitor{online: true}

	resp := serve(t, ConnectivityGet(monitor, nil), http.MethodGet, "")
	require.Contains(t, resp.Body.String(), `"online":true`)

	resp = serve(t, ConnectivitySet(monitor, nil), http.MethodPut, `{"online":false}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data connectivityResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	if envelope.Data.Online || !envelope.Data.Changed {
		t.Fatalf("unexpected response %+v", envelope.Data)
	}

	resp = serve(t, ConnectivitySet(monitor, nil), http.MethodPut, `{}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing flag, got %d", resp.Code)
	}
}

type stubRefresher struct {
	n   int
	err error
}

func (s stubRefresher) Refresh(context.Context) (int, error) { return s.n, s.err }

func (s stubRefresher) RefreshedAt() time.Time { return fixedNow }

func TestCatalogRefresh(t *testing.T) {
	resp := serve(t, CatalogRefresh(stubRefresher{n: 12}, nil), http.MethodPost, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	require.Contains(t, resp.Body.String(), `"products":12`)

	resp = serve(t, CatalogRefresh(stubRefresher{err: pkgerrors.New(pkgerrors.CodeNetwork, "offline")}, nil), http.MethodPost, "")
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

type stubCatalog []catalog.Product

func (s stubCatalog) All() []catalog.Product { return s }

func (s stubCatalog) FindByBarcode(barcode string) (catalog.Product, bool) {
	for _, p := range s {
		if p.Barcode == barcode {
			return p, true
		}
	}
	return catalog.Product{}, false
}

func testCatalog() stubCatalog {
	return stubCatalog{
		{ID: 7, Name: "Rice", Barcode: "5012345678900", UnitPrice: decimal.NewFromInt(100), Stock: 40,
			Bulk: &catalog.BulkConfig{Quantity: 6, Price: decimal.NewFromInt(500), UnitOfMeasure: "bag"}},
		{ID: 9, Name: "Beans", UnitPrice: decimal.NewFromInt(80), Stock: 3},
	}
}

func serveBarcode(t *testing.T, h http.HandlerFunc, code string) *httptest.ResponseRecorder {
	t.Helper()
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("code", code)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestCatalogProductsListsInOrder(t *testing.T) {
	resp := serve(t, CatalogProducts(testCatalog(), nil), http.MethodGet, "")
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope struct {
		Data productListResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, 2, envelope.Data.Count)
	rice := envelope.Data.Products[0]
	require.True(t, rice.IsBulkProduct)
	require.Equal(t, 6, rice.BulkQuantity)
	require.Equal(t, "500", rice.BulkPrice.String())
	beans := envelope.Data.Products[1]
	require.False(t, beans.IsBulkProduct)
	require.Nil(t, beans.BulkPrice)
}

func TestCatalogProductsEmptyEncodesArray(t *testing.T) {
	resp := serve(t, CatalogProducts(stubCatalog{}, nil), http.MethodGet, "")
	require.Contains(t, resp.Body.String(), `"products":[]`)
}

func TestCatalogBarcode(t *testing.T) {
	resp := serveBarcode(t, CatalogBarcode(testCatalog(), nil), " 5012345678900 ")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"name":"Rice"`)

	resp = serveBarcode(t, CatalogBarcode(testCatalog(), nil), "000")
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Equal(t, "NOT_FOUND", errorCode(t, resp))

	resp = serveBarcode(t, CatalogBarcode(testCatalog(), nil), "  ")
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
