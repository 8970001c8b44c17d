package pricing

import (
	"math/rand"
	"testing"
	"time"

	"github.com/angelmondragon/holopos/internal/catalog"
	"github.com/angelmondragon/holopos/pkg/clock"
	"github.com/angelmondragon/holopos/pkg/enums"
	"github.com/shopspring/decimal"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(clock.NewMockClock(now))
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func discount(id int64, kind enums.DiscountType, minQty int, value string) catalog.BulkDiscount {
	return catalog.BulkDiscount{
		ID:              id,
		Type:            kind,
		MinimumQuantity: minQty,
		Value:           dec(value),
		Active:          true,
		StartDate:       now.Add(-24 * time.Hour),
	}
}

func assertDecimal(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestBulkPackSplit(t *testing.T) {
	product := catalog.Product{
		UnitPrice: dec("100"),
		Bulk:      &catalog.BulkConfig{Quantity: 6, Price: dec("500"), UnitOfMeasure: "bag"},
	}
	assertDecimal(t, newTestEngine().ComputeLinePrice(product, 14), "1200")
}

func TestParsedProductsOnlyPackPriceWhenFlagged(t *testing.T) {
	products, err := catalog.ParseProducts([]byte(`[
	  {"id": 1, "name": "Beans", "price": "100.00", "stock": 20, "is_bulk_product": false, "bulk_quantity": 6, "bulk_price": "500.00"},
	  {"id": 2, "name": "Oil", "price": "100.00", "stock": 20, "is_bulk_product": true, "bulk_quantity": 6, "bulk_price": "0.00"},
	  {"id": 3, "name": "Flour", "price": "100.00", "stock": 20, "is_bulk_product": true, "bulk_quantity": 6, "bulk_price": "500.00"}
	]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	engine := newTestEngine()
	assertDecimal(t, engine.ComputeLinePrice(products[0], 14), "1400")
	assertDecimal(t, engine.ComputeLinePrice(products[1], 14), "1400")
	assertDecimal(t, engine.ComputeLinePrice(products[2], 14), "1200")
}

func TestBulkQuantityOfOneUsesUnitPrice(t *testing.T) {
	product := catalog.Product{
		UnitPrice: dec("100"),
		Bulk:      &catalog.BulkConfig{Quantity: 1, Price: dec("10")},
	}
	assertDecimal(t, newTestEngine().ComputeLinePrice(product, 3), "300")
}

func TestPercentageDiscount(t *testing.T) {
	product := catalog.Product{
		UnitPrice: dec("100"),
		Discounts: []catalog.BulkDiscount{discount(1, enums.DiscountTypePercentage, 5, "10")},
	}
	quote := newTestEngine().Quote(product, 10)
	assertDecimal(t, quote.Base, "1000")
	assertDecimal(t, quote.Final, "800")
	if quote.Discount == nil || quote.Discount.DiscountID != 1 {
		t.Fatalf("expected discount 1 to be applied, got %+v", quote.Discount)
	}
	assertDecimal(t, quote.Discount.Value, "100")
}

func TestBundleDiscount(t *testing.T) {
	product := catalog.Product{
		UnitPrice: dec("50"),
		Discounts: []catalog.BulkDiscount{discount(1, enums.DiscountTypeBundle, 3, "1")},
	}
	assertDecimal(t, newTestEngine().ComputeLinePrice(product, 9), "300")
}

func TestFixedDiscountIsFlat(t *testing.T) {
	product := catalog.Product{
		UnitPrice: dec("10"),
		Discounts: []catalog.BulkDiscount{discount(1, enums.DiscountTypeFixed, 2, "5")},
	}
	engine := newTestEngine()
	assertDecimal(t, engine.ComputeLinePrice(product, 2), "15")
	// twice the threshold still deducts the same flat amount
	assertDecimal(t, engine.ComputeLinePrice(product, 4), "35")
}

func TestPercentageUsesUnitPriceEvenForPacks(t *testing.T) {
	product := catalog.Product{
		UnitPrice: dec("100"),
		Bulk:      &catalog.BulkConfig{Quantity: 6, Price: dec("500")},
		Discounts: []catalog.BulkDiscount{discount(1, enums.DiscountTypePercentage, 6, "10")},
	}
	// base 1200 (2 packs + 2 units), deduction 10% of 14*100
	assertDecimal(t, newTestEngine().ComputeLinePrice(product, 14), "1060")
}

func TestClampToZero(t *testing.T) {
	engine := newTestEngine()
	cases := []catalog.BulkDiscount{
		discount(1, enums.DiscountTypeFixed, 1, "1000"),
		discount(2, enums.DiscountTypeBundle, 1, "5"),
		discount(3, enums.DiscountTypePercentage, 1, "100"),
	}
	for _, d := range cases {
		product := catalog.Product{UnitPrice: dec("20"), Discounts: []catalog.BulkDiscount{d}}
		got := engine.ComputeLinePrice(product, 3)
		if got.IsNegative() || !got.IsZero() {
			t.Fatalf("%s: expected exactly 0, got %s", d.Type, got)
		}
	}
}

func TestNonPositiveQuantityPricesToZero(t *testing.T) {
	product := catalog.Product{UnitPrice: dec("20")}
	engine := newTestEngine()
	for _, qty := range []int{0, -3} {
		assertDecimal(t, engine.ComputeLinePrice(product, qty), "0")
	}
}

func TestDiscountOutsideWindowOrBelowMinimumIsIgnored(t *testing.T) {
	expired := discount(1, enums.DiscountTypeFixed, 1, "5")
	end := now
	expired.EndDate = &end
	future := discount(2, enums.DiscountTypeFixed, 1, "5")
	future.StartDate = now.Add(time.Hour)
	inactive := discount(3, enums.DiscountTypeFixed, 1, "5")
	inactive.Active = false
	tooMany := discount(4, enums.DiscountTypeFixed, 10, "5")

	product := catalog.Product{
		UnitPrice: dec("10"),
		Discounts: []catalog.BulkDiscount{expired, future, inactive, tooMany},
	}
	quote := newTestEngine().Quote(product, 3)
	if quote.Discount != nil {
		t.Fatalf("expected no discount, got %+v", quote.Discount)
	}
	assertDecimal(t, quote.Final, "30")
}

func TestBestDiscountFirstWinsTie(t *testing.T) {
	// 10% of 10*100 and a flat 100 are worth the same.
	product := catalog.Product{
		UnitPrice: dec("100"),
		Discounts: []catalog.BulkDiscount{
			discount(7, enums.DiscountTypePercentage, 1, "10"),
			discount(8, enums.DiscountTypeFixed, 1, "100"),
		},
	}
	quote := newTestEngine().Quote(product, 10)
	if quote.Discount.DiscountID != 7 {
		t.Fatalf("expected first discount to win the tie, got %d", quote.Discount.DiscountID)
	}

	product.Discounts[0], product.Discounts[1] = product.Discounts[1], product.Discounts[0]
	quote = newTestEngine().Quote(product, 10)
	if quote.Discount.DiscountID != 8 {
		t.Fatalf("expected first discount to win the tie after reorder, got %d", quote.Discount.DiscountID)
	}
}

func TestBestDiscountPicksLargestDeduction(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	kinds := []enums.DiscountType{enums.DiscountTypePercentage, enums.DiscountTypeFixed, enums.DiscountTypeBundle}
	engine := newTestEngine()

	for i := 0; i < 500; i++ {
		unit := decimal.NewFromInt(int64(rng.Intn(500) + 1)).Div(decimal.NewFromInt(4))
		qty := rng.Intn(40) + 1
		a := discount(1, kinds[rng.Intn(3)], rng.Intn(qty)+1, decimal.NewFromInt(int64(rng.Intn(100))).String())
		b := discount(2, kinds[rng.Intn(3)], rng.Intn(qty)+1, decimal.NewFromInt(int64(rng.Intn(100))).String())
		product := catalog.Product{UnitPrice: unit, Discounts: []catalog.BulkDiscount{a, b}}

		base := BasePrice(product, qty)
		va := DiscountValue(a, unit, qty)
		vb := DiscountValue(b, unit, qty)
		want := base.Sub(decimal.Max(va, vb))
		if want.IsNegative() {
			want = decimal.Zero
		}

		got := engine.ComputeLinePrice(product, qty)
		if !got.Equal(want) {
			t.Fatalf("case %d: unit=%s qty=%d a=%+v b=%+v: expected %s, got %s", i, unit, qty, a, b, want, got)
		}
	}
}
