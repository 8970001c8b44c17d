package sales

import (
	"encoding/json"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/holopos/pkg/errors"
	"github.com/shopspring/decimal"
)

func validPayload() Payload {
	customer := int64(3)
	return Payload{
		TotalAmount: decimal.RequireFromString("1200"),
		PaidAmount:  decimal.RequireFromString("1500"),
		ChangeGiven: decimal.RequireFromString("300"),
		Items:       []Item{{ProductID: 7, Quantity: 14, PriceAtSale: decimal.RequireFromString("85.71")}},
		CustomerID:  &customer,
	}
}

func TestPayloadWireShape(t *testing.T) {
	raw, err := json.Marshal(validPayload())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)
	for _, want := range []string{`"total_amount":"1200"`, `"change_given":"300"`, `"price_at_sale":"85.71"`, `"customer_id":3`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}

	p := validPayload()
	p.CustomerID = nil
	raw, _ = json.Marshal(p)
	if strings.Contains(string(raw), "customer_id") {
		t.Fatalf("customer_id should be omitted: %s", raw)
	}
}

func TestPayloadValidate(t *testing.T) {
	if err := validPayload().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := map[string]func(p *Payload){
		"no items":       func(p *Payload) { p.Items = nil },
		"zero quantity":  func(p *Payload) { p.Items[0].Quantity = 0 },
		"bad product":    func(p *Payload) { p.Items[0].ProductID = 0 },
		"negative price": func(p *Payload) { p.Items[0].PriceAtSale = decimal.NewFromInt(-1) },
		"underpaid":      func(p *Payload) { p.PaidAmount = decimal.NewFromInt(10) },
		"wrong change":   func(p *Payload) { p.ChangeGiven = decimal.NewFromInt(1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := validPayload()
			mutate(&p)
			if err := p.Validate(); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestItemCount(t *testing.T) {
	p := validPayload()
	p.Items = append(p.Items, Item{ProductID: 8, Quantity: 2})
	if p.ItemCount() != 16 {
		t.Fatalf("expected 16 units, got %d", p.ItemCount())
	}
}
