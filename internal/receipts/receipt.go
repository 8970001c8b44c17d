// Package receipts builds the receipt-ready event emitted after every sale and
// ships it to whichever transport the till is configured with.
package receipts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/holopos/internal/loyalty"
	"github.com/angelmondragon/holopos/internal/pricing"
	"github.com/angelmondragon/holopos/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EnvelopeVersion = 1
	EventType       = "sale.receipt_ready"
)

// Line is one printed receipt line.
type Line struct {
	ProductID   int64                    `json:"product_id"`
	Name        string                   `json:"name"`
	Quantity    int                      `json:"quantity"`
	Base        decimal.Decimal          `json:"base"`
	Discount    *pricing.AppliedDiscount `json:"discount,omitempty"`
	Final       decimal.Decimal          `json:"final"`
	PriceAtSale decimal.Decimal          `json:"price_at_sale"`
}

// Receipt is everything the UI shell needs to render or print a sale.
type Receipt struct {
	SaleID     *int64           `json:"sale_id,omitempty"`
	LocalID    string           `json:"local_id,omitempty"`
	Status     enums.SaleStatus `json:"status"`
	Offline    bool             `json:"offline"`
	Lines      []Line           `json:"lines"`
	Subtotal   decimal.Decimal  `json:"subtotal"`
	Discounts  decimal.Decimal  `json:"discounts"`
	Total      decimal.Decimal  `json:"total"`
	Paid       decimal.Decimal  `json:"paid"`
	Change     decimal.Decimal  `json:"change"`
	CustomerID *int64           `json:"customer_id,omitempty"`
	Loyalty    *loyalty.Delta   `json:"loyalty,omitempty"`
	IssuedAt   time.Time        `json:"issued_at"`
}

// Reference identifies the sale on the wire: the backend id once confirmed,
// the offline local id otherwise.
func (r Receipt) Reference() string {
	if r.SaleID != nil {
		return fmt.Sprintf("sale_%d", *r.SaleID)
	}
	return r.LocalID
}

// Envelope wraps a receipt for transport.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// NewEnvelope marshals receipt into a fresh envelope.
func NewEnvelope(receipt Receipt) (Envelope, error) {
	data, err := json.Marshal(receipt)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal receipt: %w", err)
	}
	return Envelope{
		Version:    EnvelopeVersion,
		EventID:    uuid.NewString(),
		EventType:  EventType,
		OccurredAt: receipt.IssuedAt.UTC(),
		Data:       data,
	}, nil
}

// Publisher ships a receipt-ready event.
type Publisher interface {
	Publish(ctx context.Context, receipt Receipt) error
}
