// Package checkout turns a cart into a completed sale, falling back to the
// offline queue when the backend cannot be reached.
package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/holopos/internal/cart"
	"github.com/angelmondragon/holopos/internal/catalog"
	"github.com/angelmondragon/holopos/internal/loyalty"
	"github.com/angelmondragon/holopos/internal/receipts"
	"github.com/angelmondragon/holopos/internal/sales"
	"github.com/angelmondragon/holopos/pkg/clock"
	"github.com/angelmondragon/holopos/pkg/enums"
	pkgerrors "github.com/angelmondragon/holopos/pkg/errors"
	"github.com/angelmondragon/holopos/pkg/logger"
	"github.com/angelmondragon/holopos/pkg/metrics"
	"github.com/shopspring/decimal"
)

const (
	statusRejected = "rejected"
	statusInvalid  = "invalid"
	statusFailed   = "failed"

	defaultPublishTimeout = 5 * time.Second
)

type submitter interface {
	SubmitSale(ctx context.Context, payload sales.Payload, idempotencyKey string) (*sales.Confirmation, error)
}

type saleQueue interface {
	Enqueue(ctx context.Context, payload sales.Payload) (string, error)
	EnqueueWithID(ctx context.Context, localID string, payload sales.Payload) error
	NewLocalID() string
}

type connectivity interface {
	IsOnline() bool
}

type Params struct {
	Pricer        cart.Pricer
	Queue         saleQueue
	Submitter     submitter
	Connectivity  connectivity
	Receipts      receipts.Publisher
	Loyalty       loyalty.Policy
	Clock         clock.Clock
	Logger        *logger.Logger
	Metrics       *metrics.CheckoutMetrics
	SubmitTimeout time.Duration
}

// SaleResult is what the cashier sees once a sale is done.
type SaleResult struct {
	Status  enums.SaleStatus `json:"status"`
	SaleID  *int64           `json:"sale_id,omitempty"`
	LocalID string           `json:"local_id,omitempty"`
	Receipt receipts.Receipt `json:"receipt"`
}

type Service struct {
	pricer        cart.Pricer
	queue         saleQueue
	submitter     submitter
	connectivity  connectivity
	receipts      receipts.Publisher
	loyalty       loyalty.Policy
	clock         clock.Clock
	logg          *logger.Logger
	metrics       *metrics.CheckoutMetrics
	submitTimeout time.Duration
}

func NewService(params Params) (*Service, error) {
	if params.Pricer == nil {
		return nil, errors.New("pricer required")
	}
	if params.Queue == nil {
		return nil, errors.New("offline queue required")
	}
	if params.Submitter == nil {
		return nil, errors.New("submitter required")
	}
	if params.Connectivity == nil {
		return nil, errors.New("connectivity monitor required")
	}
	if params.SubmitTimeout <= 0 {
		return nil, errors.New("submit timeout must be positive")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Receipts == nil {
		params.Receipts = receipts.NewLogPublisher(params.Logger)
	}
	if params.Clock == nil {
		params.Clock = clock.NewRealClock()
	}
	return &Service{
		pricer:        params.Pricer,
		queue:         params.Queue,
		submitter:     params.Submitter,
		connectivity:  params.Connectivity,
		receipts:      params.Receipts,
		loyalty:       params.Loyalty,
		clock:         params.Clock,
		logg:          params.Logger,
		metrics:       params.Metrics,
		submitTimeout: params.SubmitTimeout,
	}, nil
}

// Checkout completes the sale in c. Validation failures leave every piece of
// state untouched. A business rejection from the backend is returned as is
// and the sale is not queued; an unreachable backend queues it instead. On
// success the cart is cleared.
func (s *Service) Checkout(ctx context.Context, c *cart.Cart, paid decimal.Decimal, customer *catalog.Customer) (*SaleResult, error) {
	draft, err := s.prepare(c, paid, customer)
	if err != nil {
		s.metrics.IncSale(statusInvalid)
		return nil, err
	}

	result := &SaleResult{}
	if !s.connectivity.IsOnline() {
		if err := s.enqueue(ctx, draft, result, ""); err != nil {
			return nil, err
		}
	} else {
		// the key doubles as the local id if the sale ends up queued, so a
		// submit that landed before timing out is deduplicated on sync
		key := s.queue.NewLocalID()
		confirmation, err := s.submit(ctx, draft.payload, key)
		switch {
		case err == nil:
			result.Status = enums.SaleStatusCompleted
			if confirmation != nil && confirmation.ID > 0 {
				id := confirmation.ID
				result.SaleID = &id
			}
		case pkgerrors.IsCode(err, pkgerrors.CodeNetwork):
			s.logg.Warn(s.logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), "backend unreachable, saving sale offline")
			if err := s.enqueue(ctx, draft, result, key); err != nil {
				return nil, err
			}
		default:
			s.metrics.IncSale(statusRejected)
			s.logg.Warn(s.logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), "sale rejected by backend")
			return nil, err
		}
	}

	result.Receipt = s.receipt(draft, result)
	s.publish(ctx, result.Receipt)
	c.Clear()
	s.metrics.IncSale(string(result.Status))

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"status":   result.Status,
		"sale_ref": result.Receipt.Reference(),
		"total":    draft.payload.TotalAmount.StringFixed(2),
		"items":    draft.payload.ItemCount(),
	}), "sale completed")
	return result, nil
}

// draft is a validated sale ready to submit or queue.
type draft struct {
	payload  sales.Payload
	lines    []receipts.Line
	subtotal decimal.Decimal
	customer *catalog.Customer
}

func (s *Service) prepare(c *cart.Cart, paid decimal.Decimal, customer *catalog.Customer) (*draft, error) {
	if c == nil || c.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if paid.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paid amount must not be negative")
	}

	lines := c.Lines()
	quotes := c.Quotes(s.pricer)
	d := &draft{customer: customer, subtotal: decimal.Zero}
	total := decimal.Zero
	for i, line := range lines {
		quote := quotes[i]
		if line.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive").
				WithDetails(map[string]any{"product_id": line.Product.ID, "quantity": line.Quantity})
		}
		priceAtSale := line.Product.UnitPrice.Round(2)
		d.payload.Items = append(d.payload.Items, sales.Item{
			ProductID:   line.Product.ID,
			Quantity:    line.Quantity,
			PriceAtSale: priceAtSale,
		})
		d.lines = append(d.lines, receipts.Line{
			ProductID:   line.Product.ID,
			Name:        line.Product.Name,
			Quantity:    line.Quantity,
			Base:        quote.Base,
			Discount:    quote.Discount,
			Final:       quote.Final,
			PriceAtSale: priceAtSale,
		})
		d.subtotal = d.subtotal.Add(quote.Base)
		total = total.Add(quote.Final)
	}

	if paid.LessThan(total) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paid amount is less than the sale total").
			WithDetails(map[string]any{"total": total.StringFixed(2), "paid": paid.StringFixed(2)})
	}

	d.payload.TotalAmount = total
	d.payload.PaidAmount = paid
	d.payload.ChangeGiven = paid.Sub(total)
	if customer != nil {
		id := customer.ID
		d.payload.CustomerID = &id
	}
	if err := d.payload.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) submit(ctx context.Context, payload sales.Payload, idempotencyKey string) (*sales.Confirmation, error) {
	submitCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()

	confirmation, err := s.submitter.SubmitSale(submitCtx, payload, idempotencyKey)
	if err != nil && pkgerrors.As(err) == nil && errors.Is(err, context.DeadlineExceeded) {
		err = pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "submit sale timed out")
	}
	return confirmation, err
}

func (s *Service) enqueue(ctx context.Context, d *draft, result *SaleResult, localID string) error {
	var err error
	if localID == "" {
		localID, err = s.queue.Enqueue(ctx, d.payload)
	} else {
		err = s.queue.EnqueueWithID(ctx, localID, d.payload)
	}
	if err != nil {
		s.metrics.IncSale(statusFailed)
		s.logg.Error(ctx, "failed to save sale offline", err)
		return err
	}
	result.Status = enums.SaleStatusCompletedOffline
	result.LocalID = localID
	return nil
}

func (s *Service) receipt(d *draft, result *SaleResult) receipts.Receipt {
	return receipts.Receipt{
		SaleID:     result.SaleID,
		LocalID:    result.LocalID,
		Status:     result.Status,
		Offline:    result.Status.IsOffline(),
		Lines:      d.lines,
		Subtotal:   d.subtotal,
		Discounts:  d.subtotal.Sub(d.payload.TotalAmount),
		Total:      d.payload.TotalAmount,
		Paid:       d.payload.PaidAmount,
		Change:     d.payload.ChangeGiven,
		CustomerID: d.payload.CustomerID,
		Loyalty:    s.loyalty.Delta(d.customer, d.payload.TotalAmount),
		IssuedAt:   s.clock.Now(),
	}
}

// publish never fails the sale; the money has already changed hands.
func (s *Service) publish(ctx context.Context, receipt receipts.Receipt) {
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultPublishTimeout)
	defer cancel()
	if err := s.receipts.Publish(publishCtx, receipt); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "sale_ref", receipt.Reference()), "failed to publish receipt", err)
	}
}
