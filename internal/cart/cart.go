package cart

import (
	"github.com/angelmondragon/holopos/internal/catalog"
	"github.com/angelmondragon/holopos/internal/pricing"
	pkgerrors "github.com/angelmondragon/holopos/pkg/errors"
	"github.com/shopspring/decimal"
)

// Pricer prices a single line.
type Pricer interface {
	Quote(product catalog.Product, quantity int) pricing.LineQuote
}

// Line is one product in the cart.
type Line struct {
	Product  catalog.Product
	Quantity int
}

// Adjustment reports what a mutation actually did to a line's quantity so the
// caller can warn when the request was clamped.
type Adjustment struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Applied   int   `json:"applied"`
	Clamped   bool  `json:"clamped"`
}

// Cart is the in-progress sale. It is owned by a single checkout session and
// is not safe for concurrent use.
type Cart struct {
	lines []Line
	index map[int64]int
}

func New() *Cart {
	return &Cart{index: map[int64]int{}}
}

// Add puts quantity units of product in the cart, merging with an existing
// line. The resulting quantity is clamped to [1, stock]; a product with no
// stock is never inserted.
func (c *Cart) Add(product catalog.Product, quantity int) Adjustment {
	if pos, ok := c.index[product.ID]; ok {
		line := &c.lines[pos]
		line.Product = product
		requested := line.Quantity + quantity
		applied, clamped := clamp(requested, product.Stock)
		if applied == 0 {
			c.remove(product.ID)
		} else {
			line.Quantity = applied
		}
		return Adjustment{ProductID: product.ID, Requested: requested, Applied: applied, Clamped: clamped}
	}

	applied, clamped := clamp(quantity, product.Stock)
	if applied == 0 {
		return Adjustment{ProductID: product.ID, Requested: quantity, Applied: 0, Clamped: true}
	}
	c.index[product.ID] = len(c.lines)
	c.lines = append(c.lines, Line{Product: product, Quantity: applied})
	return Adjustment{ProductID: product.ID, Requested: quantity, Applied: applied, Clamped: clamped}
}

// SetQuantity replaces the quantity of an existing line, clamped to [1, stock].
func (c *Cart) SetQuantity(productID int64, quantity int) (Adjustment, error) {
	pos, ok := c.index[productID]
	if !ok {
		return Adjustment{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not in cart").
			WithDetails(map[string]any{"product_id": productID})
	}
	line := &c.lines[pos]
	applied, clamped := clamp(quantity, line.Product.Stock)
	if applied == 0 {
		c.remove(productID)
	} else {
		line.Quantity = applied
	}
	return Adjustment{ProductID: productID, Requested: quantity, Applied: applied, Clamped: clamped}, nil
}

// Remove drops the line for productID. Unknown ids are ignored.
func (c *Cart) Remove(productID int64) {
	c.remove(productID)
}

func (c *Cart) remove(productID int64) {
	pos, ok := c.index[productID]
	if !ok {
		return
	}
	c.lines = append(c.lines[:pos], c.lines[pos+1:]...)
	delete(c.index, productID)
	for i := pos; i < len(c.lines); i++ {
		c.index[c.lines[i].Product.ID] = i
	}
}

// Lines returns a copy of the lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) Clear() {
	c.lines = nil
	c.index = map[int64]int{}
}

// Quotes prices every line in order.
func (c *Cart) Quotes(p Pricer) []pricing.LineQuote {
	out := make([]pricing.LineQuote, 0, len(c.lines))
	for _, line := range c.lines {
		out = append(out, p.Quote(line.Product, line.Quantity))
	}
	return out
}

// Total is the sum of the line prices.
func (c *Cart) Total(p Pricer) decimal.Decimal {
	total := decimal.Zero
	for _, q := range c.Quotes(p) {
		total = total.Add(q.Final)
	}
	return total
}

// clamp bounds quantity to [1, stock]. Zero means the product cannot be sold.
func clamp(quantity, stock int) (int, bool) {
	if stock <= 0 {
		return 0, true
	}
	switch {
	case quantity < 1:
		return 1, true
	case quantity > stock:
		return stock, true
	default:
		return quantity, false
	}
}
