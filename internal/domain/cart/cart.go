// Package cart holds a shopper's per-session selection of products.
package cart

import (
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/metagear/storefront/internal/domain/product"
)

// MaxQuantity bounds a line's quantity so it fits the order_items column.
const MaxQuantity = math.MaxInt32

// ErrInvalidQuantity is returned when a quantity is not positive or would
// take a line above MaxQuantity.
var ErrInvalidQuantity = errors.New("quantity must be between 1 and 2147483647")

// Line is one product in the cart with its aggregated quantity.
type Line struct {
	Product  product.Product
	Quantity int
}

// Total returns price times quantity for the line.
func (l Line) Total() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered mapping from product ID to Line. Lines keep the order in
// which products were first added; a product appears at most once and every
// line has a quantity of at least one.
type Cart struct {
	Owner     string
	Lines     []Line
	UpdatedAt time.Time
}

// New returns an empty cart owned by the given subject.
func New(owner string) *Cart {
	return &Cart{Owner: owner}
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return len(c.Lines) == 0
}

// Deduct takes the given quantities out of the cart and drops lines that
// reach zero. Products not in the cart are ignored. It reports whether the
// cart changed.
func (c *Cart) Deduct(lines []Line) bool {
	changed := false
	for _, l := range lines {
		i := c.index(l.Product.ID)
		if i < 0 || l.Quantity <= 0 {
			continue
		}
		changed = true
		c.Lines[i].Quantity -= l.Quantity
		if c.Lines[i].Quantity <= 0 {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		}
	}
	return changed
}

// Units returns the total quantity across all lines.
func (c *Cart) Units() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Line returns the line for productID, if present.
func (c *Cart) Line(productID string) (Line, bool) {
	if i := c.index(productID); i >= 0 {
		return c.Lines[i], true
	}
	return Line{}, false
}

// Add increments the quantity of p, creating its line when absent. The line's
// product snapshot is refreshed to p.
func (c *Cart) Add(p product.Product, quantity int) error {
	if quantity <= 0 || quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	if i := c.index(p.ID); i >= 0 {
		if c.Lines[i].Quantity > MaxQuantity-quantity {
			return ErrInvalidQuantity
		}
		c.Lines[i].Product = p
		c.Lines[i].Quantity += quantity
		return nil
	}
	c.Lines = append(c.Lines, Line{Product: p, Quantity: quantity})
	return nil
}

// RemoveOne decrements the quantity of productID by one and drops the line
// when it reaches zero. It reports whether the cart changed.
func (c *Cart) RemoveOne(productID string) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.Lines[i].Quantity--
	if c.Lines[i].Quantity <= 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	}
	return true
}

// RemoveAll drops the line for productID regardless of its quantity. It
// reports whether the cart changed.
func (c *Cart) RemoveAll(productID string) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	return true
}

// Clear drops every line.
func (c *Cart) Clear() {
	c.Lines = nil
}

func (c *Cart) index(productID string) int {
	for i, l := range c.Lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}
