package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/metagear/storefront/internal/domain/product"
)

// ErrNotFound is returned when an order does not exist for the given owner.
var ErrNotFound = errors.New("order not found")

// Status is an order's fulfilment state. Shoppers only ever create pending
// orders; later transitions are administrative.
type Status string

// StatusPending is the status of every newly submitted order.
const StatusPending Status = "pending"

// Order is a persisted checkout submission.
type Order struct {
	ID          string
	UserID      string
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
	Status      Status
	CreatedAt   time.Time
	Items       []Item
}

// Item is one distinct product within an order.
type Item struct {
	ProductID string
	Quantity  int
	// UnitPrice is the product price when the order was placed.
	UnitPrice decimal.Decimal
	// Product is populated when listing orders; it is nil on creation.
	Product *product.Product
}

// Total returns unit price times quantity.
func (i Item) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Repository defines persistence operations for orders. Header and items are
// written separately, mirroring the two-step submission.
type Repository interface {
	// CreateOrder inserts the header and fills in the generated ID and
	// creation time.
	CreateOrder(ctx context.Context, o *Order) error
	// CreateItems inserts all items of an order as one batch.
	CreateItems(ctx context.Context, orderID string, items []Item) error
	// DeleteOrder removes an order owned by userID together with its items.
	DeleteOrder(ctx context.Context, orderID, userID string) error
	// ListByUser returns the user's orders newest first, items included.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}
