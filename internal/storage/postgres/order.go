package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metagear/storefront/internal/domain/order"
	"github.com/metagear/storefront/internal/domain/product"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, user_id, subtotal, shipping_fee, tax, total_price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1 AND user_id = $2`

	listOrdersByUserSQL = `SELECT id, user_id, subtotal, shipping_fee, tax, total_price, status, created_at
		FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, id`

	listOrderItemsSQL = `SELECT oi.order_id, oi.product_id, oi.quantity, oi.unit_price,
			p.name, p.price, p.description, p.image_url, p.category, p.created_at
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, p.name`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateOrder inserts the order header. The order ID is generated here and
// the creation time comes from the database.
func (r *OrderRepository) CreateOrder(ctx context.Context, o *order.Order) error {
	id := uuid.NewString()
	status := o.Status
	if status == "" {
		status = order.StatusPending
	}

	err := r.pool.QueryRow(ctx, insertOrderSQL,
		id, o.UserID, o.Subtotal, o.ShippingFee, o.Tax, o.Total, string(status),
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating order for %q: %w", o.UserID, err)
	}

	o.ID = id
	o.Status = status
	return nil
}

// CreateItems copies all items of an order in one round trip.
func (r *OrderRepository) CreateItems(ctx context.Context, orderID string, items []order.Item) error {
	if len(items) == 0 {
		return nil
	}

	rows := make([][]any, len(items))
	for i, it := range items {
		rows[i] = []any{orderID, it.ProductID, it.Quantity, it.UnitPrice}
	}

	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		[]string{"order_id", "product_id", "quantity", "unit_price"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("creating items for order %q: %w", orderID, err)
	}
	return nil
}

// DeleteOrder removes the order and, by cascade, its items.
func (r *OrderRepository) DeleteOrder(ctx context.Context, orderID, userID string) error {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, orderID, userID)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// ListByUser returns the user's orders newest first with their items and
// product details.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for %q: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scanning orders for %q: %w", userID, err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err = r.pool.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("scanning order items: %w", err)
	}
	for _, it := range items {
		i := index[it.orderID]
		orders[i].Items = append(orders[i].Items, it.Item)
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Subtotal, &o.ShippingFee, &o.Tax, &o.Total, &status, &o.CreatedAt)
	o.Status = order.Status(status)
	return o, err
}

type orderItemRow struct {
	order.Item
	orderID string
}

func scanOrderItem(row pgx.CollectableRow) (orderItemRow, error) {
	var (
		it orderItemRow
		p  product.Product
	)
	err := row.Scan(
		&it.orderID, &it.ProductID, &it.Quantity, &it.UnitPrice,
		&p.Name, &p.Price, &p.Description, &p.ImageURL, &p.Category, &p.CreatedAt,
	)
	p.ID = it.ProductID
	it.Product = &p
	return it, err
}
