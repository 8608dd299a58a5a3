//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/metagear/storefront/internal/domain/order"
	"github.com/metagear/storefront/internal/domain/product"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "storefront",
				"POSTGRES_PASSWORD": "storefront",
				"POSTGRES_DB":       "storefront",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://storefront:storefront@%s:%s/storefront?sslmode=disable", host, port.Port())
	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	require.NoError(t, RunMigrations(ctx, pool), "migrations must be idempotent")
	return pool
}

func TestPostgres(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t)
	products := NewProductRepository(pool)
	orders := NewOrderRepository(pool)

	base := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	catalog := []product.Product{
		{ID: "p-1", Name: "Keyboard", Price: decimal.RequireFromString("1000.00"), Category: "Keyboards", CreatedAt: base},
		{ID: "p-2", Name: "Mouse", Price: decimal.RequireFromString("500.50"), Category: "Mice", CreatedAt: base.Add(time.Minute)},
	}
	n, err := products.CopyProducts(ctx, catalog)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	t.Run("Products", func(t *testing.T) {
		list, err := products.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "p-2", list[0].ID, "newest first")
		assert.True(t, decimal.RequireFromString("500.50").Equal(list[0].Price))

		_, err = products.GetByID(ctx, "missing")
		require.True(t, errors.Is(err, product.ErrNotFound))

		got, err := products.GetByIDs(ctx, []string{"p-1", "missing"})
		require.NoError(t, err)
		require.Len(t, got, 1)

		require.NoError(t, products.UpsertProducts(ctx, []product.Product{
			{ID: "p-1", Name: "Keyboard v2", Price: decimal.RequireFromString("1100.00")},
		}))
		p, err := products.GetByID(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, "Keyboard v2", p.Name)
		assert.True(t, p.CreatedAt.Equal(base), "upsert keeps creation time")

		var ids []string
		require.NoError(t, products.ListIDs(ctx, func(id string) { ids = append(ids, id) }))
		assert.ElementsMatch(t, []string{"p-1", "p-2"}, ids)
	})

	t.Run("Orders", func(t *testing.T) {
		o := &order.Order{
			UserID:      "user-1",
			Subtotal:    decimal.RequireFromString("1500.50"),
			ShippingFee: decimal.RequireFromString("250"),
			Tax:         decimal.RequireFromString("180.06"),
			Total:       decimal.RequireFromString("1930.56"),
		}
		require.NoError(t, orders.CreateOrder(ctx, o))
		require.NotEmpty(t, o.ID)
		assert.Equal(t, order.StatusPending, o.Status)
		assert.False(t, o.CreatedAt.IsZero())

		require.NoError(t, orders.CreateItems(ctx, o.ID, []order.Item{
			{ProductID: "p-1", Quantity: 1, UnitPrice: decimal.RequireFromString("1000")},
			{ProductID: "p-2", Quantity: 1, UnitPrice: decimal.RequireFromString("500.50")},
		}))

		// Unknown product violates the foreign key; the header stays behind.
		orphan := &order.Order{UserID: "user-1", Subtotal: decimal.Zero, ShippingFee: decimal.Zero, Tax: decimal.Zero, Total: decimal.Zero}
		require.NoError(t, orders.CreateOrder(ctx, orphan))
		err := orders.CreateItems(ctx, orphan.ID, []order.Item{
			{ProductID: "missing", Quantity: 1, UnitPrice: decimal.NewFromInt(1)},
		})
		require.Error(t, err)

		list, err := orders.ListByUser(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, list, 2)

		require.NoError(t, orders.DeleteOrder(ctx, orphan.ID, "user-1"))
		require.True(t, errors.Is(orders.DeleteOrder(ctx, orphan.ID, "user-1"), order.ErrNotFound))
		require.True(t, errors.Is(orders.DeleteOrder(ctx, o.ID, "someone-else"), order.ErrNotFound))

		list, err = orders.ListByUser(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Len(t, list[0].Items, 2)
		assert.Equal(t, "Keyboard v2", list[0].Items[0].Product.Name)
		assert.True(t, decimal.RequireFromString("1930.56").Equal(list[0].Total))

		none, err := orders.ListByUser(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
