package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metagear/storefront/internal/domain/product"
)

const (
	productColumns = `id, name, price, description, image_url, category, created_at`

	listProductsSQL = `SELECT ` + productColumns + `
		FROM products ORDER BY created_at DESC, id`

	getProductByIDSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = ANY($1)`

	listProductIDsSQL = `SELECT id FROM products`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			description = EXCLUDED.description,
			image_url = EXCLUDED.image_url,
			category = EXCLUDED.category`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL. The
// bulk write methods serve the seeding and ingest tools.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products, newest first.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs. Missing IDs are
// simply absent from the result.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// ListIDs streams every product ID to fn.
func (r *ProductRepository) ListIDs(ctx context.Context, fn func(id string)) error {
	rows, err := r.pool.Query(ctx, listProductIDsSQL)
	if err != nil {
		return fmt.Errorf("listing product ids: %w", err)
	}
	var id string
	_, err = pgx.ForEachRow(rows, []any{&id}, func() error {
		fn(id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning product ids: %w", err)
	}
	return nil
}

// CopyProducts bulk-inserts products that are known not to exist yet.
func (r *ProductRepository) CopyProducts(ctx context.Context, products []product.Product) (int64, error) {
	now := time.Now()
	rows := make([][]any, len(products))
	for i, p := range products {
		rows[i] = productArgs(p, now)
	}

	n, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"products"},
		[]string{"id", "name", "price", "description", "image_url", "category", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return n, fmt.Errorf("copying %d products: %w", len(products), err)
	}
	return n, nil
}

// UpsertProducts inserts or updates products in a single batch. The creation
// time of existing rows is kept.
func (r *ProductRepository) UpsertProducts(ctx context.Context, products []product.Product) error {
	now := time.Now()
	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(upsertProductSQL, productArgs(p, now)...)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	for _, p := range products {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upserting product %q: %w", p.ID, err)
		}
	}
	return nil
}

func productArgs(p product.Product, now time.Time) []any {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return []any{p.ID, p.Name, p.Price, p.Description, p.ImageURL, p.Category, createdAt}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Description, &p.ImageURL, &p.Category, &p.CreatedAt)
	return p, err
}
