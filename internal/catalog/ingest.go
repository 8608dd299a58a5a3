package catalog

import (
	"bufio"
	"bytes"
	"context"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"

	"github.com/metagear/storefront/internal/domain/product"
)

const maxLineBytes = 1 << 20

// Writer stores product batches.
type Writer interface {
	CopyProducts(ctx context.Context, products []product.Product) (int64, error)
	UpsertProducts(ctx context.Context, products []product.Product) error
}

// Stats counts routed rows.
type Stats struct {
	Copied   int64
	Upserted int64
}

// Router sends products whose ID is certainly new to COPY and products that
// may already exist to upsert. A bloom filter of known IDs makes the call, so
// a false positive only costs an upsert. Router is not safe for concurrent
// use.
type Router struct {
	filter *bloom.BloomFilter
	w      Writer
	stats  Stats
}

// NewRouter creates a Router sized for capacity IDs at the given false
// positive rate.
func NewRouter(w Writer, capacity uint, fpRate float64) *Router {
	return &Router{
		filter: bloom.NewWithEstimates(capacity, fpRate),
		w:      w,
	}
}

// Known records an ID that already exists in the store.
func (r *Router) Known(id string) {
	r.filter.AddString(id)
}

// Write routes one batch. Fresh rows are copied before possible duplicates
// are upserted, so a repeated ID inside the batch updates the copied row.
func (r *Router) Write(ctx context.Context, batch []product.Product) error {
	var fresh, existing []product.Product
	for _, p := range batch {
		if r.filter.TestOrAddString(p.ID) {
			existing = append(existing, p)
			continue
		}
		fresh = append(fresh, p)
	}

	if len(fresh) > 0 {
		n, err := r.w.CopyProducts(ctx, fresh)
		r.stats.Copied += n
		if err != nil {
			return errors.Wrap(err, "copy")
		}
	}
	if len(existing) > 0 {
		if err := r.w.UpsertProducts(ctx, existing); err != nil {
			return errors.Wrap(err, "upsert")
		}
		r.stats.Upserted += int64(len(existing))
	}
	return nil
}

// Stats returns the rows written so far.
func (r *Router) Stats() Stats {
	return r.stats
}

// ReadFile streams a gzipped JSON-lines file and calls fn with batches of at
// most batchSize products. Blank lines are skipped.
func ReadFile(ctx context.Context, path string, batchSize int, fn func([]product.Product) error) error {
	if batchSize <= 0 {
		batchSize = 1
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)

	batch := make([]product.Product, 0, batchSize)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		p, err := DecodeProduct(jx.DecodeBytes(data))
		if err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
		batch = append(batch, p)
		if len(batch) == batchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = make([]product.Product, 0, batchSize)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}
