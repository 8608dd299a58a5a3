package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/metagear/storefront/internal/catalog"
	"github.com/metagear/storefront/internal/domain/product"
	"github.com/metagear/storefront/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
)

func main() {
	_ = godotenv.Load()

	var (
		dataDir     string
		databaseURL string
		batchSize   int
		capacity    uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz product dumps")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 5000, "products per write")
	flag.UintVar(&capacity, "capacity", 10_000_000, "expected number of product ids, sizes the bloom filter")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, batchSize, capacity); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, batchSize int, capacity uint) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "list dumps")
	}
	if len(files) == 0 {
		slog.Info("no dumps found", slog.String("dir", dataDir))
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewProductRepository(pool)
	router := catalog.NewRouter(repo, capacity, bloomFPR)

	var known int
	if err := repo.ListIDs(ctx, func(id string) {
		router.Known(id)
		known++
	}); err != nil {
		return errors.Wrap(err, "load known ids")
	}
	slog.Info("known ids loaded", slog.Int("count", known), slog.Int("files", len(files)))

	// Files are decoded concurrently; a single writer owns the router.
	batches := make(chan []product.Product, len(files))
	g, ctx := errgroup.WithContext(ctx)

	readers, readCtx := errgroup.WithContext(ctx)
	for _, f := range files {
		readers.Go(func() error {
			return catalog.ReadFile(readCtx, f, batchSize, func(b []product.Product) error {
				select {
				case batches <- b:
					return nil
				case <-readCtx.Done():
					return readCtx.Err()
				}
			})
		})
	}
	g.Go(func() error {
		defer close(batches)
		return readers.Wait()
	})

	g.Go(func() error {
		var written int64
		next := int64(progressEvery)
		for b := range batches {
			if err := router.Write(ctx, b); err != nil {
				return err
			}
			written += int64(len(b))
			if written >= next {
				st := router.Stats()
				slog.Info("ingest progress",
					slog.Int64("copied", st.Copied),
					slog.Int64("upserted", st.Upserted),
				)
				next += progressEvery
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	st := router.Stats()
	slog.Info("ingest complete",
		slog.Int64("copied", st.Copied),
		slog.Int64("upserted", st.Upserted),
	)
	return nil
}
