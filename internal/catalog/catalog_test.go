package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metagear/storefront/db"
	"github.com/metagear/storefront/internal/domain/product"
)

func TestDecodeArray_Seed(t *testing.T) {
	products, err := DecodeArray(db.SeedProducts)
	require.NoError(t, err)
	require.Len(t, products, 10)

	first := products[0]
	assert.Equal(t, "mg-kb-001", first.ID)
	assert.Equal(t, "Keyboards", first.Category)
	assert.True(t, decimal.RequireFromString("8999").Equal(first.Price), "got %s", first.Price)
}

func TestDecodeProduct(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		price   string
		wantErr bool
	}{
		{name: "StringPrice", input: `{"id":"a","name":"A","price":"10.50"}`, price: "10.50"},
		{name: "NumberPrice", input: `{"id":"a","name":"A","price":12.25,"extra":{"x":[1,2]}}`, price: "12.25"},
		{name: "MissingID", input: `{"name":"A","price":"1"}`, wantErr: true},
		{name: "MissingName", input: `{"id":"a","price":"1"}`, wantErr: true},
		{name: "NegativePrice", input: `{"id":"a","name":"A","price":"-1"}`, wantErr: true},
		{name: "BadPrice", input: `{"id":"a","name":"A","price":true}`, wantErr: true},
		{name: "Truncated", input: `{"id":"a"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodeProduct(jx.DecodeStr(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.price).Equal(p.Price), "got %s", p.Price)
		})
	}
}

type recordingWriter struct {
	copied   []string
	upserted []string
	copyErr  error
}

func (w *recordingWriter) CopyProducts(_ context.Context, products []product.Product) (int64, error) {
	if w.copyErr != nil {
		return 0, w.copyErr
	}
	for _, p := range products {
		w.copied = append(w.copied, p.ID)
	}
	return int64(len(products)), nil
}

func (w *recordingWriter) UpsertProducts(_ context.Context, products []product.Product) error {
	for _, p := range products {
		w.upserted = append(w.upserted, p.ID)
	}
	return nil
}

func batch(ids ...string) []product.Product {
	out := make([]product.Product, len(ids))
	for i, id := range ids {
		out[i] = product.Product{ID: id, Name: id}
	}
	return out
}

func TestRouter(t *testing.T) {
	ctx := context.Background()
	w := &recordingWriter{}
	r := NewRouter(w, 1000, 0.0001)
	r.Known("old-1")

	require.NoError(t, r.Write(ctx, batch("old-1", "new-1", "new-2", "new-1")))
	assert.Equal(t, []string{"new-1", "new-2"}, w.copied)
	assert.Equal(t, []string{"old-1", "new-1"}, w.upserted)

	// IDs copied earlier are upserted when seen again.
	require.NoError(t, r.Write(ctx, batch("new-2")))
	assert.Equal(t, []string{"old-1", "new-1", "new-2"}, w.upserted)
	assert.Equal(t, Stats{Copied: 2, Upserted: 3}, r.Stats())
}

func TestRouter_CopyFails(t *testing.T) {
	w := &recordingWriter{copyErr: errors.New("duplicate key")}
	r := NewRouter(w, 1000, 0.0001)

	err := r.Write(context.Background(), batch("a"))
	require.ErrorContains(t, err, "duplicate key")
	assert.Empty(t, w.upserted)
}

func writeGzip(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dump.jsonl.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(lines))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestReadFile(t *testing.T) {
	path := writeGzip(t, `{"id":"a","name":"A","price":"1"}
{"id":"b","name":"B","price":"2"}

{"id":"c","name":"C","price":3}
`)

	var sizes []int
	var ids []string
	err := ReadFile(context.Background(), path, 2, func(b []product.Product) error {
		sizes = append(sizes, len(b))
		for _, p := range b {
			ids = append(ids, p.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, sizes)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestReadFile_BadLine(t *testing.T) {
	path := writeGzip(t, "{\"id\":\"a\",\"name\":\"A\",\"price\":\"1\"}\n{\"id\":\n")

	err := ReadFile(context.Background(), path, 10, func([]product.Product) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2")
}
