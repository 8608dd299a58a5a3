package cart

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metagear/storefront/internal/domain/product"
)

func newTestProduct(id string, price int64) product.Product {
	return product.Product{
		ID:       id,
		Name:     "Unit " + id,
		Price:    decimal.NewFromInt(price),
		Category: "test",
	}
}

func TestCart_AddAggregates(t *testing.T) {
	c := New("u1")
	p := newTestProduct("p1", 1000)

	require.NoError(t, c.Add(p, 1))
	require.NoError(t, c.Add(p, 2))
	require.NoError(t, c.Add(newTestProduct("p2", 50), 1))

	require.Len(t, c.Lines, 2)
	assert.Equal(t, "p1", c.Lines[0].Product.ID)
	assert.Equal(t, 3, c.Lines[0].Quantity)
	assert.Equal(t, "p2", c.Lines[1].Product.ID)
	assert.Equal(t, 4, c.Units())
	assert.True(t, decimal.NewFromInt(3000).Equal(c.Lines[0].Total()))
}

func TestCart_AddRefreshesSnapshot(t *testing.T) {
	c := New("u1")
	require.NoError(t, c.Add(newTestProduct("p1", 1000), 1))
	require.NoError(t, c.Add(newTestProduct("p1", 900), 1))

	l, ok := c.Line("p1")
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(900).Equal(l.Product.Price))
	assert.Equal(t, 2, l.Quantity)
}

func TestCart_AddInvalidQuantity(t *testing.T) {
	c := New("u1")
	require.ErrorIs(t, c.Add(newTestProduct("p1", 10), 0), ErrInvalidQuantity)
	require.ErrorIs(t, c.Add(newTestProduct("p1", 10), -3), ErrInvalidQuantity)
	assert.True(t, c.Empty())
}

func TestCart_AddQuantityBound(t *testing.T) {
	c := New("u1")
	p := newTestProduct("p1", 10)

	require.ErrorIs(t, c.Add(p, math.MaxInt), ErrInvalidQuantity)
	require.NoError(t, c.Add(p, MaxQuantity-1))
	require.NoError(t, c.Add(p, 1))
	require.ErrorIs(t, c.Add(p, 1), ErrInvalidQuantity)

	l, ok := c.Line("p1")
	require.True(t, ok)
	assert.Equal(t, MaxQuantity, l.Quantity)
	assert.True(t, l.Total().IsPositive())
}

func TestCart_Deduct(t *testing.T) {
	c := New("u1")
	require.NoError(t, c.Add(newTestProduct("p1", 10), 3))
	require.NoError(t, c.Add(newTestProduct("p2", 20), 1))

	changed := c.Deduct([]Line{
		{Product: newTestProduct("p1", 10), Quantity: 2},
		{Product: newTestProduct("p2", 20), Quantity: 1},
		{Product: newTestProduct("p3", 30), Quantity: 5},
	})
	require.True(t, changed)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 1, c.Lines[0].Quantity)

	assert.False(t, c.Deduct([]Line{{Product: newTestProduct("p9", 1), Quantity: 1}}))
}

func TestCart_RemoveOne(t *testing.T) {
	c := New("u1")
	require.NoError(t, c.Add(newTestProduct("p1", 10), 2))

	assert.True(t, c.RemoveOne("p1"))
	l, ok := c.Line("p1")
	require.True(t, ok)
	assert.Equal(t, 1, l.Quantity)

	assert.True(t, c.RemoveOne("p1"))
	_, ok = c.Line("p1")
	assert.False(t, ok, "line must be dropped at zero")
	assert.True(t, c.Empty())

	assert.False(t, c.RemoveOne("p1"), "absent product is a no-op")
}

func TestCart_RemoveAll(t *testing.T) {
	c := New("u1")
	require.NoError(t, c.Add(newTestProduct("p1", 10), 5))
	require.NoError(t, c.Add(newTestProduct("p2", 10), 1))

	assert.True(t, c.RemoveAll("p1"))
	assert.False(t, c.RemoveAll("p1"))
	require.Len(t, c.Lines, 1)
	assert.Equal(t, "p2", c.Lines[0].Product.ID)
}

func TestCart_ClearIdempotent(t *testing.T) {
	c := New("u1")
	c.Clear()
	assert.True(t, c.Empty())

	require.NoError(t, c.Add(newTestProduct("p1", 10), 1))
	c.Clear()
	c.Clear()
	assert.True(t, c.Empty())
	assert.Equal(t, 0, c.Units())
}

// TestCart_RandomSequences drives random add/removeOne/removeAll sequences
// and checks the line invariants after every step.
func TestCart_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	productIDs := []string{"a", "b", "c", "d"}

	for range 200 {
		c := New("u1")
		expected := map[string]int{}

		for range 50 {
			id := productIDs[rng.IntN(len(productIDs))]
			switch rng.IntN(3) {
			case 0:
				qty := rng.IntN(3) + 1
				require.NoError(t, c.Add(newTestProduct(id, 10), qty))
				expected[id] += qty
			case 1:
				c.RemoveOne(id)
				if expected[id] > 0 {
					expected[id]--
				}
			case 2:
				c.RemoveAll(id)
				expected[id] = 0
			}

			seen := map[string]bool{}
			for _, l := range c.Lines {
				require.GreaterOrEqual(t, l.Quantity, 1, "line %s has non-positive quantity", l.Product.ID)
				require.False(t, seen[l.Product.ID], "duplicate line for %s", l.Product.ID)
				seen[l.Product.ID] = true
			}
			for id, qty := range expected {
				l, ok := c.Line(id)
				if qty == 0 {
					require.False(t, ok)
					continue
				}
				require.True(t, ok)
				require.Equal(t, qty, l.Quantity)
			}
		}
	}
}
