package cart_test

import (
	"context"
	"math"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metagear/storefront/internal/domain/auth"
	"github.com/metagear/storefront/internal/domain/cart"
	"github.com/metagear/storefront/internal/domain/product"
	"github.com/metagear/storefront/internal/storage/memory"
)

type mockCatalog struct {
	byID map[string]*product.Product
}

func (m *mockCatalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

type failingNotifier struct {
	*memory.NoticeStore
}

func (failingNotifier) Notify(context.Context, string, cart.Notice) error {
	return errors.New("notice store down")
}

func newCatalog(products ...product.Product) *mockCatalog {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockCatalog{byID: byID}
}

func newSession(id, subject string) *auth.Session {
	return &auth.Session{ID: id, Subject: auth.Subject{ID: subject}}
}

func newTestService() (*cart.Service, *memory.CartStore) {
	store := memory.NewCartStore()
	catalog := newCatalog(
		product.Product{ID: "p1", Name: "Razer Mouse", Price: decimal.NewFromInt(1000)},
		product.Product{ID: "p2", Name: "ASUS GPU", Price: decimal.NewFromInt(30000)},
	)
	return cart.NewService(store, memory.NewNoticeStore(), catalog), store
}

func TestService_AddRequiresSession(t *testing.T) {
	svc, store := newTestService()

	_, err := svc.Add(context.Background(), nil, "p1", 1)
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
	assert.Equal(t, 0, store.Len(), "rejected add must not mutate state")
}

func TestService_AddPersistsAndNotifies(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	sess := newSession("s1", "u1")

	_, err := svc.Add(ctx, sess, "p1", 1)
	require.NoError(t, err)
	c, err := svc.Add(ctx, sess, "p1", 1)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 2, c.Lines[0].Quantity)

	reloaded, err := svc.Get(ctx, sess)
	require.NoError(t, err)
	require.Len(t, reloaded.Lines, 1)
	assert.Equal(t, 2, reloaded.Lines[0].Quantity)

	notices, err := svc.Notices(ctx, sess)
	require.NoError(t, err)
	require.Len(t, notices, 2)
	assert.Equal(t, "Razer Mouse added to cart", notices[0].Message)
	assert.Equal(t, cart.NoticeTTL, notices[0].ExpiresAt.Sub(notices[0].CreatedAt))
}

func TestService_AddUnknownProduct(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Add(context.Background(), newSession("s1", "u1"), "missing", 1)
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestService_AddInvalidQuantity(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Add(context.Background(), newSession("s1", "u1"), "p1", 0)
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)
}

func TestService_AddCannotOverflowLine(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	sess := newSession("s1", "u1")

	_, err := svc.Add(ctx, sess, "p1", math.MaxInt)
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)

	_, err = svc.Add(ctx, sess, "p1", cart.MaxQuantity)
	require.NoError(t, err)
	_, err = svc.Add(ctx, sess, "p1", 1)
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)

	c, err := svc.Get(ctx, sess)
	require.NoError(t, err)
	l, ok := c.Line("p1")
	require.True(t, ok)
	assert.Equal(t, cart.MaxQuantity, l.Quantity)
}

func TestService_Settle(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	sess := newSession("s1", "u1")

	_, err := svc.Add(ctx, sess, "p1", 2)
	require.NoError(t, err)
	ordered, err := svc.Get(ctx, sess)
	require.NoError(t, err)
	lines := append([]cart.Line(nil), ordered.Lines...)

	_, err = svc.Add(ctx, sess, "p2", 1)
	require.NoError(t, err)
	require.NoError(t, svc.Settle(ctx, sess, lines))

	c, err := svc.Get(ctx, sess)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, "p2", c.Lines[0].Product.ID)

	require.NoError(t, svc.Settle(ctx, sess, c.Lines))
	assert.Zero(t, store.Len())
	require.ErrorIs(t, svc.Settle(ctx, nil, nil), auth.ErrUnauthenticated)
}

func TestService_NoticeFailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCartStore()
	svc := cart.NewService(store, failingNotifier{memory.NewNoticeStore()}, newCatalog(
		product.Product{ID: "p1", Name: "Razer Mouse", Price: decimal.NewFromInt(1000)},
	))

	c, err := svc.Add(ctx, newSession("s1", "u1"), "p1", 1)
	require.NoError(t, err)
	assert.Len(t, c.Lines, 1)
	assert.Equal(t, 1, store.Len())
}

func TestService_RemoveOneAndAll(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	sess := newSession("s1", "u1")

	_, err := svc.Add(ctx, sess, "p1", 2)
	require.NoError(t, err)
	_, err = svc.Add(ctx, sess, "p2", 1)
	require.NoError(t, err)

	c, err := svc.RemoveOne(ctx, sess, "p1")
	require.NoError(t, err)
	l, ok := c.Line("p1")
	require.True(t, ok)
	assert.Equal(t, 1, l.Quantity)

	c, err = svc.RemoveOne(ctx, sess, "absent")
	require.NoError(t, err)
	assert.Len(t, c.Lines, 2)

	c, err = svc.RemoveAll(ctx, sess, "p2")
	require.NoError(t, err)
	assert.Len(t, c.Lines, 1)

	c, err = svc.RemoveOne(ctx, sess, "p1")
	require.NoError(t, err)
	assert.True(t, c.Empty())
	assert.Equal(t, 0, store.Len(), "emptied cart is deleted from the store")
}

func TestService_ClearIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	sess := newSession("s1", "u1")

	require.NoError(t, svc.Clear(ctx, sess))

	_, err := svc.Add(ctx, sess, "p1", 1)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, sess))
	require.NoError(t, svc.Clear(ctx, sess))
	assert.Equal(t, 0, store.Len())

	notices, err := svc.Notices(ctx, sess)
	require.NoError(t, err)
	assert.Empty(t, notices)
}

func TestService_ForeignCartIsPurged(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	_, err := svc.Add(ctx, newSession("device-1", "alice"), "p1", 3)
	require.NoError(t, err)

	// Same session key, different identity: alice's cart must not be visible.
	c, err := svc.Get(ctx, newSession("device-1", "bob"))
	require.NoError(t, err)
	assert.True(t, c.Empty())
	assert.Equal(t, "bob", c.Owner)
	assert.Equal(t, 0, store.Len())
}

func TestService_SignOutClearThenOtherIdentity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	alice := newSession("device-1", "alice")

	_, err := svc.Add(ctx, alice, "p2", 1)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, alice))

	c, err := svc.Get(ctx, newSession("device-1", "bob"))
	require.NoError(t, err)
	assert.True(t, c.Empty())
}
