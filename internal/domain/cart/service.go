package cart

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/metagear/storefront/internal/domain/auth"
	"github.com/metagear/storefront/internal/domain/product"
)

const lockStripes = 64

// Catalog looks up products being added to a cart.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*product.Product, error)
}

// Service applies cart operations for authenticated sessions. Mutations on
// the same session key are serialized within the process.
type Service struct {
	store    Store
	notices  Notifier
	products Catalog
	now      func() time.Time

	locks [lockStripes]sync.Mutex
}

// NewService creates a cart Service.
func NewService(store Store, notices Notifier, products Catalog) *Service {
	return &Service{
		store:    store,
		notices:  notices,
		products: products,
		now:      time.Now,
	}
}

// Get returns the session's cart. A stored cart owned by another subject is
// purged and an empty cart is returned instead.
func (s *Service) Get(ctx context.Context, sess *auth.Session) (*Cart, error) {
	if sess == nil {
		return nil, auth.ErrUnauthenticated
	}
	return s.load(ctx, sess)
}

// Add puts quantity units of the product into the session's cart and records
// a transient notice.
func (s *Service) Add(ctx context.Context, sess *auth.Session, productID string, quantity int) (*Cart, error) {
	if sess == nil {
		return nil, auth.ErrUnauthenticated
	}
	if quantity <= 0 || quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}

	c, err := s.mutate(ctx, sess, func(c *Cart) (bool, error) {
		return true, c.Add(*p, quantity)
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	notice := Notice{
		Message:   p.Name + " added to cart",
		CreatedAt: now,
		ExpiresAt: now.Add(NoticeTTL),
	}
	if err := s.notices.Notify(ctx, sess.ID, notice); err != nil {
		// Cart is already saved.
		zctx.From(ctx).Warn("Record cart notice", zap.Error(err))
	}
	return c, nil
}

// RemoveOne decrements the product's quantity by one. Absent products are a
// no-op.
func (s *Service) RemoveOne(ctx context.Context, sess *auth.Session, productID string) (*Cart, error) {
	if sess == nil {
		return nil, auth.ErrUnauthenticated
	}
	return s.mutate(ctx, sess, func(c *Cart) (bool, error) {
		return c.RemoveOne(productID), nil
	})
}

// RemoveAll drops the product's line.
func (s *Service) RemoveAll(ctx context.Context, sess *auth.Session, productID string) (*Cart, error) {
	if sess == nil {
		return nil, auth.ErrUnauthenticated
	}
	return s.mutate(ctx, sess, func(c *Cart) (bool, error) {
		return c.RemoveAll(productID), nil
	})
}

// Clear empties the session's cart and drops its notices. Clearing an empty
// cart is a no-op.
func (s *Service) Clear(ctx context.Context, sess *auth.Session) error {
	if sess == nil {
		return auth.ErrUnauthenticated
	}

	mu := s.lock(sess.ID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.store.Delete(ctx, sess.ID); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	if err := s.notices.Discard(ctx, sess.ID); err != nil {
		return errors.Wrap(err, "discard notices")
	}
	return nil
}

// Settle removes ordered lines from the session's cart. Units added after
// the order was read stay in the cart.
func (s *Service) Settle(ctx context.Context, sess *auth.Session, ordered []Line) error {
	if sess == nil {
		return auth.ErrUnauthenticated
	}
	_, err := s.mutate(ctx, sess, func(c *Cart) (bool, error) {
		return c.Deduct(ordered), nil
	})
	return err
}

// Notices returns the session's unexpired notices.
func (s *Service) Notices(ctx context.Context, sess *auth.Session) ([]Notice, error) {
	if sess == nil {
		return nil, auth.ErrUnauthenticated
	}
	notices, err := s.notices.Pending(ctx, sess.ID, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "pending notices")
	}
	return notices, nil
}

// mutate loads the cart under the session lock, applies fn and saves the
// result when fn reports a change.
func (s *Service) mutate(ctx context.Context, sess *auth.Session, fn func(c *Cart) (bool, error)) (*Cart, error) {
	mu := s.lock(sess.ID)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.load(ctx, sess)
	if err != nil {
		return nil, err
	}

	changed, err := fn(c)
	if err != nil {
		return nil, err
	}
	if !changed {
		return c, nil
	}

	c.UpdatedAt = s.now()
	if c.Empty() {
		if err := s.store.Delete(ctx, sess.ID); err != nil {
			return nil, errors.Wrap(err, "delete cart")
		}
		return c, nil
	}
	if err := s.store.Save(ctx, sess.ID, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

func (s *Service) load(ctx context.Context, sess *auth.Session) (*Cart, error) {
	c, err := s.store.Load(ctx, sess.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if c == nil {
		return New(sess.Subject.ID), nil
	}
	if c.Owner != sess.Subject.ID {
		zctx.From(ctx).Warn("Purging cart owned by another subject",
			zap.String("session_id", sess.ID),
		)
		if err := s.store.Delete(ctx, sess.ID); err != nil {
			return nil, errors.Wrap(err, "purge foreign cart")
		}
		return New(sess.Subject.ID), nil
	}
	return c, nil
}

func (s *Service) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.locks[h.Sum32()%lockStripes]
}
