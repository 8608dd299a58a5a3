// Package memory provides process-local stores used when Redis is not
// configured and in tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/metagear/storefront/internal/domain/cart"
)

var (
	_ cart.Store    = (*CartStore)(nil)
	_ cart.Notifier = (*NoticeStore)(nil)
)

// CartStore keeps carts in a map. Stored carts are deep-copied on the way in
// and out so callers never share line slices.
type CartStore struct {
	mu    sync.Mutex
	carts map[string]*cart.Cart
}

// NewCartStore returns an empty CartStore.
func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string]*cart.Cart)}
}

// Load returns a copy of the stored cart, or nil.
func (s *CartStore) Load(_ context.Context, key string) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[key]
	if !ok {
		return nil, nil
	}
	return clone(c), nil
}

// Save stores a copy of c under key.
func (s *CartStore) Save(_ context.Context, key string, c *cart.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.carts[key] = clone(c)
	return nil
}

// Delete removes the cart stored under key.
func (s *CartStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, key)
	return nil
}

// Len returns the number of stored carts.
func (s *CartStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.carts)
}

func clone(c *cart.Cart) *cart.Cart {
	return &cart.Cart{
		Owner:     c.Owner,
		Lines:     slices.Clone(c.Lines),
		UpdatedAt: c.UpdatedAt,
	}
}

// NoticeStore keeps transient notices per session in memory.
type NoticeStore struct {
	mu      sync.Mutex
	notices map[string][]cart.Notice
}

// NewNoticeStore returns an empty NoticeStore.
func NewNoticeStore() *NoticeStore {
	return &NoticeStore{notices: make(map[string][]cart.Notice)}
}

// Notify appends n to the session's notices.
func (s *NoticeStore) Notify(_ context.Context, key string, n cart.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notices[key] = append(s.notices[key], n)
	return nil
}

// Pending drops expired notices and returns the remaining ones.
func (s *NoticeStore) Pending(_ context.Context, key string, now time.Time) ([]cart.Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := slices.DeleteFunc(s.notices[key], func(n cart.Notice) bool {
		return !now.Before(n.ExpiresAt)
	})
	if len(live) == 0 {
		delete(s.notices, key)
		return nil, nil
	}
	s.notices[key] = live
	return slices.Clone(live), nil
}

// Discard drops every notice for the session.
func (s *NoticeStore) Discard(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.notices, key)
	return nil
}
