package cart

import (
	"context"
	"time"
)

// NoticeTTL is how long an add-to-cart confirmation stays visible.
const NoticeTTL = 3 * time.Second

// Notice is a transient, user-visible confirmation of a cart mutation.
type Notice struct {
	Message   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store persists carts keyed by session ID.
type Store interface {
	// Load returns the stored cart, or nil when none exists.
	Load(ctx context.Context, key string) (*Cart, error)
	Save(ctx context.Context, key string, c *Cart) error
	// Delete removes the stored cart. Deleting a missing cart is not an error.
	Delete(ctx context.Context, key string) error
}

// Notifier keeps transient notices per session.
type Notifier interface {
	Notify(ctx context.Context, key string, n Notice) error
	// Pending returns notices that have not expired at now, oldest first.
	Pending(ctx context.Context, key string, now time.Time) ([]Notice, error)
	// Discard drops every notice for the session.
	Discard(ctx context.Context, key string) error
}
