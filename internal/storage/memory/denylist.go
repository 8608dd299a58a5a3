package memory

import (
	"context"
	"sync"
	"time"
)

// Denylist records revoked session IDs until their tokens expire.
type Denylist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewDenylist returns an empty Denylist.
func NewDenylist() *Denylist {
	return &Denylist{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke marks sessionID as revoked until the given time.
func (d *Denylist) Revoke(_ context.Context, sessionID string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.revoked[sessionID] = until
	return nil
}

// Revoked reports whether sessionID is currently revoked. Entries past their
// expiry are dropped.
func (d *Denylist) Revoked(_ context.Context, sessionID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	until, ok := d.revoked[sessionID]
	if !ok {
		return false, nil
	}
	if !d.now().Before(until) {
		delete(d.revoked, sessionID)
		return false, nil
	}
	return true, nil
}
