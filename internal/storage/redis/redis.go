// Package redis keeps session-scoped state in Redis: carts, transient
// notices and revoked sessions.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/metagear/storefront/internal/domain/cart"
	"github.com/metagear/storefront/internal/domain/product"
)

var (
	_ cart.Store    = (*CartStore)(nil)
	_ cart.Notifier = (*NoticeStore)(nil)
)

const (
	cartPrefix    = "cart:"
	noticePrefix  = "notice:"
	revokedPrefix = "revoked:"
)

// NewClient connects to the Redis server described by a redis:// URL and
// verifies the connection.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// CartStore persists carts as JSON values that expire after a period of
// inactivity.
type CartStore struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewCartStore returns a CartStore. A non-positive ttl keeps carts until they
// are deleted.
func NewCartStore(client *goredis.Client, ttl time.Duration) *CartStore {
	if ttl < 0 {
		ttl = 0
	}
	return &CartStore{client: client, ttl: ttl}
}

type cartRecord struct {
	Owner     string       `json:"owner"`
	Lines     []lineRecord `json:"lines"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type lineRecord struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	Category    string          `json:"category,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Quantity    int             `json:"quantity"`
}

// Load returns the stored cart, or nil when the key is absent.
func (s *CartStore) Load(ctx context.Context, key string) (*cart.Cart, error) {
	data, err := s.client.Get(ctx, cartPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting cart: %w", err)
	}

	var rec cartRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding cart: %w", err)
	}

	c := &cart.Cart{
		Owner:     rec.Owner,
		Lines:     make([]cart.Line, len(rec.Lines)),
		UpdatedAt: rec.UpdatedAt,
	}
	for i, l := range rec.Lines {
		c.Lines[i] = cart.Line{
			Product: product.Product{
				ID:          l.ProductID,
				Name:        l.Name,
				Price:       l.Price,
				Description: l.Description,
				ImageURL:    l.ImageURL,
				Category:    l.Category,
				CreatedAt:   l.CreatedAt,
			},
			Quantity: l.Quantity,
		}
	}
	return c, nil
}

// Save overwrites the stored cart and refreshes its expiry.
func (s *CartStore) Save(ctx context.Context, key string, c *cart.Cart) error {
	rec := cartRecord{
		Owner:     c.Owner,
		Lines:     make([]lineRecord, len(c.Lines)),
		UpdatedAt: c.UpdatedAt,
	}
	for i, l := range c.Lines {
		p := l.Product
		rec.Lines[i] = lineRecord{
			ProductID:   p.ID,
			Name:        p.Name,
			Price:       p.Price,
			Description: p.Description,
			ImageURL:    p.ImageURL,
			Category:    p.Category,
			CreatedAt:   p.CreatedAt,
			Quantity:    l.Quantity,
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding cart: %w", err)
	}
	if err := s.client.Set(ctx, cartPrefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("setting cart: %w", err)
	}
	return nil
}

// Delete removes the stored cart.
func (s *CartStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, cartPrefix+key).Err(); err != nil {
		return fmt.Errorf("deleting cart: %w", err)
	}
	return nil
}

// NoticeStore keeps notices in a sorted set scored by expiry time.
type NoticeStore struct {
	client *goredis.Client
}

// NewNoticeStore returns a NoticeStore.
func NewNoticeStore(client *goredis.Client) *NoticeStore {
	return &NoticeStore{client: client}
}

type noticeRecord struct {
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Notify adds a notice. The whole set expires with its newest notice.
func (s *NoticeStore) Notify(ctx context.Context, key string, n cart.Notice) error {
	data, err := json.Marshal(noticeRecord(n))
	if err != nil {
		return fmt.Errorf("encoding notice: %w", err)
	}

	k := noticePrefix + key
	_, err = s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.ZAdd(ctx, k, &goredis.Z{
			Score:  float64(n.ExpiresAt.UnixMilli()),
			Member: data,
		})
		p.PExpireAt(ctx, k, n.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("adding notice: %w", err)
	}
	return nil
}

// Pending drops expired notices and returns the rest in expiry order.
func (s *NoticeStore) Pending(ctx context.Context, key string, now time.Time) ([]cart.Notice, error) {
	k := noticePrefix + key
	cutoff := strconv.FormatInt(now.UnixMilli(), 10)

	var members *goredis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, k, "-inf", cutoff)
		members = p.ZRangeByScore(ctx, k, &goredis.ZRangeBy{Min: "(" + cutoff, Max: "+inf"})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading notices: %w", err)
	}

	raw := members.Val()
	notices := make([]cart.Notice, 0, len(raw))
	for _, m := range raw {
		var rec noticeRecord
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			return nil, fmt.Errorf("decoding notice: %w", err)
		}
		notices = append(notices, cart.Notice(rec))
	}
	return notices, nil
}

// Discard removes every notice for the session.
func (s *NoticeStore) Discard(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, noticePrefix+key).Err(); err != nil {
		return fmt.Errorf("deleting notices: %w", err)
	}
	return nil
}

// Denylist marks revoked sessions with keys that expire together with the
// session's token.
type Denylist struct {
	client *goredis.Client
	now    func() time.Time
}

// NewDenylist returns a Denylist.
func NewDenylist(client *goredis.Client) *Denylist {
	return &Denylist{client: client, now: time.Now}
}

// Revoke records sessionID as revoked until the given time. Sessions that
// have already expired are not recorded.
func (d *Denylist) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, revokedPrefix+sessionID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// Revoked reports whether sessionID has been revoked.
func (d *Denylist) Revoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := d.client.Exists(ctx, revokedPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("checking session: %w", err)
	}
	return n > 0, nil
}
