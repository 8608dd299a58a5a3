package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(cfg RateLimitConfig) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(cfg)
	l.now = clock.now
	return l, clock
}

func doRequest(h http.Handler, mutate func(r *http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_OverLimit(t *testing.T) {
	l, _ := newTestLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	h := l.Middleware()(okHandler())

	for i := range 2 {
		w := doRequest(h, nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := doRequest(h, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, http.StatusTooManyRequests, body.Code)
	assert.Equal(t, "rate limit exceeded", body.Message)
}

func TestRateLimit_SlidingWindow(t *testing.T) {
	l, clock := newTestLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	h := l.Middleware()(okHandler())

	for range 4 {
		require.Equal(t, http.StatusOK, doRequest(h, nil).Code)
	}
	require.Equal(t, http.StatusTooManyRequests, doRequest(h, nil).Code)

	// Halfway into the next window half of the previous count still applies.
	clock.t = clock.t.Add(90 * time.Second)
	assert.Equal(t, http.StatusOK, doRequest(h, nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(h, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(h, nil).Code)

	// Two idle windows reset everything.
	clock.t = clock.t.Add(3 * time.Minute)
	assert.Equal(t, "3", doRequest(h, nil).Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_ClientKey(t *testing.T) {
	l, _ := newTestLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	h := l.Middleware()(okHandler())

	fromIP := func(ip string) func(*http.Request) {
		return func(r *http.Request) { r.RemoteAddr = ip + ":1000" }
	}
	withToken := func(ip, token string) func(*http.Request) {
		return func(r *http.Request) {
			r.RemoteAddr = ip + ":1000"
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}

	assert.Equal(t, http.StatusOK, doRequest(h, fromIP("10.0.0.1")).Code)
	assert.Equal(t, http.StatusOK, doRequest(h, fromIP("10.0.0.2")).Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(h, fromIP("10.0.0.1")).Code)

	// A bearer token has its own budget regardless of address.
	assert.Equal(t, http.StatusOK, doRequest(h, withToken("10.0.0.1", "tok-a")).Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(h, withToken("10.0.0.9", "tok-a")).Code)
	assert.Equal(t, http.StatusOK, doRequest(h, withToken("10.0.0.9", "tok-b")).Code)
}

func TestRateLimit_XForwardedFor(t *testing.T) {
	l, _ := newTestLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	h := l.Middleware()(okHandler())

	forwarded := func(remote string) func(*http.Request) {
		return func(r *http.Request) {
			r.RemoteAddr = remote
			r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
		}
	}
	assert.Equal(t, http.StatusOK, doRequest(h, forwarded("192.168.1.1:4444")).Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(h, forwarded("192.168.1.2:5555")).Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	h := NewLimiter(RateLimitConfig{}).Middleware()(okHandler())
	for range 10 {
		w := doRequest(h, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestLimiter_Sweep(t *testing.T) {
	l, clock := newTestLimiter(RateLimitConfig{Max: 5, Window: time.Minute})
	h := l.Middleware()(okHandler())

	doRequest(h, nil)
	require.Len(t, l.windows, 1)

	clock.t = clock.t.Add(time.Minute)
	l.Sweep()
	assert.Len(t, l.windows, 1)

	clock.t = clock.t.Add(2 * time.Minute)
	l.Sweep()
	assert.Empty(t, l.windows)
}
