// Package handler exposes the storefront over HTTP/JSON.
package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"

	"github.com/metagear/storefront/internal/domain/auth"
	"github.com/metagear/storefront/internal/domain/cart"
	"github.com/metagear/storefront/internal/domain/checkout"
	"github.com/metagear/storefront/internal/domain/order"
	"github.com/metagear/storefront/internal/domain/pricing"
	"github.com/metagear/storefront/internal/domain/product"
	"github.com/metagear/storefront/pkg/httpmiddleware"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
	Pricing      pricing.Policy
}

// Handler serves the /api routes, delegating to the domain services.
type Handler struct {
	products product.Repository
	carts    *cart.Service
	checkout *checkout.Service
	orders   order.Repository
	identity auth.Provider

	policy       pricing.Policy
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	products product.Repository,
	carts *cart.Service,
	checkoutSvc *checkout.Service,
	orders order.Repository,
	identity auth.Provider,
) *Handler {
	return &Handler{
		products:     products,
		carts:        carts,
		checkout:     checkoutSvc,
		orders:       orders,
		identity:     identity,
		policy:       cfg.Pricing,
		imageBaseURL: strings.TrimSuffix(cfg.ImageBaseURL, "/"),
	}
}

// Routes returns the API mux. Every route sees the caller's session, if any.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, httpmiddleware.Labeled(pattern, fn))
	}

	handle("GET /api/products", h.listProducts)
	handle("GET /api/products/{id}", h.getProduct)

	handle("GET /api/cart", h.getCart)
	handle("POST /api/cart/items", h.addCartItem)
	handle("DELETE /api/cart/items/{id}", h.removeCartItem)
	handle("DELETE /api/cart/items/{id}/all", h.removeCartLine)
	handle("DELETE /api/cart", h.clearCart)

	handle("POST /api/checkout", h.submitCheckout)
	handle("GET /api/orders", h.listOrders)
	handle("GET /api/admin/inventory", h.adminInventory)

	handle("GET /api/session", h.getSession)
	handle("POST /api/auth/signout", h.signOut)

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "route not found", nil)
	})

	return h.authenticate(mux)
}

// authenticate resolves the bearer token into a session. Requests without a
// token continue anonymously; a token that fails verification is rejected.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			h.fail(w, r, auth.ErrInvalidToken, nil)
			return
		}
		sess, err := h.identity.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				err = errors.Wrap(err, "authenticate")
			}
			h.fail(w, r, err, nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), sess)))
	})
}
