package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/metagear/storefront/internal/domain/auth"
	"github.com/metagear/storefront/internal/domain/cart"
	"github.com/metagear/storefront/internal/domain/checkout"
	"github.com/metagear/storefront/internal/domain/order"
	"github.com/metagear/storefront/internal/domain/pricing"
	"github.com/metagear/storefront/internal/domain/product"
	"github.com/metagear/storefront/internal/domain/route"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

type problem struct {
	status   int
	message  string
	redirect route.Route
}

// classify maps a domain error to its HTTP problem. returnTo is the view the
// client should come back to after signing in. Unknown errors yield nil.
func classify(err error, returnTo route.Route) *problem {
	var (
		stageErr    *checkout.StageError
		notFoundErr *checkout.ProductNotFoundError
	)
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		login := route.Login{}
		if returnTo != nil {
			login.Return = returnTo
		}
		return &problem{http.StatusUnauthorized, rootMessage(err), login}
	case errors.Is(err, auth.ErrForbidden):
		return &problem{http.StatusForbidden, err.Error(), route.Home{}}
	case errors.Is(err, errBadRequest):
		return &problem{status: http.StatusBadRequest, message: err.Error()}
	case errors.Is(err, product.ErrNotFound):
		return &problem{status: http.StatusNotFound, message: product.ErrNotFound.Error()}
	case errors.Is(err, cart.ErrInvalidQuantity):
		return &problem{status: http.StatusUnprocessableEntity, message: cart.ErrInvalidQuantity.Error()}
	case errors.Is(err, checkout.ErrEmptyCart):
		return &problem{http.StatusUnprocessableEntity, checkout.ErrEmptyCart.Error(), route.Cart{}}
	case errors.As(err, &notFoundErr):
		return &problem{http.StatusUnprocessableEntity, notFoundErr.Error(), route.Cart{}}
	case errors.Is(err, checkout.ErrCheckoutInProgress):
		return &problem{status: http.StatusConflict, message: checkout.ErrCheckoutInProgress.Error()}
	case errors.As(err, &stageErr):
		// Store errors are shown to the shopper as the store reported them.
		return &problem{http.StatusBadGateway, stageErr.Error(), route.Cart{}}
	}
	return nil
}

// rootMessage keeps the sentinel text and drops verification details.
func rootMessage(err error) string {
	if errors.Is(err, auth.ErrInvalidToken) {
		return auth.ErrInvalidToken.Error()
	}
	return auth.ErrUnauthenticated.Error()
}

// fail writes the problem for err. Unknown errors are logged and reported as
// 500 without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, returnTo route.Route) {
	p := classify(err, returnTo)
	if p == nil {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeProblem(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	var stageErr *checkout.StageError
	if errors.As(err, &stageErr) {
		zctx.From(r.Context()).Warn("Checkout write failed",
			zap.Stringer("stage", stageErr.Stage),
			zap.String("order_id", stageErr.OrderID),
			zap.Bool("orphaned", stageErr.Orphaned),
			zap.Error(err),
		)
	}
	writeProblem(w, p.status, p.message, p.redirect)
}

func writeProblem(w http.ResponseWriter, status int, message string, redirect route.Route) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(message)
		if redirect != nil {
			e.FieldStart("redirect")
			e.Str(redirect.Path())
		}
		e.ObjEnd()
	})
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// Encoders. Money is written as a JSON number with two decimals.

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" || strings.Contains(path, "://") {
		return path
	}
	return h.imageBaseURL + "/" + strings.TrimPrefix(path, "/")
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("image_url")
	e.Str(h.imageURL(p.ImageURL))
	e.FieldStart("category")
	e.Str(p.Category)
	if !p.CreatedAt.IsZero() {
		e.FieldStart("created_at")
		encodeTime(e, p.CreatedAt)
	}
	e.ObjEnd()
}

func (h *Handler) encodeProducts(e *jx.Encoder, products []product.Product) {
	e.ArrStart()
	for _, p := range products {
		h.encodeProduct(e, p)
	}
	e.ArrEnd()
}

func encodeSummary(e *jx.Encoder, s pricing.Summary) {
	e.ObjStart()
	e.FieldStart("units")
	e.Int(s.Units)
	e.FieldStart("subtotal")
	encodeMoney(e, s.Subtotal)
	e.FieldStart("shipping_fee")
	encodeMoney(e, s.ShippingFee)
	e.FieldStart("tax")
	encodeMoney(e, s.Tax)
	e.FieldStart("total")
	encodeMoney(e, s.Total)
	e.ObjEnd()
}

func (h *Handler) encodeCart(e *jx.Encoder, c *cart.Cart, notices []cart.Notice) {
	e.ObjStart()
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range c.Lines {
		e.ObjStart()
		e.FieldStart("product")
		h.encodeProduct(e, l.Product)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("line_total")
		encodeMoney(e, l.Total())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("summary")
	encodeSummary(e, h.policy.Summarize(c.Lines))
	e.FieldStart("notices")
	e.ArrStart()
	for _, n := range notices {
		e.ObjStart()
		e.FieldStart("message")
		e.Str(n.Message)
		e.FieldStart("expires_at")
		encodeTime(e, n.ExpiresAt)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func (h *Handler) encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("subtotal")
	encodeMoney(e, o.Subtotal)
	e.FieldStart("shipping_fee")
	encodeMoney(e, o.ShippingFee)
	e.FieldStart("tax")
	encodeMoney(e, o.Tax)
	e.FieldStart("total")
	encodeMoney(e, o.Total)
	e.FieldStart("created_at")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unit_price")
		encodeMoney(e, it.UnitPrice)
		e.FieldStart("line_total")
		encodeMoney(e, it.Total())
		if it.Product != nil {
			e.FieldStart("product")
			h.encodeProduct(e, *it.Product)
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
