package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/metagear/storefront/internal/domain/auth"
	"github.com/metagear/storefront/internal/domain/cart"
	"github.com/metagear/storefront/internal/domain/route"
)

const maxBodyBytes = 4 << 10

type addItemRequest struct {
	ProductID string
	Quantity  int
}

func decodeAddItem(r *http.Request, w http.ResponseWriter) (addItemRequest, error) {
	req := addItemRequest{Quantity: 1}
	d := jx.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), 512)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "product_id":
			v, err := d.Str()
			if err != nil {
				return err
			}
			req.ProductID = v
		case "quantity":
			v, err := d.Int()
			if err != nil {
				return err
			}
			req.Quantity = v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return req, errors.Wrapf(errBadRequest, "decode body: %v", err)
	}
	if req.ProductID == "" {
		return req, errors.Wrap(errBadRequest, "product_id is required")
	}
	return req, nil
}

// respondCart writes the cart with its pricing summary and pending notices.
func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, sess *auth.Session, c *cart.Cart) {
	notices, err := h.carts.Notices(r.Context(), sess)
	if err != nil {
		h.fail(w, r, err, route.Cart{})
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeCart(e, c, notices)
	})
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFrom(r.Context())
	c, err := h.carts.Get(r.Context(), sess)
	if err != nil {
		h.fail(w, r, err, route.Cart{})
		return
	}
	h.respondCart(w, r, sess, c)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFrom(r.Context())
	if !ok {
		h.fail(w, r, auth.ErrUnauthenticated, route.Cart{})
		return
	}
	req, err := decodeAddItem(r, w)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}

	c, err := h.carts.Add(r.Context(), sess, req.ProductID, req.Quantity)
	if err != nil {
		h.fail(w, r, err, route.Details{ProductID: req.ProductID})
		return
	}
	h.respondCart(w, r, sess, c)
}

// removeCartItem takes one unit of the product out of the cart.
func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFrom(r.Context())
	c, err := h.carts.RemoveOne(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err, route.Cart{})
		return
	}
	h.respondCart(w, r, sess, c)
}

// removeCartLine drops the product's line whatever its quantity.
func (h *Handler) removeCartLine(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFrom(r.Context())
	c, err := h.carts.RemoveAll(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err, route.Cart{})
		return
	}
	h.respondCart(w, r, sess, c)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFrom(r.Context())
	if err := h.carts.Clear(r.Context(), sess); err != nil {
		h.fail(w, r, err, route.Cart{})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
