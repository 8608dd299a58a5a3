package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/metagear/storefront/internal/domain/auth"
	"github.com/metagear/storefront/internal/domain/route"
)

func (h *Handler) submitCheckout(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFrom(r.Context())
	receipt, err := h.checkout.Submit(r.Context(), sess)
	if err != nil {
		h.fail(w, r, err, route.Checkout{})
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order")
		h.encodeOrder(e, receipt.Order)
		e.FieldStart("summary")
		encodeSummary(e, receipt.Summary)
		e.FieldStart("next")
		e.Str(receipt.Next.Path())
		e.ObjEnd()
	})
}

// listOrders returns the caller's orders, newest first.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	sess, err := auth.Require(r.Context())
	if err != nil {
		h.fail(w, r, err, route.Orders{})
		return
	}

	orders, err := h.orders.ListByUser(r.Context(), sess.Subject.ID)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			h.encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}
