package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/metagear/storefront/internal/domain/auth"
	"github.com/metagear/storefront/internal/domain/product"
	"github.com/metagear/storefront/internal/domain/route"
)

// listProducts returns the catalog, newest first, narrowed by the optional
// search and category query parameters.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}

	q := r.URL.Query()
	products = product.Filter(products, product.Query{
		Search:   q.Get("search"),
		Category: q.Get("category"),
	})
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProducts(e, products)
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProduct(e, *p)
	})
}

// adminInventory lists the inventory matching q together with its stats.
// Only admins may see it.
func (h *Handler) adminInventory(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireAdmin(r.Context()); err != nil {
		h.fail(w, r, err, route.Admin{})
		return
	}

	products, err := h.products.List(r.Context())
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	products = product.Search(products, r.URL.Query().Get("q"))
	stats := product.Summarize(products)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("products")
		h.encodeProducts(e, products)
		e.FieldStart("stats")
		e.ObjStart()
		e.FieldStart("count")
		e.Int(stats.Count)
		e.FieldStart("value")
		encodeMoney(e, stats.Value)
		e.ObjEnd()
		e.ObjEnd()
	})
}
