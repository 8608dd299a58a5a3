package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/metagear/storefront/internal/domain/auth"
)

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFrom(r.Context())
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("authenticated")
		e.Bool(ok)
		if ok {
			e.FieldStart("user")
			e.ObjStart()
			e.FieldStart("id")
			e.Str(sess.Subject.ID)
			e.FieldStart("email")
			e.Str(sess.Subject.Email)
			e.ObjEnd()
			e.FieldStart("is_admin")
			e.Bool(auth.IsAdmin(sess))
			e.FieldStart("expires_at")
			encodeTime(e, sess.ExpiresAt)
		}
		e.ObjEnd()
	})
}

// signOut empties the session's cart and then revokes the session. Both steps
// run even if the first one fails.
func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	sess, err := auth.Require(r.Context())
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}

	clearErr := h.carts.Clear(r.Context(), sess)
	revokeErr := h.identity.SignOut(r.Context(), sess)
	switch {
	case clearErr != nil && revokeErr != nil:
		h.fail(w, r, fmt.Errorf("clear cart: %w; sign out: %w", clearErr, revokeErr), nil)
		return
	case clearErr != nil:
		h.fail(w, r, fmt.Errorf("clear cart: %w", clearErr), nil)
		return
	case revokeErr != nil:
		h.fail(w, r, fmt.Errorf("sign out: %w", revokeErr), nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
