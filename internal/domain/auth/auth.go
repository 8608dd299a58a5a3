package auth

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrUnauthenticated is returned when an operation needs a signed-in
	// subject and the caller has no session.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the subject lacks a required role.
	ErrForbidden = errors.New("access denied")
	// ErrInvalidToken is returned when a bearer token cannot be verified,
	// has expired, or belongs to a revoked session.
	ErrInvalidToken = errors.New("invalid session token")
)

// Role is a capability claim issued by the identity provider.
type Role string

// RoleAdmin grants access to the inventory views.
const RoleAdmin Role = "admin"

// Subject is the authenticated identity behind a session. Its ID owns the
// orders placed during the session.
type Subject struct {
	ID    string
	Email string
	Roles []Role
}

// HasRole reports whether the subject carries the given role claim.
func (s Subject) HasRole(r Role) bool {
	return slices.Contains(s.Roles, r)
}

// Session is a verified sign-in issued by the identity provider.
type Session struct {
	ID        string
	Subject   Subject
	ExpiresAt time.Time
}

// Provider verifies tokens issued by the external identity provider and
// ends sessions.
type Provider interface {
	// Authenticate resolves a bearer token into a session. It returns
	// ErrInvalidToken for tokens that fail verification.
	Authenticate(ctx context.Context, token string) (*Session, error)
	// SignOut revokes the session so its token is no longer accepted.
	SignOut(ctx context.Context, s *Session) error
}

// IsAdmin is the single authorization predicate for privileged views.
func IsAdmin(s *Session) bool {
	return s != nil && s.Subject.HasRole(RoleAdmin)
}

type sessionKey struct{}

// WithSession returns a copy of ctx carrying the session.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session stored in ctx, if any.
func SessionFrom(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

// Require returns the session stored in ctx or ErrUnauthenticated.
func Require(ctx context.Context) (*Session, error) {
	s, ok := SessionFrom(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return s, nil
}

// RequireAdmin returns the session stored in ctx when it carries the admin
// role. It returns ErrUnauthenticated without a session and ErrForbidden when
// the role is missing.
func RequireAdmin(ctx context.Context) (*Session, error) {
	s, err := Require(ctx)
	if err != nil {
		return nil, err
	}
	if !IsAdmin(s) {
		return nil, ErrForbidden
	}
	return s, nil
}
