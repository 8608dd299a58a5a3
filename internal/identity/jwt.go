// Package identity verifies access tokens issued by the external identity
// provider and tracks revoked sessions.
package identity

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/metagear/storefront/internal/domain/auth"
)

// Compile-time check ensuring Verifier satisfies auth.Provider.
var _ auth.Provider = (*Verifier)(nil)

// Denylist stores revoked session IDs until their tokens would expire anyway.
type Denylist interface {
	Revoke(ctx context.Context, sessionID string, until time.Time) error
	Revoked(ctx context.Context, sessionID string) (bool, error)
}

// Config holds token verification settings.
type Config struct {
	// Secret is the HS256 key shared with the identity provider.
	Secret []byte
	// Issuer and Audience are checked only when set.
	Issuer   string
	Audience string
	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration
}

type claims struct {
	jwt.RegisteredClaims

	Email       string      `json:"email"`
	SessionID   string      `json:"session_id"`
	AppMetadata appMetadata `json:"app_metadata"`
}

// appMetadata is the provider-controlled part of the token. User-editable
// metadata never grants roles.
type appMetadata struct {
	Role  string   `json:"role"`
	Roles []string `json:"roles"`
}

// Verifier authenticates HS256 bearer tokens and revokes sessions on sign-out.
type Verifier struct {
	secret   []byte
	parser   *jwt.Parser
	denylist Denylist
	now      func() time.Time
}

// NewVerifier creates a Verifier. The secret must not be empty.
func NewVerifier(cfg Config, denylist Denylist) (*Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if denylist == nil {
		return nil, errors.New("denylist is required")
	}

	v := &Verifier{
		secret:   cfg.Secret,
		denylist: denylist,
		now:      time.Now,
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	v.parser = jwt.NewParser(opts...)
	return v, nil
}

// Authenticate verifies the token signature and claims, then rejects
// sessions that were signed out.
func (v *Verifier) Authenticate(ctx context.Context, token string) (*auth.Session, error) {
	var c claims
	if _, err := v.parser.ParseWithClaims(token, &c, v.key); err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", auth.ErrInvalidToken)
	}
	sid := sessionID(&c)
	if sid == "" {
		return nil, fmt.Errorf("%w: missing session id", auth.ErrInvalidToken)
	}

	sess := &auth.Session{
		ID: sid,
		Subject: auth.Subject{
			ID:    c.Subject,
			Email: c.Email,
			Roles: c.AppMetadata.roles(),
		},
		ExpiresAt: c.ExpiresAt.Time,
	}

	revoked, err := v.denylist.Revoked(ctx, sess.ID)
	if err != nil {
		return nil, errors.Wrap(err, "check denylist")
	}
	if revoked {
		return nil, fmt.Errorf("%w: session signed out", auth.ErrInvalidToken)
	}
	return sess, nil
}

// SignOut revokes the session until its token expires.
func (v *Verifier) SignOut(ctx context.Context, s *auth.Session) error {
	if s == nil {
		return auth.ErrUnauthenticated
	}
	if err := v.denylist.Revoke(ctx, s.ID, s.ExpiresAt); err != nil {
		return errors.Wrap(err, "revoke session")
	}
	return nil
}

func (v *Verifier) key(*jwt.Token) (any, error) {
	return v.secret, nil
}

// sessionID prefers the provider's session claim, then the token ID. It is
// empty when the token carries neither; such tokens cannot be revoked alone.
func sessionID(c *claims) string {
	if c.SessionID != "" {
		return c.SessionID
	}
	return c.ID
}

func (m appMetadata) roles() []auth.Role {
	var roles []auth.Role
	add := func(r string) {
		if r == "" || slices.Contains(roles, auth.Role(r)) {
			return
		}
		roles = append(roles, auth.Role(r))
	}
	for _, r := range m.Roles {
		add(r)
	}
	add(m.Role)
	return roles
}
