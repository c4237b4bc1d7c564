// Package auth verifies HS256 bearer tokens whose subject is the user id.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wilhg/a2ui/pkg/clock"
	"github.com/wilhg/a2ui/pkg/errmodel"
)

type ctxKey struct{}

// Verifier checks tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	clock  clock.Clock
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithIssuer requires and stamps the iss claim.
func WithIssuer(iss string) Option { return func(v *Verifier) { v.issuer = iss } }

func WithClock(c clock.Clock) Option { return func(v *Verifier) { v.clock = c } }

// NewVerifier returns a verifier for secret, which must not be empty.
func NewVerifier(secret string, opts ...Option) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	v := &Verifier{secret: []byte(secret), clock: clock.Real()}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

// Issue signs a token for userID valid for ttl.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := v.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify returns the user id carried by token.
func (v *Verifier) Verify(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock.Now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return v.secret, nil }, opts...); err != nil {
		return "", unauthorized(fmt.Sprintf("token rejected: %v", err))
	}
	if claims.Subject == "" {
		return "", unauthorized("token has no subject")
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// user id in the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			errmodel.WriteHTTP(w, r, unauthorized("missing bearer token"))
			return
		}
		userID, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			errmodel.WriteHTTP(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}

// WithUser returns ctx carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFrom returns the authenticated user id stored in ctx.
func UserFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

func unauthorized(msg string) error {
	return errmodel.Policy("unauthorized", msg, nil)
}
