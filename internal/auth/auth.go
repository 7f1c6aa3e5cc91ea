// Package auth turns bearer tokens into the tenancy scope every ledger call
// is filtered by.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"conti/internal/core"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carries the user as the registered subject and the optional
// workspace the token is bound to.
type Claims struct {
	WorkspaceID string `json:"workspace,omitempty"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// WithClock replaces the time source used to check expiry.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	a.now = now
	return a
}

// Issue signs an HS256 token for scope valid for ttl.
func (a *Authenticator) Issue(scope core.Scope, ttl time.Duration) (string, error) {
	if err := scope.Validate(); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := a.now()
	claims := Claims{
		WorkspaceID: scope.WorkspaceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   scope.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates token and returns its scope.
func (a *Authenticator) Parse(token string) (core.Scope, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return core.Scope{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return core.Scope{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return core.Scope{UserID: claims.Subject, WorkspaceID: claims.WorkspaceID}, nil
}

func bearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: malformed Authorization header", ErrInvalidToken)
	}
	return strings.TrimSpace(token), nil
}

// Middleware rejects unauthenticated requests with 401 and stores the
// token's scope in the request context.
func (a *Authenticator) Middleware(onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearer(r)
			var scope core.Scope
			if err == nil {
				scope, err = a.Parse(token)
			}
			if err != nil {
				slog.DebugContext(r.Context(), "Request rejected by auth", "path", r.URL.Path, "error", err)
				if onError != nil {
					onError(w, r, err)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
		})
	}
}

type scopeKey struct{}

func WithScope(ctx context.Context, scope core.Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the authenticated scope stored by Middleware.
func ScopeFrom(ctx context.Context) (core.Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(core.Scope)
	return scope, ok
}
