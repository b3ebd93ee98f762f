package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gogain/ledger/internal/platform/httpx"
	"github.com/gogain/ledger/internal/rbac"
)

type identityContextKey struct{}

// WithIdentity stores identity in ctx.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// GetIdentity retrieves the authenticated identity from the request context.
func GetIdentity(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityContextKey{}).(*Identity)
	return identity
}

// Middleware authenticates bearer tokens. For each request it validates
// the JWT, checks that its session has not been revoked and loads the
// user's current principal, which is stored in the context for the
// authorization chain. Any failure ends the request with 401, or 500 when
// a backing store is unavailable.
func Middleware(tokens *TokenService, sessions SessionChecker, principals PrincipalLoader, rs *httpx.Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearerToken(r)
			if err != nil {
				rs.Error(w, r, httpx.Unauthenticated("Authentication required"))
				return
			}

			identity, err := tokens.ValidateToken(token)
			if err != nil {
				msg := "Invalid token"
				if errors.Is(err, ErrTokenExpired) {
					msg = "Token expired"
				}
				rs.Error(w, r, httpx.Unauthenticated(msg))
				return
			}

			active, err := sessions.Active(r.Context(), identity.SessionID, identity.UserID)
			if err != nil {
				rs.Error(w, r, httpx.Internal(err))
				return
			}
			if !active {
				rs.Error(w, r, httpx.Unauthenticated("Session expired or revoked"))
				return
			}

			principal, err := principals.LoadPrincipal(r.Context(), identity.UserID)
			if errors.Is(err, ErrUserNotFound) {
				rs.Error(w, r, httpx.Unauthenticated("Authentication required"))
				return
			}
			if err != nil {
				rs.Error(w, r, httpx.Internal(err))
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			ctx = rbac.WithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("invalid authorization header format")
	}

	return strings.TrimSpace(parts[1]), nil
}
