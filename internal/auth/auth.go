package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gogain/ledger/internal/rbac"
)

var (
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Identity represents an authenticated session's claims. SessionID is the
// token's jti and keys the revocable session record.
type Identity struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PrincipalLoader resolves the current persisted principal for a user id.
// Implementations return an error wrapping ErrUserNotFound when the user
// no longer exists.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID string) (*rbac.Principal, error)
}

// SessionChecker reports whether a session is still live.
type SessionChecker interface {
	Active(ctx context.Context, sessionID, userID string) (bool, error)
}
