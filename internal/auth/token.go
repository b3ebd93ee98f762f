package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type ledgerClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

// TokenService handles JWT creation and validation.
type TokenService struct {
	signingKey  []byte
	issuer      string
	expiryHours int
}

func NewTokenService(signingKey, issuer string, expiryHours int) *TokenService {
	return &TokenService{
		signingKey:  []byte(signingKey),
		issuer:      issuer,
		expiryHours: expiryHours,
	}
}

// TTL is the lifetime of tokens issued by this service.
func (s *TokenService) TTL() time.Duration {
	return time.Duration(s.expiryHours) * time.Hour
}

// CreateAccessToken signs a token for identity. A missing SessionID is
// generated; SessionID and ExpiresAt are written back to identity.
func (s *TokenService) CreateAccessToken(identity *Identity) (string, error) {
	now := time.Now()
	if identity.SessionID == "" {
		identity.SessionID = uuid.NewString()
	}
	identity.ExpiresAt = now.Add(s.TTL())

	claims := ledgerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        identity.SessionID,
			Issuer:    s.issuer,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(identity.ExpiresAt),
		},
		UserID: identity.UserID,
		Email:  identity.Email,
		Role:   identity.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) ValidateToken(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ledgerClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*ledgerClaims)
	if !ok || !token.Valid || claims.UserID == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}

	identity := &Identity{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}
