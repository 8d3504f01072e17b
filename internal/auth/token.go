package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no access token is present.
	ErrMissingToken = errors.New("auth: missing token")
	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenExpired is returned for well-formed but expired tokens.
	ErrTokenExpired = errors.New("auth: token expired")
)

// Claims are the Supabase access token claims used by the dashboard.
type Claims struct {
	Email     string         `json:"email"`
	Role      string         `json:"role"`
	SessionID string         `json:"session_id"`
	Metadata  map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// TokenValidator verifies Supabase access tokens.
type TokenValidator struct {
	secret []byte
	now    func() time.Time
}

// NewTokenValidator creates a validator for HS256 tokens signed with the
// project JWT secret.
func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(strings.TrimSpace(secret)), now: time.Now}
}

// Validate parses token and checks signature, subject and expiry.
func (v *TokenValidator) Validate(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: jwt secret not configured", ErrInvalidToken)
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithLeeway(5*time.Second), jwt.WithTimeFunc(v.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
