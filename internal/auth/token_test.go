package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signToken(t *testing.T, secret, subject string, expires time.Time) string {
	t.Helper()
	claims := Claims{
		Email: subject + "@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(expires.Add(-time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestTokenValidator(t *testing.T) {
	v := NewTokenValidator(testSecret)

	claims, err := v.Validate(signToken(t, testSecret, "user-1", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "user-1@example.com", claims.Email)

	_, err = v.Validate("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = v.Validate(signToken(t, testSecret, "user-1", time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = v.Validate(signToken(t, "another-secret", "user-1", time.Now().Add(time.Hour)))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Validate(signToken(t, testSecret, "", time.Now().Add(time.Hour)))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenValidatorRequiresSecret(t *testing.T) {
	_, err := NewTokenValidator(" ").Validate(signToken(t, testSecret, "u", time.Now().Add(time.Hour)))
	assert.ErrorIs(t, err, ErrInvalidToken)
}
