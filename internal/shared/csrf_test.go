package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFTokenIsStableWithinSession(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := newSession()

	token, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	again, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)
	assert.NoError(t, m.VerifyToken(context.Background(), sess, token))
}

func TestCSRFVerifyFailures(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := newSession()
	token, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)

	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), nil, token), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), newSession(), token), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, token+"x"), ErrCSRFTokenMismatch)

	_, err = m.EnsureToken(context.Background(), nil)
	assert.Error(t, err)
}

func TestCSRFTokenReissuedAfterRenew(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := newSession()
	token, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)

	sess.Renew()
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, token), ErrCSRFTokenMismatch)
	fresh, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.NotEqual(t, token, fresh)
	assert.NoError(t, m.VerifyToken(context.Background(), sess, fresh))
}
