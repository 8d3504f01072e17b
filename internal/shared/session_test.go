package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessions(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "altss_session", "test-secret", time.Hour, false), mr
}

func commit(t *testing.T, sm *SessionManager, sess *Session) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func load(t *testing.T, sm *SessionManager, cookie *http.Cookie) *Session {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	return sess
}

func TestSessionRoundTripsThroughSignedCookie(t *testing.T) {
	sm, mr := newTestSessions(t)
	sess := load(t, sm, nil)
	sess.SetUser("user-1")
	sess.Set("pkce_verifier", "v1")
	sess.AddFlash(FlashMessage{Kind: "success", Message: "Welcome back"})
	cookie := commit(t, sm, sess)

	assert.True(t, strings.HasPrefix(cookie.Value, sess.ID+"."))
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.True(t, mr.Exists(sessionKeyPrefix+sess.ID))

	again := load(t, sm, cookie)
	assert.Equal(t, sess.ID, again.ID)
	assert.Equal(t, "user-1", again.User())
	assert.Equal(t, "v1", again.Get("pkce_verifier"))
	require.NotNil(t, again.PopFlash())
	assert.Nil(t, again.PopFlash())
}

func TestSessionRejectsForgedCookie(t *testing.T) {
	sm, _ := newTestSessions(t)
	sess := load(t, sm, nil)
	sess.SetUser("user-1")
	cookie := commit(t, sm, sess)

	forged := &http.Cookie{Name: cookie.Name, Value: sess.ID + ".bogus"}
	assert.Empty(t, load(t, sm, forged).User())
	unsigned := &http.Cookie{Name: cookie.Name, Value: sess.ID}
	assert.Empty(t, load(t, sm, unsigned).User())
}

func TestSessionRenewDropsOldKey(t *testing.T) {
	sm, mr := newTestSessions(t)
	sess := load(t, sm, nil)
	sess.Set("csrf_token", "tok")
	cookie := commit(t, sm, sess)
	oldID := sess.ID

	sess = load(t, sm, cookie)
	sess.Renew()
	sess.SetUser("user-1")
	cookie = commit(t, sm, sess)

	assert.NotEqual(t, oldID, sess.ID)
	assert.False(t, mr.Exists(sessionKeyPrefix+oldID))
	renewed := load(t, sm, cookie)
	assert.Equal(t, "user-1", renewed.User())
	assert.Equal(t, "tok", renewed.Get("csrf_token"))
}

func TestSessionDestroyExpiresCookie(t *testing.T) {
	sm, mr := newTestSessions(t)
	sess := load(t, sm, nil)
	sess.SetUser("user-1")
	commit(t, sm, sess)

	sm.Destroy(sess)
	cookie := commit(t, sm, sess)
	assert.Equal(t, -1, cookie.MaxAge)
	assert.False(t, mr.Exists(sessionKeyPrefix+sess.ID))
}

func TestCleanSessionOnlyExtendsExpiry(t *testing.T) {
	sm, mr := newTestSessions(t)
	sess := load(t, sm, nil)
	cookie := commit(t, sm, sess)

	mr.FastForward(30 * time.Minute)
	sess = load(t, sm, cookie)
	commit(t, sm, sess)
	assert.Equal(t, time.Hour, mr.TTL(sessionKeyPrefix+sess.ID))
}
