package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/shared"
	"github.com/altss/altss/internal/view"
	_ "github.com/altss/altss/testing"
)

type stubIDP struct {
	password  string
	token     string
	refreshed int
	refreshTo string
}

func (s *stubIDP) SignInWithPassword(ctx context.Context, email, password string) (Tokens, error) {
	if password != s.password {
		return Tokens{}, shared.ErrInvalidCredentials
	}
	return Tokens{AccessToken: s.token, RefreshToken: "refresh-1"}, nil
}

func (s *stubIDP) SignUp(ctx context.Context, email, password, name, redirectTo string) (Tokens, error) {
	return Tokens{User: Identity{ID: "new", Email: email}}, nil
}

func (s *stubIDP) Recover(ctx context.Context, email, redirectTo, challenge string) error { return nil }

func (s *stubIDP) UpdatePassword(ctx context.Context, accessToken, password string) error {
	return nil
}

func (s *stubIDP) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	s.refreshed++
	return Tokens{AccessToken: s.refreshTo, RefreshToken: "refresh-2"}, nil
}

func (s *stubIDP) ExchangeCode(ctx context.Context, code, verifier string) (Tokens, error) {
	return Tokens{AccessToken: s.token}, nil
}

func (s *stubIDP) SignOut(ctx context.Context, accessToken string) error { return nil }

func (s *stubIDP) AuthorizeURL(provider, redirectTo, challenge string) string {
	return "https://idp.example/authorize?provider=" + provider + "&code_challenge=" + challenge
}

type stubAccounts struct {
	account    backend.Account
	calls      int
	registered []backend.Registration
}

func (s *stubAccounts) CurrentAccount(ctx context.Context) (backend.Account, error) {
	s.calls++
	if s.account.ID == "" {
		return backend.Account{}, backend.ErrNotFound
	}
	return s.account, nil
}

func (s *stubAccounts) Register(ctx context.Context, in backend.Registration) (backend.Account, error) {
	s.registered = append(s.registered, in)
	s.account = backend.Account{ID: "acc-new", Email: in.Email, Status: backend.StatusPending, Plan: backend.PlanTrial}
	return s.account, nil
}

type harness struct {
	t        *testing.T
	router   chi.Router
	sessions *shared.SessionManager
	cookie   *http.Cookie
	idp      *stubIDP
	accounts *stubAccounts
	guard    *Guard
}

func newHarness(t *testing.T, status string) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	sessions := shared.NewSessionManager(rdb, "test_session", "secret", time.Hour, false)
	templates, err := view.NewEngine()
	require.NoError(t, err)

	idp := &stubIDP{password: "correct-horse", token: signToken(t, testSecret, "user-1", time.Now().Add(time.Hour))}
	accounts := &stubAccounts{account: backend.Account{ID: "acc-1", Status: status, Plan: backend.PlanTrial}}
	service := NewService(idp, accounts, NewTokenValidator(testSecret), nil, nil)
	guard := NewGuard(service, nil, time.Minute)
	handler := NewHandler(nil, service, guard, templates, sessions, shared.NewCSRFManager("csrf"), "https://app.example")

	r := chi.NewRouter()
	handler.MountRoutes(r)
	r.With(guard.RequireApproved).Get("/familyoffices", func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		_, _ = w.Write([]byte("directory for " + p.UserID))
	})
	r.With(guard.RequireUser).Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return &harness{t: t, router: r, sessions: sessions, idp: idp, accounts: accounts, guard: guard}
}

// do runs req with the harness session and commits it afterwards.
func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	h.t.Helper()
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	sess, err := h.sessions.Load(req.Context(), req)
	require.NoError(h.t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req.WithContext(ctx))
	require.NoError(h.t, h.sessions.Commit(ctx, httptest.NewRecorder(), req, sess))
	h.cookie = &http.Cookie{Name: h.sessions.CookieName(), Value: h.sessions.CookieValue(sess)}
	return rec
}

func (h *harness) signIn(password string) *httptest.ResponseRecorder {
	form := url.Values{"email": {"user@test.local"}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req)
}

func TestAuthPage(t *testing.T) {
	h := newHarness(t, backend.StatusApproved)
	res := h.do(httptest.NewRequest(http.MethodGet, "/auth", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "<form")
}

func TestSignInInvalidCredentials(t *testing.T) {
	h := newHarness(t, backend.StatusApproved)
	res := h.signIn("wrong-pass")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Invalid email or password.")
}

func TestSignInRoutesByAccountStatus(t *testing.T) {
	cases := map[string]string{
		backend.StatusApproved: PathHome,
		backend.StatusPending:  PathWaitingApproval,
		backend.StatusBlocked:  PathAccessLimited,
	}
	for status, want := range cases {
		t.Run(status, func(t *testing.T) {
			h := newHarness(t, status)
			res := h.signIn("correct-horse")
			assert.Equal(t, http.StatusSeeOther, res.Code)
			assert.Equal(t, want, res.Header().Get("Location"))
		})
	}
}

func TestSignInRegistersMissingAccount(t *testing.T) {
	h := newHarness(t, backend.StatusApproved)
	h.accounts.account = backend.Account{}
	res := h.signIn("correct-horse")
	assert.Equal(t, PathWaitingApproval, res.Header().Get("Location"))
	require.Len(t, h.accounts.registered, 1)
	assert.Equal(t, "user-1", h.accounts.registered[0].ExternalID)
}

func TestGuardRejectsAnonymous(t *testing.T) {
	h := newHarness(t, backend.StatusApproved)

	res := h.do(httptest.NewRequest(http.MethodGet, "/familyoffices", nil))
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, PathAuth, res.Header().Get("Location"))

	res = h.do(httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, res.Header().Get("Content-Type"), "application/json")
}

func TestGuardAllowsApprovedUser(t *testing.T) {
	h := newHarness(t, backend.StatusApproved)
	h.signIn("correct-horse")

	res := h.do(httptest.NewRequest(http.MethodGet, "/familyoffices", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "directory for user-1", res.Body.String())
}

func TestGuardSendsPendingUserToWaitingScreen(t *testing.T) {
	h := newHarness(t, backend.StatusPending)
	h.signIn("correct-horse")

	res := h.do(httptest.NewRequest(http.MethodGet, "/familyoffices", nil))
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, PathWaitingApproval, res.Header().Get("Location"))

	res = h.do(httptest.NewRequest(http.MethodGet, PathWaitingApproval, nil))
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestGuardRechecksStatusAfterTTL(t *testing.T) {
	h := newHarness(t, backend.StatusPending)
	h.signIn("correct-horse")
	calls := h.accounts.calls

	h.accounts.account.Status = backend.StatusApproved
	h.guard.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	res := h.do(httptest.NewRequest(http.MethodGet, "/familyoffices", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, calls+1, h.accounts.calls)
}

func TestGuardRefreshesExpiredToken(t *testing.T) {
	h := newHarness(t, backend.StatusApproved)
	h.idp.token = signToken(t, testSecret, "user-1", time.Now().Add(-time.Minute))
	h.idp.refreshTo = signToken(t, testSecret, "user-1", time.Now().Add(time.Hour))

	// Sign-in validates the issued token, so seed the session directly.
	req := httptest.NewRequest(http.MethodGet, "/auth", nil)
	sess, err := h.sessions.Load(req.Context(), req)
	require.NoError(t, err)
	StoreLogin(sess, Login{
		Tokens:  Tokens{AccessToken: h.idp.token, RefreshToken: "refresh-1"},
		Claims:  &Claims{},
		Account: h.accounts.account,
	}, time.Now())
	sess.SetUser("user-1")
	require.NoError(t, h.sessions.Commit(req.Context(), httptest.NewRecorder(), req, sess))
	h.cookie = &http.Cookie{Name: h.sessions.CookieName(), Value: h.sessions.CookieValue(sess)}

	res := h.do(httptest.NewRequest(http.MethodGet, "/familyoffices", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 1, h.idp.refreshed)
}

func TestOAuthStartStoresVerifier(t *testing.T) {
	h := newHarness(t, backend.StatusApproved)
	res := h.do(httptest.NewRequest(http.MethodGet, "/auth/oauth/google", nil))
	assert.Equal(t, http.StatusFound, res.Code)
	assert.Contains(t, res.Header().Get("Location"), "provider=google")

	res = h.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc", nil))
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, PathHome, res.Header().Get("Location"))

	res = h.do(httptest.NewRequest(http.MethodGet, "/auth/oauth/myspace", nil))
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestCallbackWithoutVerifierFails(t *testing.T) {
	h := newHarness(t, backend.StatusApproved)
	res := h.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc", nil))
	assert.Equal(t, PathAuth, res.Header().Get("Location"))
}

func TestIsLocalPath(t *testing.T) {
	assert.True(t, isLocalPath("/reset-password"))
	assert.False(t, isLocalPath("//evil.example"))
	assert.False(t, isLocalPath("https://evil.example"))
	assert.False(t, isLocalPath(""))
}
