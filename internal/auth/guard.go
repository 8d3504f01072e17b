package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/platform/httpx"
	"github.com/altss/altss/internal/shared"
)

// Session keys written by the auth flows.
const (
	sessionAccessToken  = "access_token"
	sessionRefreshToken = "refresh_token"
	sessionEmail        = "email"
	sessionRole         = "role"
	sessionStatus       = "account_status"
	sessionPlan         = "account_plan"
	sessionCheckedAt    = "account_checked_at"
	sessionVerifier     = "pkce_verifier"
)

// StoreLogin writes a login into the session. A change of user moves the
// session to a fresh id.
func StoreLogin(sess *shared.Session, login Login, now time.Time) {
	if sess == nil {
		return
	}
	if sess.User() != login.Claims.Subject {
		sess.Renew()
	}
	sess.SetUser(login.Claims.Subject)
	sess.Set(sessionAccessToken, login.Tokens.AccessToken)
	sess.Set(sessionRefreshToken, login.Tokens.RefreshToken)
	sess.Set(sessionEmail, login.Claims.Email)
	storeAccount(sess, login.Account, now)
}

func storeAccount(sess *shared.Session, acc backend.Account, now time.Time) {
	sess.Set(sessionRole, acc.Role)
	sess.Set(sessionStatus, acc.Status)
	sess.Set(sessionPlan, acc.Plan)
	sess.Set(sessionCheckedAt, now.UTC().Format(time.RFC3339))
}

// ClearLogin removes auth state from the session.
func ClearLogin(sess *shared.Session) {
	if sess == nil {
		return
	}
	sess.SetUser("")
	for _, key := range []string{sessionAccessToken, sessionRefreshToken, sessionEmail, sessionRole, sessionStatus, sessionPlan, sessionCheckedAt} {
		sess.Delete(key)
	}
}

func principalFromSession(sess *shared.Session) Principal {
	p := Principal{
		UserID: sess.User(),
		Email:  sess.Get(sessionEmail),
		Role:   sess.Get(sessionRole),
		Status: sess.Get(sessionStatus),
		Plan:   sess.Get(sessionPlan),
		Token:  sess.Get(sessionAccessToken),
	}
	p.Checked, _ = time.Parse(time.RFC3339, sess.Get(sessionCheckedAt))
	return p
}

// Guard protects routes that require a signed-in, approved user.
type Guard struct {
	service   *Service
	logger    *slog.Logger
	statusTTL time.Duration
	now       func() time.Time
}

// NewGuard builds a Guard. The account status is re-read from the backend
// once it is older than statusTTL.
func NewGuard(service *Service, logger *slog.Logger, statusTTL time.Duration) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if statusTTL <= 0 {
		statusTTL = time.Minute
	}
	return &Guard{service: service, logger: logger, statusTTL: statusTTL, now: time.Now}
}

// RequireUser rejects anonymous requests and attaches the principal and the
// backend token to the request context.
func (g *Guard) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := g.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(backend.ContextWithToken(r.Context(), p.Token), p)))
	})
}

// RequireApproved additionally sends pending users to the waiting screen and
// blocked or expired users to the access-limited screen.
func (g *Guard) RequireApproved(next http.Handler) http.Handler {
	return g.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		if p.Approved() {
			next.ServeHTTP(w, r)
			return
		}
		dest := PathWaitingApproval
		if p.limited() {
			dest = PathAccessLimited
		}
		g.deny(w, r, http.StatusForbidden, dest)
	}))
}

func (g *Guard) authenticate(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		g.deny(w, r, http.StatusUnauthorized, PathAuth)
		return Principal{}, false
	}
	p := principalFromSession(sess)
	now := g.now()

	if _, err := g.service.Validate(p.Token); err != nil {
		if !errors.Is(err, ErrTokenExpired) {
			g.logger.Warn("invalid session token", slog.Any("error", err))
			ClearLogin(sess)
			g.deny(w, r, http.StatusUnauthorized, PathAuth)
			return Principal{}, false
		}
		login, err := g.service.Refresh(r.Context(), sess.Get(sessionRefreshToken))
		if err != nil {
			g.logger.Info("session refresh failed", slog.Any("error", err))
			ClearLogin(sess)
			g.deny(w, r, http.StatusUnauthorized, PathAuth)
			return Principal{}, false
		}
		StoreLogin(sess, login, now)
		return principalFromSession(sess), true
	}

	if now.Sub(p.Checked) >= g.statusTTL {
		acc, err := g.service.Account(r.Context(), p.Token)
		if err != nil {
			if errors.Is(err, backend.ErrUnauthorized) {
				ClearLogin(sess)
				g.deny(w, r, http.StatusUnauthorized, PathAuth)
				return Principal{}, false
			}
			// Keep the last known status when the backend is unreachable.
			g.logger.Warn("refresh account status", slog.Any("error", err))
			return p, true
		}
		storeAccount(sess, acc, now)
		p = principalFromSession(sess)
	}
	return p, true
}

func (g *Guard) deny(w http.ResponseWriter, r *http.Request, status int, location string) {
	if wantsJSON(r) {
		httpx.Problem(w, status, http.StatusText(status), location)
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.HasPrefix(r.URL.Path, "/live/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}
