package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/altss/altss/internal/auth"
	"github.com/altss/altss/internal/platform/httpx"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted, ok := m.granted(w, r)
			if !ok {
				return
			}
			if hasAnyPermission(granted, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			m.forbid(w, r)
		})
	}
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted, ok := m.granted(w, r)
			if !ok {
				return
			}
			if hasAllPermissions(granted, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			m.forbid(w, r)
		})
	}
}

func (m Middleware) granted(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		m.forbid(w, r)
		return nil, false
	}
	perms, err := m.Service.EffectivePermissions(r.Context(), p.Role)
	if errors.Is(err, ErrUnknownRole) {
		if m.Logger != nil {
			m.Logger.Warn("rbac unknown role", slog.String("user_id", p.UserID), slog.String("role", p.Role))
		}
		m.forbid(w, r)
		return nil, false
	}
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("rbac resolve permissions", slog.Any("error", err))
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}
	return perms, true
}

func (m Middleware) forbid(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "You do not have access to this page.")
		return
	}
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

// Permissions serves the signed-in user's permissions as JSON.
func (m Middleware) Permissions(w http.ResponseWriter, r *http.Request) {
	granted, ok := m.granted(w, r)
	if !ok {
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	perms := slices.Clone(granted)
	slices.Sort(perms)
	httpx.JSON(w, http.StatusOK, map[string]any{"role": p.Role, "permissions": perms})
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	slices.Sort(normalized)
	return normalized
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
