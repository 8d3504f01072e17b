package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altss/altss/internal/auth"
	"github.com/altss/altss/internal/shared"
)

func serve(t *testing.T, mw func(http.Handler) http.Handler, role string, withPrincipal bool) int {
	t.Helper()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if withPrincipal {
		req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.Principal{UserID: "u1", Role: role}))
	}
	rec := httptest.NewRecorder()
	mw(ok).ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireAny(t *testing.T) {
	m := Middleware{Service: NewService(nil)}
	guard := m.RequireAny(shared.PermIntegrationEdit)

	assert.Equal(t, http.StatusNoContent, serve(t, guard, RoleAdmin, true))
	assert.Equal(t, http.StatusNoContent, serve(t, guard, "Editor", true))
	assert.Equal(t, http.StatusForbidden, serve(t, guard, RoleUser, true))
	assert.Equal(t, http.StatusForbidden, serve(t, guard, "intern", true))
	assert.Equal(t, http.StatusForbidden, serve(t, guard, RoleAdmin, false))
}

func TestRequireAll(t *testing.T) {
	m := Middleware{Service: NewService(nil)}
	guard := m.RequireAll(shared.PermUsersView, shared.PermUsersEdit)

	assert.Equal(t, http.StatusNoContent, serve(t, guard, RoleAdmin, true))
	assert.Equal(t, http.StatusForbidden, serve(t, guard, RoleEditor, true))
}

func TestPolicyOverrides(t *testing.T) {
	extra := ParsePolicy("user: jobs.view ; auditor:users.view,jobs.view;broken")
	s := NewService(DefaultPolicy().Merge(extra))

	assert.True(t, s.Can(RoleUser, shared.PermJobsView))
	assert.True(t, s.Can("auditor", "USERS.VIEW"))
	assert.False(t, s.Can("auditor", shared.PermUsersEdit))

	perms, err := s.EffectivePermissions(context.Background(), "auditor")
	require.NoError(t, err)
	assert.Equal(t, []string{"jobs.view", "users.view"}, perms)

	_, err = s.EffectivePermissions(context.Background(), "broken")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestPermissionsEndpoint(t *testing.T) {
	m := Middleware{Service: NewService(nil)}
	req := httptest.NewRequest(http.MethodGet, "/api/permissions", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.Principal{Role: RoleEditor}))
	rec := httptest.NewRecorder()
	m.Permissions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"role":"editor","permissions":["integration.edit","integration.view"]}`, rec.Body.String())
}
