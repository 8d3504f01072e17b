package audithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altss/altss/internal/audit"
	"github.com/altss/altss/internal/auth"
	"github.com/altss/altss/internal/rbac"
	"github.com/altss/altss/internal/view"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	lastFilters audit.TimelineFilters
	calls       int
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	s.calls++
	return s.result, nil
}

func (s *stubTimelineService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	s.calls++
	return s.exportRows, nil
}

func newAuditRouter(t *testing.T, service *stubTimelineService, role string) chi.Router {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	handler := NewHandler(nil, service, templates, nil, rbac.Middleware{Service: rbac.NewService(nil)})
	handler.now = func() time.Time { return time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := auth.ContextWithPrincipal(req.Context(), auth.Principal{UserID: "u1", Role: role})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/admin/audit", handler.MountRoutes)
	return r
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestTimelineRequiresPermission(t *testing.T) {
	service := &stubTimelineService{}
	rec := get(newAuditRouter(t, service, rbac.RoleUser), "/admin/audit")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, service.calls)
}

func TestTimelineRendersRows(t *testing.T) {
	row := audit.TimelineRow{
		At:       time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		Actor:    "admin-7",
		Action:   "account.plan",
		Entity:   "account",
		EntityID: "u2",
		Meta:     map[string]any{"plan": "pro"},
	}
	service := &stubTimelineService{result: audit.Result{Rows: []audit.TimelineRow{row}, Paging: audit.PagingInfo{Page: 1, PageSize: 20, HasNext: true, NextPage: 2}}}
	rec := get(newAuditRouter(t, service, rbac.RoleAdmin), "/admin/audit?from=2026-03-01&to=2026-03-15&entity=account")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "admin-7")
	assert.Contains(t, body, "plan=pro")
	assert.Contains(t, body, `rel="next"`)
	assert.Contains(t, body, "/admin/audit/export.csv?entity=account&amp;from=2026-03-01&amp;to=2026-03-15")
	assert.Equal(t, "2026-03-01", service.lastFilters.From.Format(dateLayout))
	assert.Equal(t, "account", service.lastFilters.Entity)
}

func TestTimelineDefaultsToLastWeek(t *testing.T) {
	service := &stubTimelineService{}
	rec := get(newAuditRouter(t, service, rbac.RoleAdmin), "/admin/audit")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-03-08", service.lastFilters.From.Format(dateLayout))
	assert.Equal(t, "2026-03-15", service.lastFilters.To.Format(dateLayout))
	assert.Contains(t, rec.Body.String(), "No activity in this range.")
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	r := newAuditRouter(t, &stubTimelineService{}, rbac.RoleAdmin)
	for _, target := range []string{
		"/admin/audit?from=2026-03-10&to=2026-03-01",
		"/admin/audit?from=2025-01-01&to=2026-03-01",
		"/admin/audit?to=yesterday",
		"/admin/audit?page=0",
	} {
		assert.Equal(t, http.StatusBadRequest, get(r, target).Code, target)
	}
}

func TestExportCSVIsRateLimited(t *testing.T) {
	service := &stubTimelineService{exportRows: []audit.TimelineRow{{Actor: "admin-7", Action: "company.update", Entity: "company", EntityID: "42"}}}
	r := newAuditRouter(t, service, rbac.RoleAdmin)

	rec := get(r, "/admin/audit/export.csv?from=2026-03-01&to=2026-03-05")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "activity-20260305.csv")
	assert.Contains(t, rec.Body.String(), "company.update")

	for i := 1; i < rateLimit; i++ {
		require.Equal(t, http.StatusOK, get(r, "/admin/audit/export.csv").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/admin/audit/export.csv").Code)
}
