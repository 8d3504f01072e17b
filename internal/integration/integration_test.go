package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altss/altss/internal/auth"
	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/events"
	"github.com/altss/altss/internal/rbac"
	"github.com/altss/altss/internal/view"
)

func TestParseAUM(t *testing.T) {
	cases := map[string]float64{
		"":          0,
		"-":         0,
		"$2.5B":     2.5e9,
		"120m":      120e6,
		"1,500,000": 1.5e6,
		" 750 K ":   750e3,
		"12.345":    12.35,
	}
	for raw, want := range cases {
		got, err := ParseAUM(raw)
		require.NoError(t, err, raw)
		assert.InDelta(t, want, got, 0.001, raw)
	}
	for _, raw := range []string{"abc", "-5M", "1e400"} {
		_, err := ParseAUM(raw)
		assert.Error(t, err, raw)
	}
}

type fakeCompanies struct {
	mu      sync.Mutex
	created []backend.Company
	deleted []string
	offsets []string
}

func (f *fakeCompanies) client(t *testing.T) *backend.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /companies", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.offsets = append(f.offsets, r.URL.Query().Get("offset"))
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []backend.Company{}, "itemsTotal": 15})
	})
	mux.HandleFunc("POST /companies", func(w http.ResponseWriter, r *http.Request) {
		var in backend.Company
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.mu.Lock()
		f.created = append(f.created, in)
		f.mu.Unlock()
		in.ID = "77"
		_ = json.NewEncoder(w).Encode(in)
	})
	mux.HandleFunc("GET /companies/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "77" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(backend.Company{ID: "77", Name: "Harbor Partners", FirmType: "venture_capital", AUM: 2.5e9})
	})
	mux.HandleFunc("DELETE /companies/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = append(f.deleted, r.PathValue("id"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return backend.NewClient(backend.Options{BaseURL: srv.URL, Timeout: time.Second})
}

type stubWarmup struct{ reasons []string }

func (s *stubWarmup) EnqueueDirectoryWarmup(ctx context.Context, reason string) error {
	s.reasons = append(s.reasons, reason)
	return nil
}

type fixture struct {
	router  chi.Router
	fake    *fakeCompanies
	cache   *backend.Cache
	warmup  *stubWarmup
	changes *[]Change
}

func newFixture(t *testing.T, role string) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := backend.NewCache(rdb, time.Minute)

	bus := events.NewLocalBus(nil)
	var changes []Change
	bus.Subscribe(events.TopicDirectoryChanged, func(ctx context.Context, evt events.Event) {
		var c Change
		if evt.Decode(&c) == nil {
			changes = append(changes, c)
		}
	})
	warmup := &stubWarmup{}
	fake := &fakeCompanies{}
	svc := NewService(fake.client(t), NewHooks(cache, bus, warmup, nil), nil, nil)

	templates, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(nil, svc, templates, nil, rbac.Middleware{Service: rbac.NewService(nil)})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := auth.ContextWithPrincipal(req.Context(), auth.Principal{UserID: "editor-1", Role: role})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/integration", h.MountRoutes)
	return fixture{router: r, fake: fake, cache: cache, warmup: warmup, changes: &changes}
}

func (f fixture) post(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateCompanyPropagatesChange(t *testing.T) {
	f := newFixture(t, rbac.RoleEditor)
	before, err := f.cache.Version(context.Background())
	require.NoError(t, err)

	rec := f.post("/integration", url.Values{
		"name":      {"Harbor Partners"},
		"firm_type": {"Venture Capital"},
		"website":   {"https://harbor.example"},
		"aum":       {"$2.5B"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/integration", rec.Header().Get("Location"))

	require.Len(t, f.fake.created, 1)
	assert.Equal(t, "venture_capital", f.fake.created[0].FirmType)
	assert.Equal(t, 2.5e9, f.fake.created[0].AUM)

	after, err := f.cache.Version(context.Background())
	require.NoError(t, err)
	assert.Greater(t, after, before)
	assert.Equal(t, []Change{{Action: "company.create", CompanyID: "77", ActorID: "editor-1"}}, *f.changes)
	assert.Equal(t, []string{"company.create"}, f.warmup.reasons)
}

func TestCreateRejectsInvalidForm(t *testing.T) {
	f := newFixture(t, rbac.RoleEditor)
	rec := f.post("/integration", url.Values{"name": {""}, "website": {"not a url"}, "aum": {"lots"}})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-field-error="aum"`)
	assert.Empty(t, f.fake.created)
	assert.Empty(t, *f.changes)

	rec = f.post("/integration", url.Values{"name": {""}, "website": {"not a url"}})
	body := rec.Body.String()
	assert.Contains(t, body, `data-field-error="name"`)
	assert.Contains(t, body, `data-field-error="firm_type"`)
	assert.Contains(t, body, `data-field-error="website"`)
}

func TestEditFormAndDelete(t *testing.T) {
	f := newFixture(t, rbac.RoleAdmin)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/integration/77", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="2500000000"`)
	assert.Contains(t, rec.Body.String(), `<option value="venture_capital" selected>`)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/integration/5", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.post("/integration/77/delete", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, []string{"77"}, f.fake.deleted)
}

func TestListPastLastPageRedirectsToFirst(t *testing.T) {
	f := newFixture(t, rbac.RoleEditor)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/integration?page=9&per_page=10", nil))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/integration", loc.Path)
	assert.Equal(t, "1", loc.Query().Get("page"))
	assert.Equal(t, []string{"80"}, f.fake.offsets)
}

func TestPlainUsersCannotWrite(t *testing.T) {
	f := newFixture(t, rbac.RoleUser)
	rec := f.post("/integration", url.Values{"name": {"X"}, "firm_type": {"family_office"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, f.fake.created)
}
