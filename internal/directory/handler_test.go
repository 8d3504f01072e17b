package directory

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/live"
	"github.com/altss/altss/internal/view"
	_ "github.com/altss/altss/testing"
)

// fakeBackend serves family offices and companies with limit/offset paging.
func fakeBackend(t *testing.T, offices int, fail bool) *backend.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/family-offices", func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		items := []map[string]any{}
		for i := offset; i < offices && i < offset+limit; i++ {
			items = append(items, map[string]any{"id": i + 1, "firm_name": fmt.Sprintf("Office %02d", i+1), "firm_type": "single_family_office"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items, "itemsTotal": offices})
	})
	mux.HandleFunc("/companies", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return backend.NewClient(backend.Options{BaseURL: srv.URL, Timeout: time.Second})
}

type stubRecords struct{}

func (stubRecords) FamilyOfficeProfile(ctx context.Context, id string) (backend.FamilyOfficeProfile, error) {
	if id != "7" {
		return backend.FamilyOfficeProfile{}, backend.ErrNotFound
	}
	return backend.FamilyOfficeProfile{
		Office: backend.FamilyOffice{ID: "7", FirmName: "Lakeside Capital", FirmType: "single_family_office"},
		Team:   []backend.TeamMember{{Name: "Ada Park", Title: "CIO"}},
		Focus:  backend.InvestmentFocus{Sectors: []string{"Fintech", "Health"}},
	}, nil
}

func (stubRecords) Company(ctx context.Context, id string) (backend.Company, error) {
	return backend.Company{}, backend.ErrNotFound
}

func (stubRecords) Contact(ctx context.Context, id string) (backend.Contact, error) {
	return backend.Contact{ID: backend.ID(id), Name: "Ada Park"}, nil
}

type stubPDF struct{ html string }

func (s *stubPDF) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	s.html = html
	return []byte("%PDF-1.7"), nil
}

func newRouter(t *testing.T, client *backend.Client, pdf PDFRenderer) chi.Router {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(Options{
		Templates: templates,
		Screens:   NewScreens(client, false),
		Records:   stubRecords{},
		PDF:       pdf,
	})
	h.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestListRendersFirstPageAndFooter(t *testing.T) {
	r := newRouter(t, fakeBackend(t, 30, false), nil)
	res := get(r, "/familyoffices?page=2&per_page=10")
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "Office 11")
	assert.NotContains(t, body, "Office 21")
	assert.Contains(t, body, "11–20 of 30")
	assert.Contains(t, body, `aria-current="page">2<`)
	assert.Contains(t, body, `data-live="/live/familyoffices?page=2&amp;per_page=10"`)
}

func TestListPastLastPageRedirectsToFirst(t *testing.T) {
	r := newRouter(t, fakeBackend(t, 30, false), nil)
	res := get(r, "/familyoffices?page=9&per_page=10&search=office")
	assert.Equal(t, http.StatusSeeOther, res.Code)
	loc, err := url.Parse(res.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/familyoffices", loc.Path)
	assert.Equal(t, "1", loc.Query().Get("page"))
	assert.Equal(t, "office", loc.Query().Get("search"))
}

func TestListUpstreamFailureShowsNotice(t *testing.T) {
	r := newRouter(t, fakeBackend(t, 0, true), nil)
	res := get(r, "/familyoffices")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `data-error`)
	assert.Contains(t, res.Body.String(), "No records match")
}

func TestExportCSVKeepsSelectedRows(t *testing.T) {
	r := newRouter(t, fakeBackend(t, 130, false), nil)
	form := url.Values{"ids": {"3,120"}}
	req := httptest.NewRequest(http.MethodPost, "/familyoffices/export.csv", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=familyoffices-20260301.csv", rec.Header().Get("Content-Disposition"))
	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "firm_name", records[0][1])
	assert.Equal(t, "Office 03", records[1][1])
	assert.Equal(t, "Office 120", records[2][1])
}

func TestProfileTabsAndPDF(t *testing.T) {
	pdf := &stubPDF{}
	r := newRouter(t, fakeBackend(t, 0, false), pdf)

	res := get(r, "/familyoffices/7?tab=team")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Ada Park")

	res = get(r, "/familyoffices/7/export.pdf")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "application/pdf", res.Header().Get("Content-Type"))
	assert.Contains(t, pdf.html, "Lakeside Capital")
	assert.Contains(t, pdf.html, "Fintech, Health")

	res = get(r, "/familyoffices/8")
	assert.Equal(t, http.StatusNotFound, res.Code)
	res = get(r, "/companies/1")
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestFirmTypeFacets(t *testing.T) {
	r := newRouter(t, fakeBackend(t, 0, false), nil)
	res := get(r, "/api/facets/firm-types?q=vent")
	require.Equal(t, http.StatusOK, res.Code)
	var body struct {
		Items []FacetOption `json:"items"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.NotEmpty(t, body.Items)
	assert.Equal(t, "venture_capital", body.Items[0].Value)
	assert.Equal(t, "Venture Capital", body.Items[0].Label)
}

func TestRankFacetsEmptyQueryKeepsOrder(t *testing.T) {
	options := RankFacets("", FirmTypes, view.Humanize)
	require.Len(t, options, len(FirmTypes))
	assert.Equal(t, "Single Family Office", options[0].Label)
}

func TestFormatAUM(t *testing.T) {
	assert.Equal(t, "$2.5B", formatAUM(2.5e9))
	assert.Equal(t, "$120.0M", formatAUM(120e6))
	assert.Equal(t, "-", formatAUM(0))
}

func TestLiveRowsMatchFirstPaint(t *testing.T) {
	screens := NewScreens(fakeBackend(t, 0, false), false)
	mounter, ok := screens[1].Mounter().(*live.Screen[backend.FamilyOffice])
	require.True(t, ok)
	require.NotNil(t, mounter.Row)

	row, ok := mounter.Row(backend.FamilyOffice{ID: "7", FirmName: "Lakeside Capital"}, true).(Row)
	require.True(t, ok)
	assert.Equal(t, "7", row.ID)
	assert.True(t, row.Favorite)
	assert.Equal(t, Cell{Text: "Lakeside Capital", Href: "/familyoffices/7"}, row.Cells[0])
}
