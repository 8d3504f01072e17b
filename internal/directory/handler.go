package directory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/altss/altss/internal/auth"
	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/favorites"
	"github.com/altss/altss/internal/listview"
	"github.com/altss/altss/internal/platform/httpx"
	"github.com/altss/altss/internal/shared"
	"github.com/altss/altss/internal/view"
)

// Records loads single directory records.
type Records interface {
	FamilyOfficeProfile(ctx context.Context, id string) (backend.FamilyOfficeProfile, error)
	Company(ctx context.Context, id string) (backend.Company, error)
	Contact(ctx context.Context, id string) (backend.Contact, error)
}

// Counter reports directory totals for the landing page.
type Counter interface {
	FamilyOfficesCount(ctx context.Context) (int, error)
	ContactsCount(ctx context.Context) (int, error)
}

// PDFRenderer converts HTML into PDF.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Options configures the directory handler.
type Options struct {
	Logger    *slog.Logger
	Templates *view.Engine
	CSRF      *shared.CSRFManager
	Screens   []Screen
	Records   Records
	Counter   Counter
	Favorites *favorites.Bridge
	PDF       PDFRenderer
}

// Handler serves the directory screens.
type Handler struct {
	logger      *slog.Logger
	templates   *view.Engine
	csrfManager *shared.CSRFManager
	screens     []Screen
	records     Records
	counter     Counter
	favorites   *favorites.Bridge
	pdf         PDFRenderer
	now         func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		templates:   opts.Templates,
		csrfManager: opts.CSRF,
		screens:     opts.Screens,
		records:     opts.Records,
		counter:     opts.Counter,
		favorites:   opts.Favorites,
		pdf:         opts.PDF,
		now:         time.Now,
	}
}

// MountRoutes registers directory routes. Callers guard the router.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, s := range h.screens {
		r.Get("/"+s.Entity(), h.list(s))
		r.Post("/"+s.Entity()+"/export.csv", h.exportCSV(s))
	}
	r.Get("/companies/{id}", h.showCompany)
	r.Get("/familyoffices/{id}", h.showFamilyOffice)
	r.Get("/familyoffices/{id}/export.pdf", h.exportFamilyOffice)
	r.Get("/familyofficescontactsprofile/{id}", h.showContact)
	r.Get("/api/facets/firm-types", h.firmTypes)
}

// ShowLanding renders the public landing page.
func (h *Handler) ShowLanding(w http.ResponseWriter, r *http.Request) {
	data := map[string]int{}
	if h.counter != nil {
		if n, err := h.counter.FamilyOfficesCount(r.Context()); err == nil {
			data["FamilyOffices"] = n
		} else {
			h.logger.Warn("landing family office count", slog.Any("error", err))
		}
		if n, err := h.counter.ContactsCount(r.Context()); err == nil {
			data["Contacts"] = n
		} else {
			h.logger.Warn("landing contacts count", slog.Any("error", err))
		}
	}
	h.render(w, r, "pages/landing.html", "LP intelligence", data, http.StatusOK)
}

// ListView is the view model of a list screen.
type ListView struct {
	Entity     string
	Title      string
	Columns    []listview.Column
	Rows       []Row
	Footer     listview.Footer
	Query      listview.Query
	FirmTypes  []FacetOption
	HasFacets  bool
	Enrichable bool
	Error      string
	LiveURL    string
}

// Selected reports whether value is an active firm type filter.
func (v ListView) Selected(value string) bool {
	for _, f := range v.Query.Filter(FacetFirmType) {
		if f == value {
			return true
		}
	}
	return false
}

func (h *Handler) list(s Screen) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := listview.ParseQuery(r.URL.Query(), s.Facets()...)
		rows, total, err := s.Page(r.Context(), h.marks(r.Context()), q)
		vm := ListView{
			Entity:     s.Entity(),
			Title:      s.Title(),
			Columns:    s.Columns(),
			Rows:       rows,
			Query:      q,
			HasFacets:  len(s.Facets()) > 0,
			Enrichable: s.Enrichable(),
			LiveURL:    "/live/" + s.Entity() + "?" + q.URLValues().Encode(),
		}
		if vm.HasFacets {
			vm.FirmTypes = RankFacets("", FirmTypes, view.Humanize)
		}
		if err != nil {
			h.logger.Error("list fetch failed", slog.String("entity", s.Entity()), slog.Any("error", err))
			vm.Error = backend.UserMessage(err)
		}
		vm.Footer = listview.NewFooter(q, total)
		if err == nil && total > 0 && vm.Footer.Query.Page != q.Page {
			http.Redirect(w, r, r.URL.Path+vm.Footer.Href(vm.Footer.Query.Page), http.StatusSeeOther)
			return
		}
		h.render(w, r, "pages/directory/list.html", s.Title(), vm, http.StatusOK)
	}
}

func (h *Handler) exportCSV(s Screen) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		q := listview.ParseQuery(r.PostForm, s.Facets()...)
		ids := splitIDs(r.PostForm["ids"])
		records, err := s.Export(r.Context(), q, ids)
		if err != nil {
			h.logger.Error("csv export failed", slog.String("entity", s.Entity()), slog.Any("error", err))
			h.redirectWithFlash(w, r, "/"+s.Entity()+"?"+q.URLValues().Encode(), "error", backend.UserMessage(err))
			return
		}
		filename := fmt.Sprintf("%s-%s.csv", s.Entity(), h.now().UTC().Format("20060102"))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename="+filename)
		cw := csv.NewWriter(w)
		if err := cw.WriteAll(records); err != nil {
			h.logger.Error("write csv", slog.Any("error", err))
		}
	}
}

// ProfileView is the view model of a family office profile.
type ProfileView struct {
	Profile  backend.FamilyOfficeProfile
	Tab      string
	Tabs     []string
	Favorite bool
	Printed  time.Time
}

var profileTabs = []string{"overview", "team", "investment-focus", "deals"}

func (h *Handler) showFamilyOffice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	profile, err := h.records.FamilyOfficeProfile(r.Context(), id)
	if err != nil {
		h.recordError(w, r, "/"+EntityFamilyOffices, err)
		return
	}
	tab := r.URL.Query().Get("tab")
	if !contains(profileTabs, tab) {
		tab = profileTabs[0]
	}
	vm := ProfileView{
		Profile:  profile,
		Tab:      tab,
		Tabs:     profileTabs,
		Favorite: h.marks(r.Context()).Has(favorites.Ref{Kind: backend.KindFamilyOffice, ID: id}),
	}
	h.render(w, r, "pages/directory/familyoffice.html", profile.Office.FirmName, vm, http.StatusOK)
}

func (h *Handler) exportFamilyOffice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.pdf == nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	profile, err := h.records.FamilyOfficeProfile(r.Context(), id)
	if err != nil {
		h.recordError(w, r, "/"+EntityFamilyOffices, err)
		return
	}
	html, err := h.templates.RenderString("pages/directory/familyoffice_pdf.html", view.TemplateData{
		Title: profile.Office.FirmName,
		Data:  ProfileView{Profile: profile, Tabs: profileTabs, Printed: h.now()},
	})
	if err != nil {
		h.logger.Error("render profile pdf html", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	pdf, err := h.pdf.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Error("render profile pdf", slog.String("id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/familyoffices/"+url.PathEscape(id), "error", "Could not generate the PDF. Please try again.")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=family-office-%s.pdf", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) showCompany(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	company, err := h.records.Company(r.Context(), id)
	if err != nil {
		h.recordError(w, r, "/"+EntityCompanies, err)
		return
	}
	company.Favorite = h.marks(r.Context()).Has(favorites.Ref{Kind: backend.KindCompany, ID: id})
	h.render(w, r, "pages/directory/company.html", company.Name, company, http.StatusOK)
}

func (h *Handler) showContact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	contact, err := h.records.Contact(r.Context(), id)
	if err != nil {
		h.recordError(w, r, "/"+EntityOfficeContact, err)
		return
	}
	contact.Favorite = h.marks(r.Context()).Has(favorites.Ref{Kind: backend.KindContact, ID: id})
	h.render(w, r, "pages/directory/contact.html", contact.Name, contact, http.StatusOK)
}

func (h *Handler) firmTypes(w http.ResponseWriter, r *http.Request) {
	options := RankFacets(r.URL.Query().Get("q"), FirmTypes, view.Humanize)
	httpx.JSON(w, http.StatusOK, map[string]any{"items": options})
}

// marks loads the favorites of the signed-in user. Failures degrade to no
// marks.
func (h *Handler) marks(ctx context.Context) *favorites.Marks {
	if h.favorites == nil {
		return favorites.NewMarks(nil)
	}
	marks, err := h.favorites.Load(ctx)
	if err != nil {
		h.logger.Warn("load favorites", slog.Any("error", err))
		return favorites.NewMarks(nil)
	}
	return marks
}

func (h *Handler) recordError(w http.ResponseWriter, r *http.Request, back string, err error) {
	if errors.Is(err, backend.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	h.logger.Error("load record failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	h.redirectWithFlash(w, r, back, "error", backend.UserMessage(err))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		User:        auth.ViewUser(r.Context()),
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func splitIDs(raw []string) []string {
	var ids []string
	for _, v := range raw {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
