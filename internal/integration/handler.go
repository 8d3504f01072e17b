package integration

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/altss/altss/internal/auth"
	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/directory"
	"github.com/altss/altss/internal/listview"
	"github.com/altss/altss/internal/rbac"
	"github.com/altss/altss/internal/shared"
	"github.com/altss/altss/internal/view"
)

const (
	writeLimit  = 30
	writeWindow = time.Minute
)

// Handler serves the company data-entry screens.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers integration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermIntegrationView, shared.PermIntegrationEdit))
		r.Get("/", h.list)
		r.Get("/{id}", h.showEdit)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermIntegrationEdit))
		r.Use(httprate.Limit(writeLimit, writeWindow, httprate.WithKeyFuncs(rateLimitKey)))
		r.Get("/new", h.showNew)
		r.Post("/", h.create)
		r.Post("/{id}", h.update)
		r.Post("/{id}/delete", h.delete)
	})
}

// ListView is the integration list page model.
type ListView struct {
	Companies []backend.Company
	Footer    listview.Footer
	Error     string
}

// FormView is the create/edit page model.
type FormView struct {
	ID        string
	Form      CompanyForm
	Errors    FieldErrors
	FirmTypes []directory.FacetOption
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := listview.ParseQuery(r.URL.Query())
	vm := ListView{}
	res, err := h.service.List(r.Context(), q)
	if err != nil {
		h.logger.Error("list companies", slog.Any("error", err))
		vm.Error = backend.UserMessage(err)
	}
	vm.Companies = res.Items
	vm.Footer = listview.NewFooter(q, res.Total)
	if err == nil && res.Total > 0 && vm.Footer.Query.Page != q.Page {
		http.Redirect(w, r, r.URL.Path+vm.Footer.Href(vm.Footer.Query.Page), http.StatusSeeOther)
		return
	}
	h.render(w, r, "pages/integration/list.html", "Integration", vm, http.StatusOK)
}

func (h *Handler) showNew(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, FormView{}, http.StatusOK)
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	company, err := h.service.Get(r.Context(), id)
	if errors.Is(err, backend.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logger.Error("load company", slog.String("company_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/integration", "danger", backend.UserMessage(err))
		return
	}
	h.renderForm(w, r, FormView{ID: id, Form: FormFromCompany(company)}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := FormFromValues(r.PostForm)
	company, err := h.service.Create(r.Context(), actorID(r), form)
	if err != nil {
		h.writeFailed(w, r, FormView{Form: form}, err)
		return
	}
	h.redirectWithFlash(w, r, "/integration", "success", company.Name+" was created.")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	form := FormFromValues(r.PostForm)
	company, err := h.service.Update(r.Context(), actorID(r), id, form)
	if err != nil {
		h.writeFailed(w, r, FormView{ID: id, Form: form}, err)
		return
	}
	h.redirectWithFlash(w, r, "/integration", "success", company.Name+" was updated.")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), actorID(r), id); err != nil {
		h.logger.Error("delete company", slog.String("company_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/integration", "danger", backend.UserMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/integration", "success", "Company deleted.")
}

func (h *Handler) writeFailed(w http.ResponseWriter, r *http.Request, vm FormView, err error) {
	var fields FieldErrors
	if errors.As(err, &fields) {
		vm.Errors = fields
		h.renderForm(w, r, vm, http.StatusUnprocessableEntity)
		return
	}
	h.logger.Error("company write failed", slog.String("company_id", vm.ID), slog.Any("error", err))
	vm.Errors = FieldErrors{"general": backend.UserMessage(err)}
	h.renderForm(w, r, vm, http.StatusBadGateway)
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, vm FormView, status int) {
	if vm.Errors == nil {
		vm.Errors = FieldErrors{}
	}
	vm.FirmTypes = directory.RankFacets("", directory.FirmTypes, view.Humanize)
	title := "New company"
	if vm.ID != "" {
		title = "Edit company"
	}
	h.render(w, r, "pages/integration/form.html", title, vm, status)
}

func actorID(r *http.Request) string {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p.UserID
}

func rateLimitKey(r *http.Request) (string, error) {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok && p.UserID != "" {
		return "user:" + p.UserID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: title, CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, User: auth.ViewUser(r.Context()), Data: data}
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
