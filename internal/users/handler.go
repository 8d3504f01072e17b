package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/altss/altss/internal/auth"
	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/listview"
	"github.com/altss/altss/internal/rbac"
	"github.com/altss/altss/internal/shared"
	"github.com/altss/altss/internal/view"
)

// Handler manages account administration endpoints.
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

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView, shared.PermUsersEdit))
		r.Get("/", h.listUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersEdit))
		r.Post("/{id}/plan", h.changePlan)
		r.Post("/{id}/status", h.changeStatus)
	})
}

// ListView is the admin users page model.
type ListView struct {
	Accounts []backend.Account
	Footer   listview.Footer
	Plans    []string
	Statuses []string
	Error    string
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := listview.ParseQuery(r.URL.Query())
	vm := ListView{Plans: Plans, Statuses: Statuses}
	res, err := h.service.ListUsers(r.Context(), q)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		vm.Error = backend.UserMessage(err)
	}
	vm.Accounts = res.Items
	vm.Footer = listview.NewFooter(q, res.Total)
	if err == nil && res.Total > 0 && vm.Footer.Query.Page != q.Page {
		http.Redirect(w, r, r.URL.Path+vm.Footer.Href(vm.Footer.Query.Page), http.StatusSeeOther)
		return
	}
	h.render(w, r, "pages/admin/users.html", vm, http.StatusOK)
}

func (h *Handler) changePlan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.redirectWithFlash(w, r, "danger", "Invalid form submission.")
		return
	}
	acc, err := h.service.ChangePlan(r.Context(), actorID(r), chi.URLParam(r, "id"), PlanInput{Plan: r.PostFormValue("plan")})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "success", acc.Email+" is now on the "+acc.Plan+" plan.")
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.redirectWithFlash(w, r, "danger", "Invalid form submission.")
		return
	}
	acc, err := h.service.ChangeStatus(r.Context(), actorID(r), chi.URLParam(r, "id"), StatusInput{Status: r.PostFormValue("status")})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "success", acc.Email+" is now "+acc.Status+".")
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrValidation) {
		h.redirectWithFlash(w, r, "danger", shared.UserSafeMessage(err))
		return
	}
	h.logger.Error("account change failed", slog.String("account_id", chi.URLParam(r, "id")), slog.Any("error", err))
	h.redirectWithFlash(w, r, "danger", backend.UserMessage(err))
}

func actorID(r *http.Request) string {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p.UserID
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Users", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, User: auth.ViewUser(r.Context()), Data: data}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

// redirectWithFlash returns to the list the form was posted from.
func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	location := "/admin/users"
	if back := r.PostFormValue("return"); len(back) > 0 && back[0] == '?' {
		location += back
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
