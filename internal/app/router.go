package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	audithttp "github.com/altss/altss/internal/audit/http"
	"github.com/altss/altss/internal/auth"
	"github.com/altss/altss/internal/cabinet"
	"github.com/altss/altss/internal/directory"
	"github.com/altss/altss/internal/enrichment"
	"github.com/altss/altss/internal/favorites"
	"github.com/altss/altss/internal/integration"
	"github.com/altss/altss/internal/live"
	"github.com/altss/altss/internal/observability"
	"github.com/altss/altss/internal/rbac"
	"github.com/altss/altss/internal/savedsearch"
	"github.com/altss/altss/internal/shared"
	"github.com/altss/altss/internal/users"
	"github.com/altss/altss/jobs"
	"github.com/altss/altss/report"
	"github.com/altss/altss/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Guard          *auth.Guard
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics

	AuthHandler        *auth.Handler
	DirectoryHandler   *directory.Handler
	LiveHandler        *live.Handler
	EnrichmentHandler  *enrichment.Handler
	SavedSearchHandler *savedsearch.Handler
	FavoritesHandler   *favorites.Handler
	CabinetHandler     *cabinet.Handler
	IntegrationHandler *integration.Handler
	UsersHandler       *users.Handler
	AuditHandler       *audithttp.Handler
	JobHandler         *jobs.Handler
	ReportHandler      *report.Handler
}

// NewRouter constructs the chi.Router with Altss defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	stack := MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	})
	r.Use(stack.Base...)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	// Websockets stay outside the request timeout and compression.
	if params.LiveHandler != nil {
		r.Route("/live", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(params.Guard.RequireUser)
				params.LiveHandler.MountStatus(r)
			})
			r.Group(func(r chi.Router) {
				r.Use(params.Guard.RequireApproved)
				params.LiveHandler.MountViews(r)
			})
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(stack.Request...)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.User() != "" {
				http.Redirect(w, r, auth.PathHome, http.StatusSeeOther)
				return
			}
			params.DirectoryHandler.ShowLanding(w, r)
		})
		params.AuthHandler.MountRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(params.Guard.RequireApproved)

			params.DirectoryHandler.MountRoutes(r)
			if params.CabinetHandler != nil {
				r.Route("/cabinet3", params.CabinetHandler.MountRoutes)
			}
			r.Route("/api", func(r chi.Router) {
				if params.EnrichmentHandler != nil {
					params.EnrichmentHandler.MountRoutes(r)
				}
				r.Route("/saved-searches", params.SavedSearchHandler.MountRoutes)
				r.Route("/favorites", params.FavoritesHandler.MountRoutes)
				r.Get("/permissions", params.RBACMiddleware.Permissions)
			})
			if params.IntegrationHandler != nil {
				r.Route("/integration", params.IntegrationHandler.MountRoutes)
			}
			if params.UsersHandler != nil {
				r.Route("/admin/users", params.UsersHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/admin/audit", params.AuditHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", func(r chi.Router) {
					r.Use(params.RBACMiddleware.RequireAny(shared.PermJobsView))
					params.JobHandler.MountRoutes(r)
				})
			}
			if params.ReportHandler != nil {
				r.Route("/report", func(r chi.Router) {
					r.Use(params.RBACMiddleware.RequireAny(shared.PermJobsView))
					params.ReportHandler.MountRoutes(r)
				})
			}
		})
	})

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
