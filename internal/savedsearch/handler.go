package savedsearch

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/altss/altss/internal/platform/httpx"
	"github.com/altss/altss/internal/shared"
)

// Handler exposes saved searches as a JSON API.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers saved search routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.save)
	r.Delete("/{id}", h.remove)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	searches, err := h.service.List(r.Context(), currentUser(r))
	if err != nil {
		h.logger.Error("list saved searches", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if searches == nil {
		searches = []SavedSearch{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": searches})
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	var in SaveInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", "request body must be a JSON object")
		return
	}
	search, err := h.service.Save(r.Context(), currentUser(r), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, search)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "saved search not found")
		return
	}
	if err := h.service.Remove(r.Context(), currentUser(r), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", shared.UserSafeMessage(err))
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "saved search not found")
	default:
		h.logger.Error("saved search request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func currentUser(r *http.Request) string {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.User()
	}
	return ""
}
