package enrichment

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/altss/altss/internal/auth"
	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/platform/httpx"
	"github.com/altss/altss/internal/shared"
)

// Handler exposes enrichment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers enrichment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/contacts/enrich-bulk", h.enqueueBulk)
	r.Post("/contacts/{id}/enrich", h.enrich)
}

type enrichRequest struct {
	Channels []string `json:"channels"`
}

type bulkRequest struct {
	IDs      []string `json:"ids"`
	Channels []string `json:"channels"`
}

// LimitResponse is returned when a trial quota is exhausted.
type LimitResponse struct {
	Type    backend.LimitErrorType `json:"type"`
	Label   string                 `json:"label"`
	Message string                 `json:"message"`
}

func (h *Handler) enrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}
	id := chi.URLParam(r, "id")
	res, err := h.service.Enrich(r.Context(), id, req.Channels)
	if err != nil {
		h.respondError(w, err, slog.String("contact_id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) enqueueBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	queued, err := h.service.EnqueueBulk(r.Context(), principal.UserID, principal.Token, req.IDs, req.Channels)
	if err != nil {
		h.respondError(w, err, slog.Int("contacts", len(req.IDs)))
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"queued": len(queued.ContactIDs)})
}

func (h *Handler) respondError(w http.ResponseWriter, err error, attr slog.Attr) {
	var limit *backend.LimitError
	switch {
	case errors.As(err, &limit):
		httpx.JSON(w, backend.StatusLimitReached, LimitResponse{Type: limit.Type, Label: limit.Type.Label(), Message: limit.SafeMessage()})
	case errors.Is(err, ErrInvalidRequest):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", shared.UserSafeMessage(err))
	case errors.Is(err, ErrAlreadyQueued):
		httpx.Problem(w, http.StatusConflict, "Already Queued", "These contacts are already being enriched.")
	case errors.Is(err, backend.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "The contact could not be found.")
	case errors.Is(err, backend.ErrUnauthorized):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Please sign in again.")
	default:
		h.logger.Error("enrichment failed", attr, slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Upstream Error", backend.UserMessage(err))
	}
}
