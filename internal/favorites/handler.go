package favorites

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/altss/altss/internal/auth"
	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/listview"
	"github.com/altss/altss/internal/platform/httpx"
)

// Handler exposes favorites to pages without a live list, such as profiles
// and the cabinet.
type Handler struct {
	logger *slog.Logger
	bridge *Bridge
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, bridge *Bridge) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, bridge: bridge}
}

// MountRoutes registers favorites routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/toggle", h.toggle)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	favs, err := h.bridge.List(r.Context())
	if err != nil {
		h.logger.Error("list favorites", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Upstream Error", backend.UserMessage(err))
		return
	}
	if favs == nil {
		favs = []backend.Favorite{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": favs})
}

// noticeSink keeps the last notice of a toggle for the JSON response.
type noticeSink struct {
	notice *listview.Notice
}

func (s *noticeSink) FavoriteChanged(Ref, bool) {}

func (s *noticeSink) Notify(n listview.Notice) { s.notice = &n }

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	var ref Ref
	if err := httpx.DecodeJSON(r, &ref); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	marks, err := h.bridge.Load(r.Context())
	if err != nil {
		h.logger.Error("load favorites", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Upstream Error", backend.UserMessage(err))
		return
	}
	sink := &noticeSink{}
	favorite, err := h.bridge.Toggle(r.Context(), principal.UserID, marks, ref, sink)
	switch {
	case errors.Is(err, ErrInvalidRef):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "Unknown record.")
	case err != nil:
		msg := backend.UserMessage(err)
		if sink.notice != nil {
			msg = sink.notice.Message
		}
		httpx.Problem(w, http.StatusBadGateway, "Upstream Error", msg)
	default:
		httpx.JSON(w, http.StatusOK, Updated{Ref: ref, Favorite: favorite})
	}
}
