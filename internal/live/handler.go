package live

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/altss/altss/internal/auth"
	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/events"
	"github.com/altss/altss/internal/favorites"
	"github.com/altss/altss/internal/listview"
	"github.com/altss/altss/internal/platform/poll"
)

// DefaultStatusInterval is how often the waiting screen rechecks approval.
const DefaultStatusInterval = 8 * time.Second

// AccountSource reads the signed-in account.
type AccountSource interface {
	CurrentAccount(ctx context.Context) (backend.Account, error)
}

// Options configures the live handler.
type Options struct {
	Logger         *slog.Logger
	Screens        []Mounter
	Bridge         *favorites.Bridge
	Bus            events.Bus
	Enricher       Enricher
	Accounts       AccountSource
	Debounce       time.Duration
	StatusInterval time.Duration
	Metrics        listview.Metrics
}

// Handler upgrades list and status connections.
type Handler struct {
	opts     Options
	logger   *slog.Logger
	screens  map[string]Mounter
	upgrader websocket.Upgrader
}

// NewHandler builds a Handler.
func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	h := &Handler{
		opts:     opts,
		logger:   opts.Logger,
		screens:  make(map[string]Mounter, len(opts.Screens)),
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}
	for _, s := range opts.Screens {
		h.screens[s.Entity()] = s
	}
	return h
}

// MountRoutes registers the websocket endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	h.MountStatus(r)
	h.MountViews(r)
}

// MountStatus registers the account status stream, which pending users need.
func (h *Handler) MountStatus(r chi.Router) {
	r.Get("/status", h.serveStatus)
}

// MountViews registers the list and cabinet streams.
func (h *Handler) MountViews(r chi.Router) {
	r.Get("/cabinet", h.serveCabinet)
	r.Get("/{entity}", h.serveList)
}

func (h *Handler) serveList(w http.ResponseWriter, r *http.Request) {
	screen, ok := h.screens[chi.URLParam(r, "entity")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	query := listview.ParseQuery(r.URL.Query(), screen.Facets()...)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("live upgrade failed", slog.Any("error", err))
		return
	}
	logger := h.logger.With(slog.String("user_id", principal.UserID))
	conn := newConn(ws, logger.With(slog.String("entity", screen.Entity())))

	// The request context ends when the handler returns; the connection
	// outlives it until the read loop exits.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	marks := favorites.NewMarks(nil)
	if h.opts.Bridge != nil {
		loaded, err := h.opts.Bridge.Load(ctx)
		if err != nil {
			logger.Warn("load favorites failed", slog.Any("error", err))
		} else {
			marks = loaded
		}
	}

	sess := screen.Mount(ctx, Env{
		UserID:   principal.UserID,
		Query:    query,
		Send:     conn.Send,
		Marks:    marks,
		Bridge:   h.opts.Bridge,
		Bus:      h.opts.Bus,
		Enricher: h.opts.Enricher,
		Debounce: h.opts.Debounce,
		Logger:   logger,
		Metrics:  h.opts.Metrics,
	})
	logger.Debug("live list mounted", slog.String("entity", screen.Entity()))

	conn.ReadLoop(ctx, func(msg Message) { sess.Handle(ctx, msg) })

	sess.Close()
	conn.Close()
	conn.Wait()
	logger.Debug("live list closed", slog.String("entity", screen.Entity()))
}

func (h *Handler) serveStatus(w http.ResponseWriter, r *http.Request) {
	if h.opts.Accounts == nil {
		http.NotFound(w, r)
		return
	}
	if _, ok := auth.PrincipalFromContext(r.Context()); !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("live upgrade failed", slog.Any("error", err))
		return
	}
	conn := newConn(ws, h.logger)
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	task := poll.Start(ctx, h.opts.StatusInterval, func(ctx context.Context) error {
		acc, err := h.opts.Accounts.CurrentAccount(ctx)
		if err != nil {
			h.logger.Warn("status poll failed", slog.Any("error", err))
			return nil
		}
		dest := auth.Destination(acc)
		if dest == auth.PathWaitingApproval {
			return nil
		}
		conn.Send(Envelope{Type: OutStatus, Status: acc.Status, Redirect: dest})
		return poll.Done
	})

	conn.ReadLoop(ctx, func(Message) {})

	task.Stop()
	conn.Close()
	conn.Wait()
}

// serveCabinet forwards the user's favorites and saved search changes so the
// cabinet page can refresh its lists.
func (h *Handler) serveCabinet(w http.ResponseWriter, r *http.Request) {
	if h.opts.Bus == nil {
		http.NotFound(w, r)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("live upgrade failed", slog.Any("error", err))
		return
	}
	conn := newConn(ws, h.logger.With(slog.String("user_id", principal.UserID)))
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	unsubFavorites := h.opts.Bus.Subscribe(events.TopicFavoritesUpdated, func(ctx context.Context, evt events.Event) {
		if evt.UserID != principal.UserID {
			return
		}
		var upd favorites.Updated
		if err := evt.Decode(&upd); err != nil {
			return
		}
		conn.Send(Envelope{Type: OutFavorites, Favorite: &upd})
	})
	unsubSearches := h.opts.Bus.Subscribe(events.TopicSavedSearchesUpdated, func(ctx context.Context, evt events.Event) {
		if evt.UserID == principal.UserID {
			conn.Send(Envelope{Type: OutSearches})
		}
	})

	conn.ReadLoop(ctx, func(Message) {})

	unsubFavorites()
	unsubSearches()
	conn.Close()
	conn.Wait()
}
