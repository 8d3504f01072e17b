package live

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/events"
	"github.com/altss/altss/internal/favorites"
	"github.com/altss/altss/internal/listview"
)

// Enricher resolves contact channels.
type Enricher interface {
	Enrich(ctx context.Context, contactID string, channels []string) (backend.EnrichResult, error)
}

// Env carries the per-connection dependencies handed to a screen.
type Env struct {
	UserID   string
	Query    listview.Query
	Send     func(Envelope)
	Marks    *favorites.Marks
	Bridge   *favorites.Bridge
	Bus      events.Bus
	Enricher Enricher
	Debounce time.Duration
	Logger   *slog.Logger
	Metrics  listview.Metrics
}

// Mounter creates list sessions for one entity.
type Mounter interface {
	Entity() string
	Facets() []string
	Mount(ctx context.Context, env Env) Session
}

// Session is a mounted list view driven by inbound messages.
type Session interface {
	Handle(ctx context.Context, msg Message)
	Close()
}

// Screen describes one directory list served over a live connection.
type Screen[T any] struct {
	Name      string
	Kind      backend.FavoriteKind
	Fetcher   listview.Fetcher[T]
	ID        func(T) string
	Mark      func(T, bool) T
	Columns   []listview.Column
	FacetKeys []string
	// Row projects an item for the browser. Items are sent as is when nil.
	Row func(item T, favorite bool) any
}

// Entity returns the screen name used in the URL.
func (s *Screen[T]) Entity() string { return s.Name }

// Facets returns the filter keys accepted from the URL.
func (s *Screen[T]) Facets() []string { return s.FacetKeys }

// Mount creates the controller, subscribes to favorite updates and starts
// the first fetch.
func (s *Screen[T]) Mount(ctx context.Context, env Env) Session {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	marks := env.Marks
	if marks == nil {
		marks = favorites.NewMarks(nil)
	}
	sess := &listSession[T]{screen: s, env: env, marks: marks, logger: logger.With(slog.String("entity", s.Name))}
	fetcher := listview.Fetcher[T](&favorites.Fetcher[T]{Inner: s.Fetcher, Marks: marks, Kind: s.Kind, ID: s.ID, Mark: s.Mark})
	sess.ctrl = listview.NewController(ctx, listview.Options[T]{
		Entity:   s.Name,
		Fetcher:  fetcher,
		ID:       s.ID,
		Columns:  s.Columns,
		Query:    env.Query,
		Debounce: env.Debounce,
		OnState: func(st listview.State[T]) {
			env.Send(Envelope{Type: OutState, State: newStatePayload(s.Name, st, sess.row)})
		},
		OnNotice: sess.Notify,
		Describe: backend.UserMessage,
		Logger:   logger,
		Metrics:  env.Metrics,
	})
	if env.Bus != nil {
		sess.unsubscribe = append(sess.unsubscribe,
			env.Bus.Subscribe(events.TopicFavoritesUpdated, sess.onFavoritesUpdated),
			env.Bus.Subscribe(events.TopicDirectoryChanged, sess.onDirectoryChanged),
		)
	}
	sess.ctrl.Refresh()
	return sess
}

type listSession[T any] struct {
	screen      *Screen[T]
	env         Env
	marks       *favorites.Marks
	ctrl        *listview.Controller[T]
	logger      *slog.Logger
	unsubscribe []func()
}

// Handle applies one inbound message.
func (ls *listSession[T]) Handle(ctx context.Context, msg Message) {
	switch msg.Type {
	case MsgSearch:
		ls.ctrl.SetSearch(msg.Value)
	case MsgPage:
		ls.ctrl.SetPage(msg.Page)
	case MsgPerPage:
		ls.ctrl.SetPerPage(msg.PerPage)
	case MsgFilters:
		ls.ctrl.SetFilters(msg.Filters)
	case MsgRefresh:
		ls.ctrl.Refresh()
	case MsgSelect:
		ls.ctrl.ToggleOne(msg.ID)
	case MsgClearSelection:
		ls.ctrl.ClearSelection()
	case MsgSelectAll:
		err := ls.ctrl.ToggleAll(ctx, listview.ParseScope(msg.Scope))
		switch {
		case errors.Is(err, listview.ErrScopeUnsupported):
			ls.Notify(listview.Notice{Kind: "info", Message: "Selecting every matching record is not available here."})
		case err != nil:
			ls.logger.Error("select all failed", slog.Any("error", err))
			ls.Notify(listview.Notice{Kind: "error", Message: backend.UserMessage(err)})
		}
	case MsgResize:
		if err := ls.ctrl.Resize(msg.Column, msg.Width); err != nil {
			ls.logger.Debug("resize rejected", slog.String("column", msg.Column), slog.Any("error", err))
		}
	case MsgFavorite:
		ls.toggleFavorite(ctx, msg.ID)
	case MsgEnrich:
		ls.enrich(ctx, msg)
	default:
		ls.logger.Debug("unknown live message", slog.String("type", msg.Type))
	}
}

// Close unmounts the view.
func (ls *listSession[T]) Close() {
	for _, unsubscribe := range ls.unsubscribe {
		unsubscribe()
	}
	ls.ctrl.Close()
}

func (ls *listSession[T]) row(item T) any {
	if ls.screen.Row == nil {
		return item
	}
	return ls.screen.Row(item, ls.marks.Has(favorites.Ref{Kind: ls.screen.Kind, ID: ls.screen.ID(item)}))
}

// FavoriteChanged applies a favorite flag to the visible row.
func (ls *listSession[T]) FavoriteChanged(ref favorites.Ref, favorite bool) {
	if ref.Kind != ls.screen.Kind || ls.screen.Mark == nil {
		return
	}
	ls.ctrl.Update(func(item T) T {
		if ls.screen.ID(item) == ref.ID {
			return ls.screen.Mark(item, favorite)
		}
		return item
	})
}

// Notify forwards a notice to the browser.
func (ls *listSession[T]) Notify(n listview.Notice) {
	ls.env.Send(Envelope{Type: OutNotice, Notice: &n})
}

func (ls *listSession[T]) toggleFavorite(ctx context.Context, id string) {
	if ls.env.Bridge == nil || ls.screen.Kind == "" {
		return
	}
	ref := favorites.Ref{Kind: ls.screen.Kind, ID: id}
	if _, err := ls.env.Bridge.Toggle(ctx, ls.env.UserID, ls.marks, ref, ls); err != nil && errors.Is(err, favorites.ErrInvalidRef) {
		ls.logger.Debug("favorite rejected", slog.String("id", id))
	}
}

func (ls *listSession[T]) onFavoritesUpdated(ctx context.Context, evt events.Event) {
	if evt.UserID != "" && evt.UserID != ls.env.UserID {
		return
	}
	var upd favorites.Updated
	if err := evt.Decode(&upd); err != nil {
		ls.logger.Warn("decode favorites update", slog.Any("error", err))
		return
	}
	ls.env.Send(Envelope{Type: OutFavorites, Favorite: &upd})
	if upd.Ref.Kind != ls.screen.Kind || ls.marks.Has(upd.Ref) == upd.Favorite {
		return
	}
	ls.marks.Set(upd.Ref, upd.Favorite)
	ls.FavoriteChanged(upd.Ref, upd.Favorite)
}

// onDirectoryChanged reloads the page after records were edited or enriched.
func (ls *listSession[T]) onDirectoryChanged(ctx context.Context, evt events.Event) {
	if evt.UserID != "" && evt.UserID != ls.env.UserID {
		return
	}
	ls.ctrl.Refresh()
}

func (ls *listSession[T]) enrich(ctx context.Context, msg Message) {
	if ls.env.Enricher == nil || ls.screen.Kind != backend.KindContact {
		return
	}
	res, err := ls.env.Enricher.Enrich(ctx, msg.ID, msg.Channels)
	var limit *backend.LimitError
	switch {
	case errors.As(err, &limit):
		ls.env.Send(Envelope{Type: OutLimit, Limit: newLimitPayload(limit)})
	case err != nil:
		ls.logger.Error("enrich contact failed", slog.String("id", msg.ID), slog.Any("error", err))
		ls.Notify(listview.Notice{Kind: "error", Message: backend.UserMessage(err)})
	default:
		ls.env.Send(Envelope{Type: OutEnriched, Enriched: &res})
		ls.ctrl.Refresh()
	}
}
