package favorites

import (
	"context"
	"errors"
	"log/slog"

	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/events"
	"github.com/altss/altss/internal/listview"
)

// ErrInvalidRef is returned for refs with an unknown kind or empty id.
var ErrInvalidRef = errors.New("favorites: invalid reference")

// Store persists favorites upstream.
type Store interface {
	Favorites(ctx context.Context) ([]backend.Favorite, error)
	AddFavorite(ctx context.Context, kind backend.FavoriteKind, id string) error
	RemoveFavorite(ctx context.Context, kind backend.FavoriteKind, id string) error
}

// Sink receives the visible effects of a toggle.
type Sink interface {
	FavoriteChanged(ref Ref, favorite bool)
	Notify(n listview.Notice)
}

// Updated is the payload of events.TopicFavoritesUpdated.
type Updated struct {
	Ref      Ref  `json:"ref"`
	Favorite bool `json:"favorite"`
}

// Bridge applies favorite toggles optimistically and syncs them upstream.
type Bridge struct {
	store  Store
	bus    events.Bus
	logger *slog.Logger
}

// NewBridge constructs a Bridge.
func NewBridge(store Store, bus events.Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{store: store, bus: bus, logger: logger}
}

// Load fetches the favorites of the user carried by ctx.
func (b *Bridge) Load(ctx context.Context) (*Marks, error) {
	favs, err := b.store.Favorites(ctx)
	if err != nil {
		return NewMarks(nil), err
	}
	return NewMarks(favs), nil
}

// List returns the raw favorites of the user carried by ctx.
func (b *Bridge) List(ctx context.Context) ([]backend.Favorite, error) {
	return b.store.Favorites(ctx)
}

// Toggle flips the flag of ref. The sink sees the new flag before the
// upstream call; on failure the flag is reverted and an error notice is sent.
// It returns the flag in effect once the call has settled.
func (b *Bridge) Toggle(ctx context.Context, userID string, marks *Marks, ref Ref, sink Sink) (bool, error) {
	if !ref.Valid() {
		return false, ErrInvalidRef
	}
	prev := marks.Has(ref)
	next := !prev
	marks.Set(ref, next)
	sink.FavoriteChanged(ref, next)

	var err error
	if next {
		err = b.store.AddFavorite(ctx, ref.Kind, ref.ID)
	} else {
		err = b.store.RemoveFavorite(ctx, ref.Kind, ref.ID)
	}
	if err != nil {
		marks.Set(ref, prev)
		sink.FavoriteChanged(ref, prev)
		b.logger.Error("toggle favorite failed",
			slog.String("kind", string(ref.Kind)),
			slog.String("id", ref.ID),
			slog.Any("error", err),
		)
		sink.Notify(listview.Notice{Kind: "error", Message: "Could not update favorites. Please try again."})
		return prev, err
	}

	if b.bus != nil {
		evt, encErr := events.NewEvent(events.TopicFavoritesUpdated, userID, Updated{Ref: ref, Favorite: next})
		if encErr == nil {
			encErr = b.bus.Publish(ctx, evt)
		}
		if encErr != nil {
			b.logger.Warn("publish favorites update", slog.Any("error", encErr))
		}
	}
	return next, nil
}
