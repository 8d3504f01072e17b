// Package favorites tracks favorite flags of directory records and syncs
// toggles with the backend.
package favorites

import (
	"context"
	"strings"
	"sync"

	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/listview"
)

// Ref points at one favoritable record.
type Ref struct {
	Kind backend.FavoriteKind `json:"kind"`
	ID   string               `json:"id"`
}

func (r Ref) key() string { return string(r.Kind) + ":" + r.ID }

// Valid reports whether the ref can be sent upstream.
func (r Ref) Valid() bool { return r.Kind.Valid() && strings.TrimSpace(r.ID) != "" }

// Marks holds the favorite flags known to one view.
type Marks struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

// NewMarks builds marks from a fetched favorites list.
func NewMarks(favs []backend.Favorite) *Marks {
	m := &Marks{set: make(map[string]struct{}, len(favs))}
	for _, fav := range favs {
		m.set[Ref{Kind: fav.Kind, ID: fav.EntityID.String()}.key()] = struct{}{}
	}
	return m
}

// Has reports whether ref is a favorite.
func (m *Marks) Has(ref Ref) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.set[ref.key()]
	return ok
}

// Set records the flag for ref.
func (m *Marks) Set(ref Ref, favorite bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if favorite {
		m.set[ref.key()] = struct{}{}
		return
	}
	delete(m.set, ref.key())
}

// Len returns the number of favorites.
func (m *Marks) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.set)
}

// Annotate sets the favorite flag on every item through mark. Items are
// returned unchanged when there is nothing to mark with.
func Annotate[T any](m *Marks, kind backend.FavoriteKind, items []T, id func(T) string, mark func(T, bool) T) []T {
	if m == nil || id == nil || mark == nil {
		return items
	}
	for i, item := range items {
		items[i] = mark(item, m.Has(Ref{Kind: kind, ID: id(item)}))
	}
	return items
}

// Fetcher decorates a list fetcher so every fetched page carries the current
// favorite flags.
type Fetcher[T any] struct {
	Inner listview.Fetcher[T]
	Marks *Marks
	Kind  backend.FavoriteKind
	ID    func(T) string
	Mark  func(T, bool) T
}

// Fetch loads a page and annotates it.
func (f *Fetcher[T]) Fetch(ctx context.Context, q listview.Query) (listview.Result[T], error) {
	res, err := f.Inner.Fetch(ctx, q)
	if err != nil {
		return res, err
	}
	res.Items = Annotate(f.Marks, f.Kind, res.Items, f.ID, f.Mark)
	return res, nil
}

// MatchingIDs delegates to the wrapped fetcher when it can list ids.
func (f *Fetcher[T]) MatchingIDs(ctx context.Context, q listview.Query) ([]string, error) {
	lister, ok := f.Inner.(listview.IDLister)
	if !ok {
		return nil, listview.ErrScopeUnsupported
	}
	return lister.MatchingIDs(ctx, q)
}
