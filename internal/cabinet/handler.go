// Package cabinet renders the personal page listing a user's favorites and
// saved searches.
package cabinet

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sort"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/altss/altss/internal/auth"
	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/directory"
	"github.com/altss/altss/internal/listview"
	"github.com/altss/altss/internal/savedsearch"
	"github.com/altss/altss/internal/shared"
	"github.com/altss/altss/internal/view"
)

// FavoriteLister lists the favorites of the user carried by ctx.
type FavoriteLister interface {
	List(ctx context.Context) ([]backend.Favorite, error)
}

// SearchLister lists a user's saved searches.
type SearchLister interface {
	List(ctx context.Context, ownerID string) ([]savedsearch.SavedSearch, error)
}

// Handler serves the cabinet.
type Handler struct {
	logger    *slog.Logger
	favorites FavoriteLister
	searches  SearchLister
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, favorites FavoriteLister, searches SearchLister, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, favorites: favorites, searches: searches, templates: templates, csrf: csrf}
}

// MountRoutes registers the cabinet page.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
}

// FavoriteGroup is the favorites of one kind.
type FavoriteGroup struct {
	Kind  backend.FavoriteKind
	Title string
	Items []FavoriteLink
}

// FavoriteLink is one favorite with its profile link.
type FavoriteLink struct {
	Ref   string
	Label string
	Href  string
}

// SearchLink is one saved search with the list it opens.
type SearchLink struct {
	ID      string
	Name    string
	Summary string
	Href    string
}

// View is the cabinet page model.
type View struct {
	Favorites []FavoriteGroup
	Searches  []SearchLink
	Errors    []string
}

var groupOrder = []struct {
	kind  backend.FavoriteKind
	title string
}{
	{backend.KindFamilyOffice, "Family offices"},
	{backend.KindCompany, "Companies"},
	{backend.KindContact, "Contacts"},
	{backend.KindPerson, "Persons"},
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	var (
		favs     []backend.Favorite
		searches []savedsearch.SavedSearch
		favErr   error
		srchErr  error
	)
	var g errgroup.Group
	g.Go(func() error {
		favs, favErr = h.favorites.List(r.Context())
		return nil
	})
	g.Go(func() error {
		searches, srchErr = h.searches.List(r.Context(), principal.UserID)
		return nil
	})
	_ = g.Wait()

	vm := View{}
	if favErr != nil {
		h.logger.Error("cabinet favorites", slog.Any("error", favErr))
		vm.Errors = append(vm.Errors, "Favorites could not be loaded. "+backend.UserMessage(favErr))
	}
	if srchErr != nil {
		h.logger.Error("cabinet saved searches", slog.Any("error", srchErr))
		vm.Errors = append(vm.Errors, "Saved searches could not be loaded.")
	}
	vm.Favorites = groupFavorites(favs)
	for _, s := range searches {
		vm.Searches = append(vm.Searches, searchLink(s))
	}
	h.render(w, r, vm)
}

func groupFavorites(favs []backend.Favorite) []FavoriteGroup {
	byKind := make(map[backend.FavoriteKind][]FavoriteLink)
	for _, f := range favs {
		label := f.Label
		if label == "" {
			label = "#" + f.EntityID.String()
		}
		byKind[f.Kind] = append(byKind[f.Kind], FavoriteLink{
			Ref:   string(f.Kind) + ":" + f.EntityID.String(),
			Label: label,
			Href:  profileHref(f),
		})
	}
	var groups []FavoriteGroup
	for _, g := range groupOrder {
		items := byKind[g.kind]
		if len(items) == 0 {
			continue
		}
		sort.SliceStable(items, func(i, j int) bool { return items[i].Label < items[j].Label })
		groups = append(groups, FavoriteGroup{Kind: g.kind, Title: g.title, Items: items})
	}
	return groups
}

func profileHref(f backend.Favorite) string {
	id := url.PathEscape(f.EntityID.String())
	switch f.Kind {
	case backend.KindCompany:
		return "/" + directory.EntityCompanies + "/" + id
	case backend.KindFamilyOffice:
		return "/" + directory.EntityFamilyOffices + "/" + id
	case backend.KindContact:
		return "/" + directory.EntityOfficeContact + "/" + id
	}
	return "/" + directory.EntityPersons + "?" + url.Values{"search": {f.Label}}.Encode()
}

func searchLink(s savedsearch.SavedSearch) SearchLink {
	q := listview.Query{Search: s.Filter.SearchQuery}
	if len(s.Filter.FirmTypes) > 0 {
		q.Filters = map[string][]string{directory.FacetFirmType: s.Filter.FirmTypes}
	}
	summary := s.Filter.SearchQuery
	for _, ft := range s.Filter.FirmTypes {
		if summary != "" {
			summary += " · "
		}
		summary += view.Humanize(ft)
	}
	return SearchLink{
		ID:      s.ID.String(),
		Name:    s.Name,
		Summary: summary,
		Href:    "/" + directory.EntityFamilyOffices + "?" + q.URLValues().Encode(),
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data View) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "My cabinet", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, User: auth.ViewUser(r.Context()), Data: data}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := h.templates.Render(w, "pages/cabinet/index.html", viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}
