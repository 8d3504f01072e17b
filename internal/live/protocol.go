// Package live serves list views over websockets. Each connection mounts one
// list controller and streams its state back to the browser.
package live

import (
	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/favorites"
	"github.com/altss/altss/internal/listview"
)

// Inbound message types.
const (
	MsgSearch         = "search"
	MsgPage           = "page"
	MsgPerPage        = "per_page"
	MsgFilters        = "filters"
	MsgSelect         = "select"
	MsgSelectAll      = "select_all"
	MsgClearSelection = "clear_selection"
	MsgResize         = "resize"
	MsgFavorite       = "favorite"
	MsgEnrich         = "enrich"
	MsgRefresh        = "refresh"
)

// Outbound message types.
const (
	OutState     = "state"
	OutNotice    = "notice"
	OutFavorites = "favorites"
	OutLimit     = "limit"
	OutEnriched  = "enriched"
	OutStatus    = "status"
	OutSearches  = "saved_searches"
)

// Message is a command sent by the browser.
type Message struct {
	Type     string              `json:"type"`
	Value    string              `json:"value,omitempty"`
	Page     int                 `json:"page,omitempty"`
	PerPage  int                 `json:"per_page,omitempty"`
	Filters  map[string][]string `json:"filters,omitempty"`
	ID       string              `json:"id,omitempty"`
	Scope    string              `json:"scope,omitempty"`
	Column   string              `json:"column,omitempty"`
	Width    float64             `json:"width,omitempty"`
	Channels []string            `json:"channels,omitempty"`
}

// Envelope is a message pushed to the browser.
type Envelope struct {
	Type     string                `json:"type"`
	State    *StatePayload         `json:"state,omitempty"`
	Notice   *listview.Notice      `json:"notice,omitempty"`
	Favorite *favorites.Updated    `json:"favorite,omitempty"`
	Limit    *LimitPayload         `json:"limit,omitempty"`
	Enriched *backend.EnrichResult `json:"enriched,omitempty"`
	Status   string                `json:"status,omitempty"`
	Redirect string                `json:"redirect,omitempty"`
}

// LimitPayload drives the enrichment limit modal.
type LimitPayload struct {
	Type    backend.LimitErrorType `json:"type"`
	Label   string                 `json:"label"`
	Message string                 `json:"message"`
}

// QueryPayload is the wire form of a list query.
type QueryPayload struct {
	Page    int                 `json:"page"`
	PerPage int                 `json:"per_page"`
	Search  string              `json:"search"`
	Filters map[string][]string `json:"filters,omitempty"`
}

// FooterPayload is the wire form of the pagination footer.
type FooterPayload struct {
	Total      int           `json:"total"`
	TotalPages int           `json:"total_pages"`
	From       int           `json:"from"`
	To         int           `json:"to"`
	Pages      []PagePayload `json:"pages"`
	PerPage    []int         `json:"per_page_options"`
}

// PagePayload is one footer entry.
type PagePayload struct {
	Number   int  `json:"number,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
	Current  bool `json:"current,omitempty"`
}

// ColumnPayload is one table column with its width percentage.
type ColumnPayload struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Width float64 `json:"width"`
}

// StatePayload is the wire form of a list view snapshot.
type StatePayload struct {
	Entity          string          `json:"entity"`
	Query           QueryPayload    `json:"query"`
	RawSearch       string          `json:"raw_search"`
	Items           any             `json:"items"`
	Total           int             `json:"total"`
	Loading         bool            `json:"loading"`
	Error           string          `json:"error,omitempty"`
	Footer          FooterPayload   `json:"footer"`
	Columns         []ColumnPayload `json:"columns"`
	Selected        []string        `json:"selected"`
	AllPageSelected bool            `json:"all_page_selected"`
	Token           uint64          `json:"token"`
}

func newStatePayload[T any](entity string, s listview.State[T], row func(T) any) *StatePayload {
	items := make([]any, 0, len(s.Items))
	for _, item := range s.Items {
		if row != nil {
			items = append(items, row(item))
			continue
		}
		items = append(items, item)
	}
	selected := s.Selected
	if selected == nil {
		selected = []string{}
	}
	out := &StatePayload{
		Entity:          entity,
		Query:           QueryPayload{Page: s.Query.Page, PerPage: s.Query.PerPage, Search: s.Query.Search, Filters: s.Query.Filters},
		RawSearch:       s.RawSearch,
		Items:           items,
		Total:           s.Total,
		Loading:         s.Loading,
		Error:           s.Error,
		Selected:        selected,
		AllPageSelected: s.AllPageSelected,
		Token:           uint64(s.Token),
		Footer: FooterPayload{
			Total:      s.Footer.Total,
			TotalPages: s.Footer.TotalPages,
			From:       s.Footer.From,
			To:         s.Footer.To,
			PerPage:    s.Footer.PerPageOptions,
		},
	}
	for _, p := range s.Footer.Items {
		out.Footer.Pages = append(out.Footer.Pages, PagePayload{Number: p.Number, Ellipsis: p.Ellipsis, Current: p.Current})
	}
	for _, c := range s.Columns {
		out.Columns = append(out.Columns, ColumnPayload{ID: c.ID, Label: c.Label, Width: c.Width})
	}
	return out
}

func newLimitPayload(err *backend.LimitError) *LimitPayload {
	return &LimitPayload{Type: err.Type, Label: err.Type.Label(), Message: err.SafeMessage()}
}
