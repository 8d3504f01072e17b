// Package directory serves the investor directory list screens, profiles and
// exports.
package directory

import (
	"context"
	"strconv"
	"strings"

	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/favorites"
	"github.com/altss/altss/internal/listview"
	"github.com/altss/altss/internal/live"
)

// Entity names used in URLs.
const (
	EntityCompanies     = "companies"
	EntityFamilyOffices = "familyoffices"
	EntityContacts      = "contacts"
	EntityPersons       = "persons"
	EntityOfficeContact = "familyofficescontactsprofile"
)

// FacetFirmType filters by firm type.
const FacetFirmType = "firm_type"

// Cell is one rendered table cell.
type Cell struct {
	Text string `json:"text"`
	Href string `json:"href,omitempty"`
}

// Row is one rendered table row.
type Row struct {
	ID       string `json:"id"`
	Favorite bool   `json:"favorite"`
	Enriched bool   `json:"enriched"`
	Cells    []Cell `json:"cells"`
}

// Screen is one directory list.
type Screen interface {
	Entity() string
	Title() string
	Columns() []listview.Column
	Facets() []string
	Enrichable() bool
	Mounter() live.Mounter
	Page(ctx context.Context, marks *favorites.Marks, q listview.Query) ([]Row, int, error)
	Export(ctx context.Context, q listview.Query, ids []string) ([][]string, error)
}

type screen[T any] struct {
	live       *live.Screen[T]
	title      string
	enrichable bool
	cells      func(T) []Cell
	header     []string
	record     func(T) []string
	enriched   func(T) bool
}

func (s *screen[T]) Entity() string             { return s.live.Name }
func (s *screen[T]) Title() string              { return s.title }
func (s *screen[T]) Columns() []listview.Column { return s.live.Columns }
func (s *screen[T]) Facets() []string           { return s.live.FacetKeys }
func (s *screen[T]) Enrichable() bool           { return s.enrichable }
func (s *screen[T]) Mounter() live.Mounter      { return s.live }

// Page renders one page of the list for the server side first paint.
func (s *screen[T]) Page(ctx context.Context, marks *favorites.Marks, q listview.Query) ([]Row, int, error) {
	fetcher := &favorites.Fetcher[T]{Inner: s.live.Fetcher, Marks: marks, Kind: s.live.Kind, ID: s.live.ID, Mark: s.live.Mark}
	res, err := fetcher.Fetch(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	rows := make([]Row, 0, len(res.Items))
	for _, item := range res.Items {
		ref := favorites.Ref{Kind: s.live.Kind, ID: s.live.ID(item)}
		rows = append(rows, s.row(item, marks != nil && marks.Has(ref)))
	}
	return rows, res.Total, nil
}

func (s *screen[T]) row(item T, favorite bool) Row {
	row := Row{ID: s.live.ID(item), Favorite: favorite, Cells: s.cells(item)}
	if s.enriched != nil {
		row.Enriched = s.enriched(item)
	}
	return row
}

// withRows makes live updates carry the same rows as the first paint.
func withRows[T any](s *screen[T]) Screen {
	s.live.Row = func(item T, favorite bool) any { return s.row(item, favorite) }
	return s
}

// Export collects the records matching q, keeping only ids when any are given.
// It walks at most backend.MaxMatchingIDs records.
func (s *screen[T]) Export(ctx context.Context, q listview.Query, ids []string) ([][]string, error) {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	out := [][]string{s.header}
	q = q.WithPerPage(listview.MaxPerPage)
	for page := 1; (page-1)*q.PerPage < backend.MaxMatchingIDs; page++ {
		res, err := s.live.Fetcher.Fetch(ctx, q.WithPage(page))
		if err != nil {
			return nil, err
		}
		for _, item := range res.Items {
			if _, ok := wanted[s.live.ID(item)]; len(wanted) > 0 && !ok {
				continue
			}
			out = append(out, s.record(item))
		}
		if len(res.Items) == 0 || page*q.PerPage >= res.Total || (len(wanted) > 0 && len(out)-1 == len(wanted)) {
			break
		}
	}
	return out, nil
}

// Lister is the subset of backend.Client the screens read from.
type Lister interface {
	Companies() *backend.ListFetcher[backend.Company]
	FamilyOffices() *backend.ListFetcher[backend.FamilyOffice]
	Contacts(legacy bool) *backend.ListFetcher[backend.Contact]
	FamilyOfficeContacts() *backend.ListFetcher[backend.Contact]
	Persons() *backend.ListFetcher[backend.Person]
}

// NewScreens builds the directory screens over client. legacyContacts selects
// the POST based contact search.
func NewScreens(client Lister, legacyContacts bool) []Screen {
	return []Screen{
		withRows(companiesScreen(client.Companies())),
		withRows(familyOfficesScreen(client.FamilyOffices())),
		withRows(contactsScreen(EntityContacts, "Contacts", client.Contacts(legacyContacts))),
		withRows(contactsScreen(EntityOfficeContact, "Family office contacts", client.FamilyOfficeContacts())),
		withRows(personsScreen(client.Persons())),
	}
}

// Mounters adapts screens for the live handler.
func Mounters(screens []Screen) []live.Mounter {
	out := make([]live.Mounter, 0, len(screens))
	for _, s := range screens {
		out = append(out, s.Mounter())
	}
	return out
}

func companiesScreen(f listview.Fetcher[backend.Company]) *screen[backend.Company] {
	return &screen[backend.Company]{
		title: "Companies",
		live: &live.Screen[backend.Company]{
			Name:    EntityCompanies,
			Kind:    backend.KindCompany,
			Fetcher: f,
			ID:      func(c backend.Company) string { return c.ID.String() },
			Mark: func(c backend.Company, fav bool) backend.Company {
				c.Favorite = fav
				return c
			},
			Columns: []listview.Column{
				{ID: "name", Label: "Name", Width: 34},
				{ID: "firm_type", Label: "Firm type", Width: 22},
				{ID: "location", Label: "Location", Width: 26},
				{ID: "aum", Label: "AUM", Width: 18},
			},
			FacetKeys: []string{FacetFirmType},
		},
		cells: func(c backend.Company) []Cell {
			return []Cell{
				{Text: c.Name, Href: "/companies/" + c.ID.String()},
				{Text: c.FirmType},
				{Text: location(c.City, c.Country)},
				{Text: formatAUM(c.AUM)},
			}
		},
		header: []string{"id", "name", "firm_type", "country", "city", "website", "aum"},
		record: func(c backend.Company) []string {
			return []string{c.ID.String(), c.Name, c.FirmType, c.Country, c.City, c.Website, strconv.FormatFloat(c.AUM, 'f', -1, 64)}
		},
	}
}

func familyOfficesScreen(f listview.Fetcher[backend.FamilyOffice]) *screen[backend.FamilyOffice] {
	return &screen[backend.FamilyOffice]{
		title: "Family offices",
		live: &live.Screen[backend.FamilyOffice]{
			Name:    EntityFamilyOffices,
			Kind:    backend.KindFamilyOffice,
			Fetcher: f,
			ID:      func(o backend.FamilyOffice) string { return o.ID.String() },
			Mark: func(o backend.FamilyOffice, fav bool) backend.FamilyOffice {
				o.Favorite = fav
				return o
			},
			Columns: []listview.Column{
				{ID: "firm_name", Label: "Firm", Width: 30},
				{ID: "firm_type", Label: "Type", Width: 20},
				{ID: "location", Label: "Location", Width: 20},
				{ID: "aum", Label: "AUM", Width: 15},
				{ID: "stage", Label: "Stage", Width: 15},
			},
			FacetKeys: []string{FacetFirmType},
		},
		cells: func(o backend.FamilyOffice) []Cell {
			return []Cell{
				{Text: o.FirmName, Href: "/familyoffices/" + o.ID.String()},
				{Text: o.FirmType},
				{Text: location(o.City, o.Country)},
				{Text: formatAUM(o.AUM)},
				{Text: o.InvestmentStage},
			}
		},
		header: []string{"id", "firm_name", "firm_type", "country", "city", "website", "aum", "founded", "investment_stage"},
		record: func(o backend.FamilyOffice) []string {
			return []string{o.ID.String(), o.FirmName, o.FirmType, o.Country, o.City, o.Website,
				strconv.FormatFloat(o.AUM, 'f', -1, 64), strconv.Itoa(o.Founded), o.InvestmentStage}
		},
	}
}

func contactsScreen(entity, title string, f listview.Fetcher[backend.Contact]) *screen[backend.Contact] {
	return &screen[backend.Contact]{
		title:      title,
		enrichable: true,
		live: &live.Screen[backend.Contact]{
			Name:    entity,
			Kind:    backend.KindContact,
			Fetcher: f,
			ID:      func(c backend.Contact) string { return c.ID.String() },
			Mark: func(c backend.Contact, fav bool) backend.Contact {
				c.Favorite = fav
				return c
			},
			Columns: []listview.Column{
				{ID: "name", Label: "Name", Width: 24},
				{ID: "title", Label: "Title", Width: 20},
				{ID: "firm", Label: "Firm", Width: 24},
				{ID: "email", Label: "Email", Width: 20},
				{ID: "country", Label: "Country", Width: 12},
			},
			FacetKeys: []string{FacetFirmType},
		},
		cells: func(c backend.Contact) []Cell {
			return []Cell{
				{Text: c.Name, Href: "/familyofficescontactsprofile/" + c.ID.String()},
				{Text: c.Title},
				{Text: c.FirmName},
				{Text: firstNonEmpty(c.WorkEmail, c.PersonalEmail)},
				{Text: c.Country},
			}
		},
		enriched: backend.Contact.Enriched,
		header:   []string{"id", "name", "title", "firm_name", "firm_type", "country", "linkedin", "work_email", "personal_email", "work_phone", "personal_phone"},
		record: func(c backend.Contact) []string {
			return []string{c.ID.String(), c.Name, c.Title, c.FirmName, c.FirmType, c.Country, c.LinkedIn,
				c.WorkEmail, c.PersonalEmail, c.WorkPhone, c.PersonalPhone}
		},
	}
}

func personsScreen(f listview.Fetcher[backend.Person]) *screen[backend.Person] {
	return &screen[backend.Person]{
		title: "Persons",
		live: &live.Screen[backend.Person]{
			Name:    EntityPersons,
			Kind:    backend.KindPerson,
			Fetcher: f,
			ID:      func(p backend.Person) string { return p.ID.String() },
			Mark: func(p backend.Person, fav bool) backend.Person {
				p.Favorite = fav
				return p
			},
			Columns: []listview.Column{
				{ID: "name", Label: "Name", Width: 28},
				{ID: "title", Label: "Title", Width: 24},
				{ID: "company", Label: "Company", Width: 28},
				{ID: "country", Label: "Country", Width: 20},
			},
		},
		cells: func(p backend.Person) []Cell {
			return []Cell{{Text: p.Name}, {Text: p.Title}, {Text: p.Company}, {Text: p.Country}}
		},
		header: []string{"id", "name", "title", "company", "country", "investor"},
		record: func(p backend.Person) []string {
			return []string{p.ID.String(), p.Name, p.Title, p.Company, p.Country, p.Investor}
		},
	}
}

func location(city, country string) string {
	switch {
	case city == "":
		return country
	case country == "":
		return city
	}
	return city + ", " + country
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// formatAUM renders assets under management in millions or billions.
func formatAUM(v float64) string {
	switch {
	case v <= 0:
		return "-"
	case v >= 1e9:
		return "$" + strconv.FormatFloat(v/1e9, 'f', 1, 64) + "B"
	case v >= 1e6:
		return "$" + strconv.FormatFloat(v/1e6, 'f', 1, 64) + "M"
	}
	return "$" + strconv.FormatFloat(v, 'f', 0, 64)
}
