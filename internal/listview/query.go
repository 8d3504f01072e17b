package listview

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	// DefaultPerPage is used when a query carries no page size.
	DefaultPerPage = 10
	// MaxPerPage caps the page size accepted from clients.
	MaxPerPage = 100
)

// PerPageOptions lists the page sizes offered by the footer selector.
var PerPageOptions = []int{10, 25, 50, 100}

// Query captures the paging, search and filter state of a list view.
type Query struct {
	Page    int
	PerPage int
	Search  string
	Filters map[string][]string
}

// Normalize returns a sanitized copy applying defaults and bounds.
func (q Query) Normalize() Query {
	normalized := q
	if normalized.Page <= 0 {
		normalized.Page = 1
	}
	if normalized.PerPage <= 0 {
		normalized.PerPage = DefaultPerPage
	}
	if normalized.PerPage > MaxPerPage {
		normalized.PerPage = MaxPerPage
	}
	normalized.Search = strings.TrimSpace(normalized.Search)
	normalized.Filters = sanitizeFilters(q.Filters)
	return normalized
}

// Offset returns the zero-based record offset of the first item on the page.
func (q Query) Offset() int {
	n := q.Normalize()
	return (n.Page - 1) * n.PerPage
}

// WithPage returns a copy pointing at page.
func (q Query) WithPage(page int) Query {
	next := q
	next.Page = page
	return next.Normalize()
}

// WithPerPage returns a copy with the new page size. Changing the page size
// always resets the query to the first page.
func (q Query) WithPerPage(perPage int) Query {
	next := q
	next.PerPage = perPage
	next.Page = 1
	return next.Normalize()
}

// WithSearch returns a copy with a new search term, back on the first page.
func (q Query) WithSearch(search string) Query {
	next := q
	next.Search = search
	next.Page = 1
	return next.Normalize()
}

// WithFilters returns a copy with replaced filters, back on the first page.
func (q Query) WithFilters(filters map[string][]string) Query {
	next := q
	next.Filters = filters
	next.Page = 1
	return next.Normalize()
}

// Clamp keeps the page inside [1, TotalPages(total, PerPage)].
func (q Query) Clamp(total int) Query {
	n := q.Normalize()
	pages := TotalPages(total, n.PerPage)
	if n.Page > pages {
		n.Page = pages
	}
	return n
}

// Filter returns the values of a single filter facet.
func (q Query) Filter(key string) []string {
	if q.Filters == nil {
		return nil
	}
	return q.Filters[strings.ToLower(strings.TrimSpace(key))]
}

// Encoding describes how a query is serialised for a specific upstream endpoint.
type Encoding struct {
	// SearchKey is the query parameter carrying the search text ("search",
	// "firm_name", "name", "investor").
	SearchKey string
	// Aliases renames filter keys to the upstream parameter names.
	Aliases map[string]string
}

// Values serialises the query into limit/offset pagination parameters. Multi
// valued filters are joined with commas.
func (q Query) Values(enc Encoding) url.Values {
	n := q.Normalize()
	values := url.Values{}
	values.Set("limit", strconv.Itoa(n.PerPage))
	values.Set("offset", strconv.Itoa(n.Offset()))
	if n.Search != "" {
		key := strings.TrimSpace(enc.SearchKey)
		if key == "" {
			key = "search"
		}
		values.Set(key, n.Search)
	}
	for key, vals := range n.Filters {
		mapped := key
		if alias, ok := enc.Aliases[key]; ok && strings.TrimSpace(alias) != "" {
			mapped = alias
		}
		values.Set(mapped, strings.Join(vals, ","))
	}
	return values
}

// CanonicalKey builds a stable key for caching and request deduplication.
func (q Query) CanonicalKey() string {
	n := q.Normalize()
	var builder strings.Builder
	builder.WriteString("page=")
	builder.WriteString(strconv.Itoa(n.Page))
	builder.WriteString("&per_page=")
	builder.WriteString(strconv.Itoa(n.PerPage))
	builder.WriteString("&search=")
	builder.WriteString(strings.ToLower(n.Search))
	if len(n.Filters) > 0 {
		keys := make([]string, 0, len(n.Filters))
		for key := range n.Filters {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		builder.WriteString("&filters=")
		for i, key := range keys {
			if i > 0 {
				builder.WriteString(";")
			}
			vals := append([]string(nil), n.Filters[key]...)
			sort.Strings(vals)
			builder.WriteString(key)
			builder.WriteString("=")
			builder.WriteString(strings.Join(vals, ","))
		}
	}
	return builder.String()
}

// ParseQuery reads a query from request parameters. Filters are read from the
// listed facet keys; each facet accepts repeated or comma separated values.
func ParseQuery(values url.Values, facets ...string) Query {
	page, _ := strconv.Atoi(values.Get("page"))
	perPage, _ := strconv.Atoi(values.Get("per_page"))
	q := Query{
		Page:    page,
		PerPage: perPage,
		Search:  values.Get("search"),
	}
	if len(facets) > 0 {
		q.Filters = make(map[string][]string, len(facets))
		for _, facet := range facets {
			var collected []string
			for _, raw := range values[facet] {
				collected = append(collected, strings.Split(raw, ",")...)
			}
			if len(collected) > 0 {
				q.Filters[facet] = collected
			}
		}
	}
	return q.Normalize()
}

// URLValues renders the query as dashboard URL parameters (page, per_page,
// search, facets) for links in the footer.
func (q Query) URLValues() url.Values {
	n := q.Normalize()
	values := url.Values{}
	values.Set("page", strconv.Itoa(n.Page))
	values.Set("per_page", strconv.Itoa(n.PerPage))
	if n.Search != "" {
		values.Set("search", n.Search)
	}
	for key, vals := range n.Filters {
		values.Set(key, strings.Join(vals, ","))
	}
	return values
}

func sanitizeFilters(filters map[string][]string) map[string][]string {
	if len(filters) == 0 {
		return nil
	}
	sanitized := make(map[string][]string, len(filters))
	for key, vals := range filters {
		trimmedKey := strings.ToLower(strings.TrimSpace(key))
		if trimmedKey == "" {
			continue
		}
		seen := make(map[string]struct{}, len(vals))
		kept := make([]string, 0, len(vals))
		for _, v := range vals {
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				continue
			}
			if _, dup := seen[trimmed]; dup {
				continue
			}
			seen[trimmed] = struct{}{}
			kept = append(kept, trimmed)
		}
		if len(kept) > 0 {
			sanitized[trimmedKey] = kept
		}
	}
	if len(sanitized) == 0 {
		return nil
	}
	return sanitized
}
