package listview

// windowSize is the number of page links shown around the current page.
const windowSize = 3

// compactLimit is the page count up to which every page is rendered.
const compactLimit = 5

// PageItem is a single entry of the footer page list: either a page number or
// an ellipsis marker.
type PageItem struct {
	Number   int
	Ellipsis bool
	Current  bool
}

// TotalPages returns ceil(total/perPage) with a minimum of one page.
func TotalPages(total, perPage int) int {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if total <= 0 {
		return 1
	}
	pages := (total + perPage - 1) / perPage
	if pages < 1 {
		return 1
	}
	return pages
}

// Correct returns the page the footer should request: page 1 when current
// no longer exists after the result set shrank, current otherwise.
func Correct(current, totalPages int) int {
	if current < 1 || current > totalPages {
		return 1
	}
	return current
}

// Window computes the windowed page list with ellipses.
func Window(current, totalPages int) []PageItem {
	if totalPages < 1 {
		totalPages = 1
	}
	if current < 1 {
		current = 1
	}
	if current > totalPages {
		current = totalPages
	}

	if totalPages <= compactLimit {
		items := make([]PageItem, 0, totalPages)
		for p := 1; p <= totalPages; p++ {
			items = append(items, PageItem{Number: p, Current: p == current})
		}
		return items
	}

	half := windowSize / 2
	start := current - half
	end := current + half
	if start < 2 {
		start = 2
		end = min(start+windowSize-1, totalPages-1)
	}
	if end > totalPages-1 {
		end = totalPages - 1
		start = max(end-windowSize+1, 2)
	}

	items := make([]PageItem, 0, windowSize+4)
	items = append(items, PageItem{Number: 1, Current: current == 1})
	if start > 2 {
		items = append(items, PageItem{Ellipsis: true})
	}
	for p := start; p <= end; p++ {
		items = append(items, PageItem{Number: p, Current: p == current})
	}
	if end < totalPages-1 {
		items = append(items, PageItem{Ellipsis: true})
	}
	items = append(items, PageItem{Number: totalPages, Current: current == totalPages})
	return items
}

// Footer is the view model of the pagination footer.
type Footer struct {
	Query          Query
	Total          int
	TotalPages     int
	From           int
	To             int
	Items          []PageItem
	PerPageOptions []int
}

// NewFooter derives the footer purely from the query and the reported total.
func NewFooter(q Query, total int) Footer {
	n := q.Normalize()
	if total < 0 {
		total = 0
	}
	pages := TotalPages(total, n.PerPage)
	n.Page = Correct(n.Page, pages)
	from, to := 0, 0
	if total > 0 {
		from = n.Offset() + 1
		to = min(n.Offset()+n.PerPage, total)
	}
	return Footer{
		Query:          n,
		Total:          total,
		TotalPages:     pages,
		From:           from,
		To:             to,
		Items:          Window(n.Page, pages),
		PerPageOptions: PerPageOptions,
	}
}

// HasPrev reports whether a previous page exists.
func (f Footer) HasPrev() bool { return f.Query.Page > 1 }

// HasNext reports whether a next page exists.
func (f Footer) HasNext() bool { return f.Query.Page < f.TotalPages }

// Href returns the relative link for page, preserving search and filters.
func (f Footer) Href(page int) string {
	return "?" + f.Query.WithPage(page).URLValues().Encode()
}

// PerPageHref returns the relative link for a page size change.
func (f Footer) PerPageHref(perPage int) string {
	return "?" + f.Query.WithPerPage(perPage).URLValues().Encode()
}
