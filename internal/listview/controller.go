package listview

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Notice is a user-facing notification raised by the controller.
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// State is a consistent snapshot of a list view.
type State[T any] struct {
	Query           Query
	RawSearch       string
	Items           []T
	Total           int
	Loading         bool
	Error           string
	Footer          Footer
	Columns         []Column
	Selected        []string
	AllPageSelected bool
	Token           Token
}

// Options configures a Controller.
type Options[T any] struct {
	// Entity names the collection in logs and metrics.
	Entity   string
	Fetcher  Fetcher[T]
	ID       func(T) string
	Columns  []Column
	Query    Query
	Debounce time.Duration
	// OnState receives every published snapshot.
	OnState func(State[T])
	// OnNotice receives user-facing notifications.
	OnNotice func(Notice)
	// Describe turns a fetch error into a user-safe message.
	Describe func(error) string
	Logger   *slog.Logger
	Metrics  Metrics
}

// Controller owns the state of one mounted list view: query, debounced
// search, fetch sequencing, selection and column widths.
type Controller[T any] struct {
	opts      Options[T]
	logger    *slog.Logger
	metrics   Metrics
	ctx       context.Context
	cancel    context.CancelFunc
	seq       Sequencer
	debouncer *Debouncer
	selection *Selection
	columns   *ColumnSizes
	wg        sync.WaitGroup

	mu        sync.Mutex
	query     Query
	rawSearch string
	items     []T
	total     int
	loading   bool
	errMsg    string
	version   uint64
	closed    bool

	pubMu     sync.Mutex
	published uint64
}

// NewController mounts a list view. Nothing is fetched until Refresh or Load.
func NewController[T any](parent context.Context, opts Options[T]) *Controller[T] {
	if parent == nil {
		parent = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if opts.Describe == nil {
		opts.Describe = func(error) string { return "Failed to load data. Please try again." }
	}
	ctx, cancel := context.WithCancel(parent)
	c := &Controller[T]{
		opts:      opts,
		logger:    logger.With(slog.String("entity", opts.Entity)),
		metrics:   metrics,
		ctx:       ctx,
		cancel:    cancel,
		selection: NewSelection(),
		columns:   NewColumnSizes(opts.Columns),
		query:     opts.Query.Normalize(),
		rawSearch: opts.Query.Search,
	}
	c.debouncer = NewDebouncer(opts.Debounce, c.applySearch)
	return c
}

// Load fetches the current page synchronously and returns the resulting state.
func (c *Controller[T]) Load(ctx context.Context) State[T] {
	token, fctx, q, ok := c.begin(ctx)
	if !ok {
		return c.State()
	}
	c.publish()
	if c.run(fctx, token, q) {
		token, fctx, q, ok = c.begin(ctx)
		if ok {
			c.run(fctx, token, q)
		}
	}
	return c.State()
}

// Refresh fetches the current page in the background. A newer Refresh
// supersedes an older one; the older response is discarded.
func (c *Controller[T]) Refresh() {
	token, fctx, q, ok := c.begin(c.ctx)
	if !ok {
		return
	}
	c.publish()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if c.run(fctx, token, q) {
			c.Refresh()
		}
	}()
}

// SetSearch records raw input. The fetch happens once the value settles.
func (c *Controller[T]) SetSearch(raw string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.rawSearch = raw
	c.mu.Unlock()
	c.debouncer.Push(raw)
}

// SetPage moves to page and refetches.
func (c *Controller[T]) SetPage(page int) {
	if c.mutate(func(q Query) Query { return q.WithPage(page) }) {
		c.Refresh()
	}
}

// SetPerPage changes the page size, resets to page 1 and refetches.
func (c *Controller[T]) SetPerPage(perPage int) {
	if c.mutate(func(q Query) Query { return q.WithPerPage(perPage) }) {
		c.Refresh()
	}
}

// SetFilters replaces the filters, resets to page 1 and refetches.
func (c *Controller[T]) SetFilters(filters map[string][]string) {
	if c.mutate(func(q Query) Query { return q.WithFilters(filters) }) {
		c.Refresh()
	}
}

// ToggleOne flips selection of id and publishes the new state.
func (c *Controller[T]) ToggleOne(id string) bool {
	selected := c.selection.ToggleOne(id)
	c.touch()
	c.publish()
	return selected
}

// ToggleAll applies select-all for the given scope.
func (c *Controller[T]) ToggleAll(ctx context.Context, scope Scope) error {
	var ids []string
	switch scope {
	case ScopeAllMatching:
		lister, ok := c.opts.Fetcher.(IDLister)
		if !ok {
			return ErrScopeUnsupported
		}
		c.mu.Lock()
		q := c.query
		c.mu.Unlock()
		matched, err := lister.MatchingIDs(ctx, q)
		if err != nil {
			return err
		}
		ids = matched
	default:
		ids = c.pageIDs()
	}
	c.selection.ToggleAll(ids)
	c.touch()
	c.publish()
	return nil
}

// ClearSelection empties the selection.
func (c *Controller[T]) ClearSelection() {
	c.selection.Clear()
	c.touch()
	c.publish()
}

// Resize sets a column width.
func (c *Controller[T]) Resize(column string, width float64) error {
	if err := c.columns.Resize(column, width); err != nil {
		return err
	}
	c.touch()
	c.publish()
	return nil
}

// Selection exposes the selection store.
func (c *Controller[T]) Selection() *Selection { return c.selection }

// Update applies fn to every item on the current page and publishes the
// result. It is used for optimistic row mutations such as favorite flags.
func (c *Controller[T]) Update(fn func(T) T) {
	c.mu.Lock()
	for i := range c.items {
		c.items[i] = fn(c.items[i])
	}
	c.version++
	c.mu.Unlock()
	c.publish()
}

// State returns the current snapshot.
func (c *Controller[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close unmounts the view: pending searches are dropped, in-flight fetches
// cancelled and background work awaited.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.debouncer.Stop()
	c.seq.Cancel()
	c.cancel()
	c.wg.Wait()
}

func (c *Controller[T]) applySearch(value string) {
	if c.mutate(func(q Query) Query {
		if strings.TrimSpace(value) == q.Search {
			return q
		}
		return q.WithSearch(value)
	}) {
		c.Refresh()
	}
}

// mutate applies fn to the query and reports whether it changed.
func (c *Controller[T]) mutate(fn func(Query) Query) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	next := fn(c.query)
	if next.CanonicalKey() == c.query.CanonicalKey() {
		return false
	}
	c.query = next
	c.version++
	return true
}

func (c *Controller[T]) begin(parent context.Context) (Token, context.Context, Query, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, nil, Query{}, false
	}
	token, fctx := c.seq.Next(parent)
	c.loading = true
	c.version++
	return token, fctx, c.query, true
}

// run performs one fetch and applies it. It reports whether the page had to
// be corrected and a follow-up fetch is required.
func (c *Controller[T]) run(ctx context.Context, token Token, q Query) bool {
	started := time.Now()
	res, err := c.opts.Fetcher.Fetch(ctx, q)
	c.metrics.ObserveFetch(c.opts.Entity, time.Since(started), err)

	c.mu.Lock()
	if c.closed || !c.seq.Accept(token) {
		c.mu.Unlock()
		c.metrics.StaleDiscarded(c.opts.Entity)
		c.logger.Debug("discard stale list response", slog.Uint64("token", uint64(token)))
		return false
	}
	c.loading = false
	c.version++
	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.mu.Unlock()
			c.publish()
			return false
		}
		c.items = nil
		c.errMsg = c.opts.Describe(err)
		msg := c.errMsg
		c.mu.Unlock()
		c.logger.Error("list fetch failed", slog.Any("error", err), slog.String("query", q.CanonicalKey()))
		c.notify(Notice{Kind: "error", Message: msg})
		c.publish()
		return false
	}
	items := res.Items
	if len(items) > q.PerPage {
		items = items[:q.PerPage]
	}
	c.items = items
	c.total = res.Total
	c.errMsg = ""
	corrected := false
	if pages := TotalPages(res.Total, q.PerPage); q.Page > pages {
		c.query = c.query.WithPage(Correct(q.Page, pages))
		corrected = true
	}
	c.mu.Unlock()
	c.publish()
	return corrected
}

func (c *Controller[T]) pageIDs() []string {
	if c.opts.ID == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.items))
	for _, item := range c.items {
		ids = append(ids, c.opts.ID(item))
	}
	return ids
}

func (c *Controller[T]) touch() {
	c.mu.Lock()
	c.version++
	c.mu.Unlock()
}

func (c *Controller[T]) notify(n Notice) {
	if c.opts.OnNotice != nil {
		c.opts.OnNotice(n)
	}
}

// publish delivers the newest snapshot, skipping snapshots older than one
// already delivered.
func (c *Controller[T]) publish() {
	if c.opts.OnState == nil {
		return
	}
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	state, version := c.snapshotWithVersion()
	if version <= c.published && c.published != 0 {
		return
	}
	c.published = version
	c.opts.OnState(state)
}

func (c *Controller[T]) snapshotWithVersion() (State[T], uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(), c.version
}

func (c *Controller[T]) snapshotLocked() State[T] {
	items := make([]T, len(c.items))
	copy(items, c.items)
	ids := make([]string, 0, len(c.items))
	if c.opts.ID != nil {
		for _, item := range c.items {
			ids = append(ids, c.opts.ID(item))
		}
	}
	return State[T]{
		Query:           c.query,
		RawSearch:       c.rawSearch,
		Items:           items,
		Total:           c.total,
		Loading:         c.loading,
		Error:           c.errMsg,
		Footer:          NewFooter(c.query, c.total),
		Columns:         c.columns.Columns(),
		Selected:        c.selection.IDs(),
		AllPageSelected: c.selection.AllSelected(ids),
		Token:           c.seq.Latest(),
	}
}
