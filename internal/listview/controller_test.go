package listview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type row struct {
	ID   string
	Name string
}

type countingMetrics struct {
	stale atomic.Int32
	calls atomic.Int32
}

func (m *countingMetrics) ObserveFetch(string, time.Duration, error) { m.calls.Add(1) }
func (m *countingMetrics) StaleDiscarded(string)                     { m.stale.Add(1) }

type recorder struct {
	states  chan State[row]
	notices chan Notice
}

func newRecorder() *recorder {
	return &recorder{states: make(chan State[row], 128), notices: make(chan Notice, 16)}
}

func (r *recorder) waitFor(t *testing.T, match func(State[row]) bool) State[row] {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-r.states:
			if match(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for state")
		}
	}
}

func rowsFor(prefix string, n int) []row {
	out := make([]row, n)
	for i := range out {
		out[i] = row{ID: fmt.Sprintf("%s-%d", prefix, i), Name: prefix}
	}
	return out
}

func newTestController(t *testing.T, f Fetcher[row], rec *recorder, m Metrics) *Controller[row] {
	t.Helper()
	c := NewController(context.Background(), Options[row]{
		Entity:   "rows",
		Fetcher:  f,
		ID:       func(r row) string { return r.ID },
		Columns:  []Column{{ID: "name", Width: 40}},
		Debounce: 30 * time.Millisecond,
		OnState:  func(s State[row]) { rec.states <- s },
		OnNotice: func(n Notice) { rec.notices <- n },
		Metrics:  m,
	})
	return c
}

func TestControllerDebouncedSearchFetchesOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	var searches []string
	fetcher := FetcherFunc[row](func(ctx context.Context, q Query) (Result[row], error) {
		mu.Lock()
		searches = append(searches, q.Search)
		mu.Unlock()
		return Result[row]{Items: rowsFor(q.Search, 2), Total: 2}, nil
	})
	rec := newRecorder()
	c := newTestController(t, fetcher, rec, nil)

	c.SetSearch("a")
	c.SetSearch("ab")
	c.SetSearch("abc")

	state := rec.waitFor(t, func(s State[row]) bool { return !s.Loading && s.Query.Search == "abc" && len(s.Items) == 2 })
	assert.Equal(t, "abc", state.RawSearch)
	time.Sleep(80 * time.Millisecond)
	c.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"abc"}, searches)
}

func TestControllerDiscardsStaleResponses(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	slowStarted := make(chan struct{})
	fetcher := FetcherFunc[row](func(ctx context.Context, q Query) (Result[row], error) {
		if q.Page == 2 {
			close(slowStarted)
			<-release
			return Result[row]{Items: rowsFor("stale", 10), Total: 100}, nil
		}
		return Result[row]{Items: rowsFor("fresh", 10), Total: 100}, nil
	})
	rec := newRecorder()
	metrics := &countingMetrics{}
	c := newTestController(t, fetcher, rec, metrics)

	c.SetPage(2)
	<-slowStarted
	c.SetPage(3)
	rec.waitFor(t, func(s State[row]) bool { return !s.Loading && s.Query.Page == 3 })
	close(release)
	c.Close()

	state := c.State()
	require.Len(t, state.Items, 10)
	assert.Equal(t, "fresh", state.Items[0].Name)
	assert.Equal(t, 3, state.Query.Page)
	assert.Equal(t, int32(1), metrics.stale.Load())
}

func TestControllerFailureClearsItemsKeepsTotal(t *testing.T) {
	defer goleak.VerifyNone(t)

	var fail atomic.Bool
	fetcher := FetcherFunc[row](func(ctx context.Context, q Query) (Result[row], error) {
		if fail.Load() {
			return Result[row]{}, errors.New("upstream 502")
		}
		return Result[row]{Items: rowsFor("ok", 10), Total: 42}, nil
	})
	rec := newRecorder()
	c := newTestController(t, fetcher, rec, nil)
	defer c.Close()

	state := c.Load(context.Background())
	require.Len(t, state.Items, 10)
	require.Equal(t, 42, state.Total)

	fail.Store(true)
	c.Refresh()
	failed := rec.waitFor(t, func(s State[row]) bool { return !s.Loading && s.Error != "" })
	assert.Empty(t, failed.Items)
	assert.Equal(t, 42, failed.Total)

	select {
	case n := <-rec.notices:
		assert.Equal(t, "error", n.Kind)
		assert.NotEmpty(t, n.Message)
	case <-time.After(time.Second):
		t.Fatal("expected an error notice")
	}
}

func TestControllerCorrectsPagePastEnd(t *testing.T) {
	defer goleak.VerifyNone(t)

	var pages []int
	fetcher := FetcherFunc[row](func(ctx context.Context, q Query) (Result[row], error) {
		pages = append(pages, q.Page)
		return Result[row]{Items: rowsFor("p", min(q.PerPage, 15)), Total: 15}, nil
	})
	rec := newRecorder()
	c := NewController(context.Background(), Options[row]{
		Entity:  "rows",
		Fetcher: fetcher,
		Query:   Query{Page: 5, PerPage: 10},
		OnState: func(s State[row]) { rec.states <- s },
	})
	defer c.Close()

	state := c.Load(context.Background())
	assert.Equal(t, 1, state.Query.Page)
	assert.Equal(t, []int{5, 1}, pages)
}

func TestControllerTruncatesOversizedPages(t *testing.T) {
	fetcher := FetcherFunc[row](func(ctx context.Context, q Query) (Result[row], error) {
		return Result[row]{Items: rowsFor("x", 30), Total: 30}, nil
	})
	c := NewController(context.Background(), Options[row]{Fetcher: fetcher, Query: Query{PerPage: 10}})
	defer c.Close()
	assert.Len(t, c.Load(context.Background()).Items, 10)
}

type listingFetcher struct {
	FetcherFunc[row]
	ids []string
}

func (l listingFetcher) MatchingIDs(ctx context.Context, q Query) ([]string, error) {
	return l.ids, nil
}

func TestControllerToggleAllScopes(t *testing.T) {
	page := FetcherFunc[row](func(ctx context.Context, q Query) (Result[row], error) {
		return Result[row]{Items: rowsFor("r", 3), Total: 30}, nil
	})

	c := NewController(context.Background(), Options[row]{Fetcher: page, ID: func(r row) string { return r.ID }})
	defer c.Close()
	c.Load(context.Background())

	require.NoError(t, c.ToggleAll(context.Background(), ScopePage))
	assert.True(t, c.State().AllPageSelected)
	assert.Equal(t, 3, c.Selection().Len())
	require.NoError(t, c.ToggleAll(context.Background(), ScopePage))
	assert.Equal(t, 0, c.Selection().Len())

	assert.ErrorIs(t, c.ToggleAll(context.Background(), ScopeAllMatching), ErrScopeUnsupported)

	all := NewController(context.Background(), Options[row]{
		Fetcher: listingFetcher{FetcherFunc: page, ids: []string{"a", "b", "c", "d"}},
		ID:      func(r row) string { return r.ID },
	})
	defer all.Close()
	require.NoError(t, all.ToggleAll(context.Background(), ScopeAllMatching))
	assert.Equal(t, []string{"a", "b", "c", "d"}, all.Selection().IDs())
}

func TestControllerSetPerPageResetsPage(t *testing.T) {
	defer goleak.VerifyNone(t)

	fetcher := FetcherFunc[row](func(ctx context.Context, q Query) (Result[row], error) {
		return Result[row]{Items: rowsFor("r", q.PerPage), Total: 500}, nil
	})
	rec := newRecorder()
	c := newTestController(t, fetcher, rec, nil)

	c.SetPage(4)
	rec.waitFor(t, func(s State[row]) bool { return !s.Loading && s.Query.Page == 4 })
	c.SetPerPage(50)
	state := rec.waitFor(t, func(s State[row]) bool { return !s.Loading && s.Query.PerPage == 50 })
	assert.Equal(t, 1, state.Query.Page)
	assert.Len(t, state.Items, 50)
	c.Close()
}

func TestControllerResize(t *testing.T) {
	c := NewController(context.Background(), Options[row]{
		Fetcher: FetcherFunc[row](func(ctx context.Context, q Query) (Result[row], error) { return Result[row]{}, nil }),
		Columns: []Column{{ID: "name", Width: 40}, {ID: "aum", Width: 15}},
	})
	defer c.Close()
	require.NoError(t, c.Resize("aum", 22))
	assert.Equal(t, 22.0, c.State().Columns[1].Width)
	assert.ErrorIs(t, c.Resize("nope", 1), ErrUnknownColumn)
}
