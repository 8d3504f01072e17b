package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altss/altss/internal/listview"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL + "/", APIKey: "service-key", Timeout: time.Second})
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{http.StatusUnauthorized, "", func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnauthorized) }},
		{http.StatusForbidden, "", func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnauthorized) }},
		{http.StatusNotFound, "", func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrNotFound) }},
		{StatusLimitReached, `{"type":"personal_email_limit","message":"trial exhausted"}`, func(t *testing.T, err error) {
			var limit *LimitError
			require.True(t, errors.As(err, &limit))
			assert.Equal(t, LimitPersonalEmail, limit.Type)
			assert.Contains(t, UserMessage(err), "personal email")
		}},
		{http.StatusBadGateway, "upstream down", func(t *testing.T, err error) {
			var status *StatusError
			require.True(t, errors.As(err, &status))
			assert.Equal(t, http.StatusBadGateway, status.Status)
			assert.True(t, status.Temporary())
			assert.Equal(t, "upstream down", status.Body)
		}},
	}
	for _, tc := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, tc.body)
		})
		_, err := client.Contact(context.Background(), "1")
		require.Error(t, err)
		tc.check(t, err)
	}
}

func TestRequestCarriesBearerToken(t *testing.T) {
	var seen []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"id": 12, "name": "Ada"}`)
	})

	contact, err := client.Contact(context.Background(), "12")
	require.NoError(t, err)
	assert.Equal(t, ID("12"), contact.ID)

	_, err = client.Contact(ContextWithToken(context.Background(), "user-jwt"), "12")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer service-key", "Bearer user-jwt"}, seen)
}

func TestListFetcherEncodesQuery(t *testing.T) {
	var got map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/family-offices", r.URL.Path)
		got = map[string]string{}
		for key := range r.URL.Query() {
			got[key] = r.URL.Query().Get(key)
		}
		_, _ = io.WriteString(w, `{"items":[{"id":1,"firm_name":"Alpha"},{"id":"b2","firm_name":"Beta"}],"itemsTotal":57}`)
	})

	q := listview.Query{Page: 3, PerPage: 25, Search: "alp", Filters: map[string][]string{"firm_type": {"VC Fund", "Single Family Office"}}}
	res, err := client.FamilyOffices().Fetch(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, 57, res.Total)
	require.Len(t, res.Items, 2)
	assert.Equal(t, ID("b2"), res.Items[1].ID)
	assert.Equal(t, "25", got["limit"])
	assert.Equal(t, "50", got["offset"])
	assert.Equal(t, "alp", got["firm_name"])
	assert.Equal(t, "VC Fund,Single Family Office", got["firm_types"])
}

func TestListFetcherDecodesEnvelopes(t *testing.T) {
	bodies := []string{
		`[{"id":1},{"id":2}]`,
		`{"data":[{"id":1},{"id":2}],"total":9}`,
		`{"results":[{"id":1},{"id":2}],"count":9}`,
	}
	totals := []int{2, 9, 9}
	for i, body := range bodies {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, body) })
		res, err := client.Persons().Fetch(context.Background(), listview.Query{PerPage: 10})
		require.NoError(t, err)
		assert.Len(t, res.Items, 2)
		assert.Equal(t, totals[i], res.Total)
	}
}

func TestListFetcherTruncatesOverlongPages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"items":[{"id":1},{"id":2},{"id":3}],"itemsTotal":3}`)
	})
	res, err := client.Companies().Fetch(context.Background(), listview.Query{PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, 3, res.Total)
}

func TestLegacyContactsSearchPostsJSON(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/contacts_0", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, `{"items":[],"itemsTotal":0}`)
	})
	_, err := client.Contacts(true).Fetch(context.Background(), listview.Query{Page: 2, PerPage: 10, Search: "smith"})
	require.NoError(t, err)
	assert.Equal(t, float64(10), body["limit"])
	assert.Equal(t, float64(10), body["offset"])
	assert.Equal(t, "smith", body["search"])
}

func TestMatchingIDsIgnoresPaging(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		assert.Equal(t, "0", r.URL.Query().Get("offset"))
		_, _ = io.WriteString(w, `{"items":[{"id":4},{"id":5}],"itemsTotal":2}`)
	})
	ids, err := client.Contacts(false).MatchingIDs(context.Background(), listview.Query{Page: 4, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "5"}, ids)
}

func TestContactsCountShapes(t *testing.T) {
	for body, want := range map[string]int{`42`: 42, `{"count":7}`: 7, `{"total":3}`: 3} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, body) })
		n, err := client.ContactsCount(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	routes []string
}

func (o *recordingObserver) ObserveUpstream(endpoint string, status int, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = append(o.routes, endpoint)
}

func TestObserverCollapsesIDs(t *testing.T) {
	obs := &recordingObserver{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))
	defer srv.Close()
	client := NewClient(Options{BaseURL: srv.URL, Observer: obs})

	require.NoError(t, client.RemoveFavorite(context.Background(), KindFamilyOffice, "981"))
	_, _ = client.FamilyOfficeTeam(context.Background(), "981")
	assert.Equal(t, []string{"/favorites/family_office/:id", "/family-offices/:id/team"}, obs.routes)
}

func TestCatalogCachesUntilBumped(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"count":11}`)
	})
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	catalog := NewCatalog(client, NewCache(rdb, time.Minute))

	for i := 0; i < 3; i++ {
		n, err := catalog.ContactsCount(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 11, n)
	}
	assert.Equal(t, int32(1), calls.Load())

	ver, err := catalog.Cache().Bump(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), ver)

	_, err = catalog.ContactsCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCatalogProfileCollapsesConcurrentLoads(t *testing.T) {
	var officeCalls atomic.Int32
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/family-offices/7":
			officeCalls.Add(1)
			<-release
			_, _ = io.WriteString(w, `{"id":7,"firm_name":"Seven"}`)
		case "/family-offices/7/team":
			_, _ = io.WriteString(w, `[{"id":1,"name":"Grace"}]`)
		case "/family-offices/7/investment-focus":
			_, _ = io.WriteString(w, `{"sectors":["Fintech"]}`)
		case "/family-offices/7/deals":
			_, _ = io.WriteString(w, `{"items":[{"id":3,"company":"Acme"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	catalog := NewCatalog(client, nil)

	var wg sync.WaitGroup
	results := make([]FamilyOfficeProfile, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := catalog.FamilyOfficeProfile(context.Background(), "7")
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), officeCalls.Load())
	for _, p := range results {
		assert.Equal(t, "Seven", p.Office.FirmName)
		assert.Equal(t, []string{"Fintech"}, p.Focus.Sectors)
		require.Len(t, p.Deals, 1)
	}
}

func TestIDUnmarshal(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 12, "b": " x1 ", "c": null}`), &v))
	assert.Equal(t, ID("12"), v.A)
	assert.Equal(t, ID("x1"), v.B)
	assert.Equal(t, ID(""), v.C)
	n, ok := v.A.Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(12), n)
}
