package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/altss/altss/internal/listview"
)

// MaxMatchingIDs caps how many ids an all-matching selection may resolve.
const MaxMatchingIDs = 1000

// page accepts the envelope variants emitted by the backend: {items,
// itemsTotal}, {data, total}, {results, count} or a bare array.
type page[T any] struct {
	Items []T
	Total int
}

func (p *page[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &p.Items); err != nil {
			return err
		}
		p.Total = len(p.Items)
		return nil
	}
	var envelope struct {
		Items      []T  `json:"items"`
		Data       []T  `json:"data"`
		Results    []T  `json:"results"`
		ItemsTotal *int `json:"itemsTotal"`
		Total      *int `json:"total"`
		Count      *int `json:"count"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	switch {
	case envelope.Items != nil:
		p.Items = envelope.Items
	case envelope.Data != nil:
		p.Items = envelope.Data
	default:
		p.Items = envelope.Results
	}
	switch {
	case envelope.ItemsTotal != nil:
		p.Total = *envelope.ItemsTotal
	case envelope.Total != nil:
		p.Total = *envelope.Total
	case envelope.Count != nil:
		p.Total = *envelope.Count
	default:
		p.Total = len(p.Items)
	}
	return nil
}

// ListEndpoint describes how one collection is queried.
type ListEndpoint struct {
	Path     string
	Method   string
	Encoding listview.Encoding
}

// ListFetcher loads pages of a collection. It implements listview.Fetcher and
// listview.IDLister.
type ListFetcher[T any] struct {
	client   *Client
	endpoint ListEndpoint
	id       func(T) string
}

// NewListFetcher builds a fetcher for endpoint.
func NewListFetcher[T any](client *Client, endpoint ListEndpoint, id func(T) string) *ListFetcher[T] {
	if endpoint.Method == "" {
		endpoint.Method = http.MethodGet
	}
	return &ListFetcher[T]{client: client, endpoint: endpoint, id: id}
}

// Fetch loads the page described by q.
func (f *ListFetcher[T]) Fetch(ctx context.Context, q listview.Query) (listview.Result[T], error) {
	var out page[T]
	if err := f.do(ctx, q.Values(f.endpoint.Encoding), &out); err != nil {
		return listview.Result[T]{}, err
	}
	items := out.Items
	if n := q.Normalize().PerPage; len(items) > n {
		items = items[:n]
	}
	return listview.Result[T]{Items: items, Total: out.Total}, nil
}

// MatchingIDs resolves the ids of records matching q, ignoring its paging.
func (f *ListFetcher[T]) MatchingIDs(ctx context.Context, q listview.Query) ([]string, error) {
	if f.id == nil {
		return nil, listview.ErrScopeUnsupported
	}
	values := q.Values(f.endpoint.Encoding)
	values.Set("limit", strconv.Itoa(MaxMatchingIDs))
	values.Set("offset", "0")
	var out page[T]
	if err := f.do(ctx, values, &out); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(out.Items))
	for _, item := range out.Items {
		if id := f.id(item); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *ListFetcher[T]) do(ctx context.Context, values url.Values, dest any) error {
	if f.endpoint.Method == http.MethodGet {
		return f.client.Get(ctx, f.endpoint.Path, values, dest)
	}
	body := make(map[string]any, len(values))
	for key := range values {
		raw := values.Get(key)
		if n, err := strconv.Atoi(raw); err == nil && (key == "limit" || key == "offset") {
			body[key] = n
			continue
		}
		body[key] = raw
	}
	return f.client.Do(ctx, f.endpoint.Method, f.endpoint.Path, nil, body, dest)
}
