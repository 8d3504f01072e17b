package listview

import (
	"context"
	"errors"
	"time"
)

// ErrScopeUnsupported is returned when select-all over every matching record
// is requested from a fetcher that cannot list ids.
var ErrScopeUnsupported = errors.New("listview: select-all scope not supported")

// Result is one page of a remote collection.
type Result[T any] struct {
	Items []T
	Total int
}

// Fetcher loads one page of a remote collection.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, q Query) (Result[T], error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc[T any] func(ctx context.Context, q Query) (Result[T], error)

// Fetch calls f.
func (f FetcherFunc[T]) Fetch(ctx context.Context, q Query) (Result[T], error) {
	return f(ctx, q)
}

// IDLister is implemented by fetchers able to resolve the ids of every record
// matching a query. It backs ScopeAllMatching.
type IDLister interface {
	MatchingIDs(ctx context.Context, q Query) ([]string, error)
}

// Metrics receives fetch observations. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveFetch(entity string, elapsed time.Duration, err error)
	StaleDiscarded(entity string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveFetch(string, time.Duration, error) {}
func (nopMetrics) StaleDiscarded(string)                     {}
