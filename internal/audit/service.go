// Package audit serves the admin activity log recorded in audit_logs.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	// MaxExportRows caps a single CSV export.
	MaxExportRows = 5000
)

// Repository reads audit log rows.
type Repository interface {
	TimelineWindow(ctx context.Context, q Query, limit, offset int) ([]TimelineRow, error)
	TimelineAll(ctx context.Context, q Query, limit int) ([]TimelineRow, error)
}

// Service coordinates activity log reads.
type Service struct {
	repo Repository
}

// NewService constructs the activity log service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of the log. One extra row is fetched to detect a
// next page.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.TimelineWindow(ctx, toQuery(filters), pageSize+1, (page-1)*pageSize)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching row up to MaxExportRows.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.TimelineAll(ctx, toQuery(filters), MaxExportRows)
}

// toQuery turns the inclusive day range into a half-open timestamp range.
func toQuery(f TimelineFilters) Query {
	q := Query{
		From:   f.From,
		To:     f.To,
		Actor:  strings.TrimSpace(f.Actor),
		Entity: strings.TrimSpace(f.Entity),
		Action: strings.TrimSpace(f.Action),
	}
	if !q.To.IsZero() {
		q.To = q.To.Add(24 * time.Hour)
	} else {
		q.To = time.Now().UTC().Add(time.Minute)
	}
	return q
}
