package audit

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	rows        []TimelineRow
	lastQuery   Query
	lastLimit   int
	lastOffset  int
	exportLimit int
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, q Query, limit, offset int) ([]TimelineRow, error) {
	s.lastQuery, s.lastLimit, s.lastOffset = q, limit, offset
	if len(s.rows) > limit {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func (s *stubTimelineRepo) TimelineAll(ctx context.Context, q Query, limit int) ([]TimelineRow, error) {
	s.lastQuery, s.exportLimit = q, limit
	return s.rows, nil
}

func mockRow(at, actor, action, entity, id string) TimelineRow {
	ts, _ := time.Parse(time.RFC3339, at)
	return TimelineRow{At: ts, Actor: actor, Action: action, Entity: entity, EntityID: id}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		mockRow("2026-03-10T10:00:00Z", "u1", "account.plan", "account", "u2"),
		mockRow("2026-03-09T09:00:00Z", "u1", "account.status", "account", "u3"),
		mockRow("2026-03-08T08:00:00Z", "u4", "saved_search.create", "saved_search", "s1"),
	}}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Actor:    " u1 ",
		Page:     1,
		PageSize: 2,
	})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Zero(t, result.Paging.PrevPage)
	assert.Equal(t, 3, repo.lastLimit)
	assert.Equal(t, 0, repo.lastOffset)
	assert.Equal(t, "u1", repo.lastQuery.Actor)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), repo.lastQuery.To)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, result.Paging.PageSize)
	assert.Equal(t, maxPageSize+1, repo.lastLimit)
	assert.Equal(t, 2*maxPageSize, repo.lastOffset)
	assert.Equal(t, 2, result.Paging.PrevPage)
	assert.False(t, result.Paging.HasNext)
}

func TestServiceWithoutRepository(t *testing.T) {
	_, err := NewService(nil).Timeline(context.Background(), TimelineFilters{})
	assert.Error(t, err)
	_, err = NewService(nil).Export(context.Background(), TimelineFilters{})
	assert.Error(t, err)
}

func TestServiceExportCapsRows(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{mockRow("2026-03-10T10:00:00Z", "u1", "company.update", "company", "42")}}
	rows, err := NewService(repo).Export(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, MaxExportRows, repo.exportLimit)
}

func TestWriteCSV(t *testing.T) {
	row := mockRow("2026-03-10T10:00:00Z", "u1", "account.plan", "account", "u2")
	row.Meta = map[string]any{"to": "pro", "from": "trial"}
	out, err := WriteCSV([]TimelineRow{row})
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"2026-03-10T10:00:00Z", "u1", "account.plan", "account", "u2", "from=trial; to=pro"}, records[1])
}
