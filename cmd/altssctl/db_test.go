package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altss/altss/internal/savedsearch"
	"github.com/altss/altss/internal/shared"
)

type memSearches struct {
	saved []savedsearch.SavedSearch
	err   error
}

func (m *memSearches) Insert(ctx context.Context, s savedsearch.SavedSearch) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, s)
	return nil
}

type memActivity struct{ logs []shared.AuditLog }

func (m *memActivity) Record(ctx context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func TestSeedDemoRecordsActivityPerSearch(t *testing.T) {
	searches, activity := &memSearches{}, &memActivity{}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	n, err := seedDemo(context.Background(), searches, activity, "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, len(demoSearches), n)
	require.Len(t, activity.logs, n)
	for i, s := range searches.saved {
		assert.Equal(t, "user-1", s.OwnerID)
		assert.Equal(t, s.ID.String(), activity.logs[i].EntityID)
		assert.Equal(t, "saved_search.create", activity.logs[i].Action)
	}
	assert.Equal(t, now, searches.saved[0].CreatedAt)
}

func TestSeedDemoStopsAtLimit(t *testing.T) {
	searches := &memSearches{err: savedsearch.ErrLimit}
	n, err := seedDemo(context.Background(), searches, &memActivity{}, "user-1", time.Now())
	assert.Zero(t, n)
	assert.True(t, errors.Is(err, savedsearch.ErrLimit))
}

func TestDBCommandsRequireDSN(t *testing.T) {
	t.Setenv("PG_DSN", "")
	_, err := run(t, "db", "migrate")
	assert.ErrorContains(t, err, "PG_DSN")

	_, err = run(t, "db", "prune-keys")
	assert.ErrorContains(t, err, "PG_DSN")

	_, err = run(t, "db", "seed")
	assert.ErrorContains(t, err, "--user")
}
