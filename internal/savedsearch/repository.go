package savedsearch

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/altss/altss/internal/platform/db"
)

// Repository persists saved searches in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a new saved search. Concurrent inserts for one owner are
// serialised so the MaxPerOwner check holds.
func (r *Repository) Insert(ctx context.Context, s SavedSearch) error {
	filter, err := json.Marshal(s.Filter)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.OwnerID); err != nil {
			return err
		}
		var count int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM saved_searches WHERE user_id = $1`, s.OwnerID).Scan(&count); err != nil {
			return err
		}
		if count >= MaxPerOwner {
			return ErrLimit
		}
		_, err := tx.Exec(ctx, `INSERT INTO saved_searches (id, user_id, name, filter, created_at) VALUES ($1, $2, $3, $4, $5)`,
			s.ID, s.OwnerID, s.Name, filter, s.CreatedAt)
		return err
	})
}

const listByOwnerSQL = `SELECT id, user_id, name, filter, created_at FROM saved_searches WHERE user_id = $1 ORDER BY created_at DESC, id`

// ListByOwner returns the user's saved searches, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]SavedSearch, error) {
	rows, err := r.pool.Query(ctx, listByOwnerSQL, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SavedSearch
	for rows.Next() {
		var (
			s      SavedSearch
			filter []byte
		)
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Name, &filter, &s.CreatedAt); err != nil {
			return nil, err
		}
		if len(filter) > 0 {
			if err := json.Unmarshal(filter, &s.Filter); err != nil {
				return nil, err
			}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the search when owned by ownerID.
func (r *Repository) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM saved_searches WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
