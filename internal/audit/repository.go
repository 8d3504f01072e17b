package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Query is the repository form of the timeline filters. To is exclusive.
type Query struct {
	From   time.Time
	To     time.Time
	Actor  string
	Entity string
	Action string
}

// PGRepository reads audit_logs from Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineSQL = `SELECT occurred_at, COALESCE(actor_id, ''), action, entity, entity_id, meta
FROM audit_logs
WHERE occurred_at >= $1 AND occurred_at < $2
  AND ($3 = '' OR actor_id = $3)
  AND ($4 = '' OR entity = $4)
  AND ($5 = '' OR action = $5)
ORDER BY occurred_at DESC, id DESC
LIMIT $6 OFFSET $7`

// TimelineWindow returns at most limit rows starting at offset, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, q Query, limit, offset int) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineSQL, q.From, q.To, q.Actor, q.Entity, q.Action, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query audit timeline: %w", err)
	}
	return collectRows(rows)
}

// TimelineAll returns up to limit matching rows for export.
func (r *PGRepository) TimelineAll(ctx context.Context, q Query, limit int) ([]TimelineRow, error) {
	return r.TimelineWindow(ctx, q, limit, 0)
}

func collectRows(rows pgx.Rows) ([]TimelineRow, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			out  TimelineRow
			meta []byte
		)
		if err := row.Scan(&out.At, &out.Actor, &out.Action, &out.Entity, &out.EntityID, &meta); err != nil {
			return TimelineRow{}, err
		}
		if len(meta) > 0 && string(meta) != "null" {
			if err := json.Unmarshal(meta, &out.Meta); err != nil {
				return TimelineRow{}, fmt.Errorf("decode audit meta: %w", err)
			}
		}
		return out, nil
	})
}
