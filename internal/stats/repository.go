package stats

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warewave/warewave/internal/picking/shared"
)

// Repository reads aggregation facts from PostgreSQL. Stats never write
// back into the operational tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Orders returns the operator's orders that ended inside the window.
func (r *Repository) Orders(ctx context.Context, operatorID int64, from, to time.Time, waveID int64) ([]OrderFact, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, state, started_at, ended_at, total_items, completed_items
FROM orders
WHERE operator_id = $1 AND ended_at >= $2 AND ended_at < $3 AND ($4 = 0 OR wave_id = $4)`,
		operatorID, from, to, waveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []OrderFact
	for rows.Next() {
		var f OrderFact
		if err := rows.Scan(&f.ID, &f.State, &f.StartedAt, &f.EndedAt, &f.Items, &f.Confirmed); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// Tasks returns the operator's tasks that ended inside the window.
func (r *Repository) Tasks(ctx context.Context, operatorID int64, from, to time.Time, waveID int64) ([]TaskFact, error) {
	rows, err := r.pool.Query(ctx, `SELECT t.id, t.state, t.requested_qty, t.picked_qty, t.confirmed_qty, t.started_at, t.ended_at
FROM pick_tasks t
JOIN orders o ON o.id = t.order_id
WHERE t.operator_id = $1 AND t.ended_at >= $2 AND t.ended_at < $3 AND ($4 = 0 OR o.wave_id = $4)`,
		operatorID, from, to, waveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []TaskFact
	for rows.Next() {
		var f TaskFact
		if err := rows.Scan(&f.ID, &f.State, &f.Requested, &f.Picked, &f.Confirmed, &f.StartedAt, &f.EndedAt); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// Distance sums the leg distances of the operator's completed route stops
// inside the window.
func (r *Repository) Distance(ctx context.Context, operatorID int64, from, to time.Time, waveID int64) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(leg_distance), 0) FROM route_entries
WHERE operator_id = $1 AND state = $2 AND done_at >= $3 AND done_at < $4 AND ($5 = 0 OR wave_id = $5)`,
		operatorID, shared.StatusCompleted, from, to, waveID).Scan(&total)
	return total, err
}
