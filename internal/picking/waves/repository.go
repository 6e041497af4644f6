package waves

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warewave/warewave/internal/picking/shared"
	internalShared "github.com/warewave/warewave/internal/shared"
)

// Repository persists waves in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations the service needs.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Wave, error)
	Insert(ctx context.Context, wave Wave) (int64, error)
	Update(ctx context.Context, wave Wave) error
	Delete(ctx context.Context, id int64) error
	// ChildCounts scans child orders: how many exist, how many are
	// COMPLETED, and the item rollups carried on each order.
	ChildCounts(ctx context.Context, waveID int64) (orders, completed int, items, confirmed float64, err error)
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const waveColumns = `id, name, description, state, priority, zone, operator_id, deadline, started_at, ended_at,
total_orders, completed_orders, total_items, completed_items, active, created_at, updated_at`

// Get reads one wave without locking.
func (r *Repository) Get(ctx context.Context, id int64) (Wave, error) {
	return scanWave(r.pool.QueryRow(ctx, `SELECT `+waveColumns+` FROM waves WHERE id = $1`, id))
}

// List returns waves matching the filter plus a total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Wave, int, error) {
	where := ` WHERE active`
	args := []interface{}{}
	argCount := 0

	if filter.State != "" {
		argCount++
		where += ` AND state = $` + strconv.Itoa(argCount)
		args = append(args, filter.State)
	}
	if filter.Priority != "" {
		argCount++
		where += ` AND priority = $` + strconv.Itoa(argCount)
		args = append(args, filter.Priority)
	}
	if filter.Zone != "" {
		argCount++
		where += ` AND zone = $` + strconv.Itoa(argCount)
		args = append(args, filter.Zone)
	}
	if filter.OperatorID != 0 {
		argCount++
		where += ` AND operator_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.OperatorID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM waves`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := internalShared.NewPagination(filter.Pagination.Page, filter.Pagination.PerPage, total)
	query := `SELECT ` + waveColumns + ` FROM waves` + where + ` ORDER BY deadline ASC, id ASC`
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, page.PerPage)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Wave
	for rows.Next() {
		wave, err := scanWave(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, wave)
	}
	return items, total, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (Wave, error) {
	return scanWave(t.tx.QueryRow(ctx, `SELECT `+waveColumns+` FROM waves WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) Insert(ctx context.Context, wave Wave) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO waves
(name, description, state, priority, zone, operator_id, deadline, total_orders, completed_orders, total_items, completed_items, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, 0, 0, TRUE, $8, $8) RETURNING id`,
		wave.Name, wave.Description, wave.State, wave.Priority, wave.Zone, wave.OperatorID, wave.Deadline, wave.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepository) Update(ctx context.Context, wave Wave) error {
	_, err := t.tx.Exec(ctx, `UPDATE waves SET state = $1, operator_id = $2, started_at = $3, ended_at = $4,
total_orders = $5, completed_orders = $6, total_items = $7, completed_items = $8, active = $9, updated_at = $10 WHERE id = $11`,
		wave.State, wave.OperatorID, wave.StartedAt, wave.EndedAt,
		wave.TotalOrders, wave.CompletedOrders, wave.TotalItems, wave.CompletedItems, wave.Active, time.Now().UTC(), wave.ID)
	return err
}

func (t *txRepository) Delete(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM waves WHERE id = $1`, id)
	return err
}

// ChildCounts rolls up the wave's orders. Cancelled orders drop out of the
// rollup entirely, matching the task rollup: otherwise one cancelled order
// would block the wave from ever completing.
func (t *txRepository) ChildCounts(ctx context.Context, waveID int64) (int, int, float64, float64, error) {
	var orders, completed int
	var items, confirmed float64
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FILTER (WHERE state != $1),
COUNT(*) FILTER (WHERE state = $2),
COALESCE(SUM(total_items) FILTER (WHERE state != $1), 0),
COALESCE(SUM(completed_items) FILTER (WHERE state != $1), 0)
FROM orders WHERE wave_id = $3`, shared.StatusCancelled, shared.StatusCompleted, waveID).Scan(&orders, &completed, &items, &confirmed)
	return orders, completed, items, confirmed, err
}

func scanWave(row pgx.Row) (Wave, error) {
	var w Wave
	err := row.Scan(&w.ID, &w.Name, &w.Description, &w.State, &w.Priority, &w.Zone, &w.OperatorID,
		&w.Deadline, &w.StartedAt, &w.EndedAt, &w.TotalOrders, &w.CompletedOrders,
		&w.TotalItems, &w.CompletedItems, &w.Active, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wave{}, ErrWaveNotFound
	}
	return w, err
}
