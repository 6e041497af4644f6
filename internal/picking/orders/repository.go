package orders

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warewave/warewave/internal/picking/shared"
	internalShared "github.com/warewave/warewave/internal/shared"
)

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations the service needs.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Order, error)
	Insert(ctx context.Context, order Order) (int64, error)
	Update(ctx context.Context, order Order) error
	// TaskSums scans child tasks: requested total across all tasks and
	// confirmed total across COMPLETED tasks, plus task counts.
	TaskSums(ctx context.Context, orderID int64) (requested, confirmed float64, tasks, completed int, err error)
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

const orderColumns = `id, number, wave_id, requester, state, priority, operator_id, ordered_at, deadline,
started_at, ended_at, total_items, completed_items, created_at, updated_at`

// Get reads one order without locking.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// GetByNumber reads one order by its unique number.
func (r *Repository) GetByNumber(ctx context.Context, number string) (Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE number = $1`, number))
}

// List returns orders matching the filter plus a total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filter.WaveID != 0 {
		argCount++
		where += ` AND wave_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.WaveID)
	}
	if filter.State != "" {
		argCount++
		where += ` AND state = $` + strconv.Itoa(argCount)
		args = append(args, filter.State)
	}
	if filter.OperatorID != 0 {
		argCount++
		where += ` AND operator_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.OperatorID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := internalShared.NewPagination(filter.Pagination.Page, filter.Pagination.PerPage, total)
	query := `SELECT ` + orderColumns + ` FROM orders` + where + ` ORDER BY ordered_at ASC, id ASC`
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

	var items []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, order)
	}
	return items, total, rows.Err()
}

// TaskStops returns location snapshots for the order's tasks, used by the
// estimate derivation.
func (r *Repository) TaskStops(ctx context.Context, orderID int64) ([]TaskStop, error) {
	rows, err := r.pool.Query(ctx, `SELECT t.id, t.location_id, l.x, l.y, t.requested_qty
FROM pick_tasks t JOIN locations l ON l.id = t.location_id
WHERE t.order_id = $1 ORDER BY t.id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stops []TaskStop
	for rows.Next() {
		var s TaskStop
		if err := rows.Scan(&s.TaskID, &s.LocationID, &s.X, &s.Y, &s.Quantity); err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) Insert(ctx context.Context, order Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO orders
(number, wave_id, requester, state, priority, operator_id, ordered_at, deadline, total_items, completed_items, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 0, $9, $9) RETURNING id`,
		order.Number, order.WaveID, order.Requester, order.State, order.Priority,
		order.OperatorID, order.OrderedAt, order.Deadline, order.CreatedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateNumber
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepository) Update(ctx context.Context, order Order) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET state = $1, operator_id = $2, started_at = $3, ended_at = $4,
total_items = $5, completed_items = $6, updated_at = $7 WHERE id = $8`,
		order.State, order.OperatorID, order.StartedAt, order.EndedAt,
		order.TotalItems, order.CompletedItems, time.Now().UTC(), order.ID)
	return err
}

func (t *txRepository) TaskSums(ctx context.Context, orderID int64) (float64, float64, int, int, error) {
	var requested, confirmed float64
	var tasks, completed int
	// Cancelled tasks drop out of the rollup entirely, otherwise one
	// cancelled line would block the order from ever completing.
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(requested_qty) FILTER (WHERE state != $2), 0),
COALESCE(SUM(confirmed_qty) FILTER (WHERE state = $1), 0),
COUNT(*) FILTER (WHERE state != $2),
COUNT(*) FILTER (WHERE state = $1)
FROM pick_tasks WHERE order_id = $3`, shared.StatusCompleted, shared.StatusCancelled, orderID).Scan(&requested, &confirmed, &tasks, &completed)
	return requested, confirmed, tasks, completed, err
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.WaveID, &o.Requester, &o.State, &o.Priority, &o.OperatorID,
		&o.OrderedAt, &o.Deadline, &o.StartedAt, &o.EndedAt, &o.TotalItems, &o.CompletedItems,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}
