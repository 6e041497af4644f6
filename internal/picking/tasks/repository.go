package tasks

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warewave/warewave/internal/inventory"
	"github.com/warewave/warewave/internal/lots"
	internalShared "github.com/warewave/warewave/internal/shared"
	"github.com/warewave/warewave/internal/trace"
)

// Repository persists pick tasks in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service. Lot
// and position mutations, the ledger append and the trace event all ride
// the same transaction as the task state change.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Task, error)
	Insert(ctx context.Context, task Task) (int64, error)
	Update(ctx context.Context, task Task) error
	GetLotForUpdate(ctx context.Context, lotID int64) (lots.Lot, error)
	UpdateLotQuantity(ctx context.Context, lotID int64, qty float64) error
	GetPositionForUpdate(ctx context.Context, q inventory.AvailabilityQuery) (inventory.Position, error)
	// Apply appends the ledger entry and syncs the matching position row.
	Apply(ctx context.Context, entry inventory.LedgerEntry) (int64, error)
	RecordTrace(ctx context.Context, event trace.Event) (int64, error)
}

type txRepository struct {
	tx     pgx.Tx
	ledger *inventory.TxWriter
	events *trace.TxRecorder
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx, ledger: inventory.NewTxWriter(tx), events: trace.NewTxRecorder(tx)}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const taskColumns = `id, order_id, product_id, lot_id, serial_id, location_id, requested_qty, picked_qty,
confirmed_qty, state, operator_id, started_at, ended_at, created_at, updated_at`

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.OrderID, &t.ProductID, &t.LotID, &t.SerialID, &t.LocationID,
		&t.RequestedQty, &t.PickedQty, &t.ConfirmedQty, &t.State, &t.OperatorID,
		&t.StartedAt, &t.EndedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrTaskNotFound
	}
	return t, err
}

// Get reads one task without locking.
func (r *Repository) Get(ctx context.Context, id int64) (Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM pick_tasks WHERE id = $1`, id))
}

// List returns tasks matching the filter plus a total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Task, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filter.OrderID != 0 {
		argCount++
		where += ` AND order_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.OrderID)
	}
	if filter.WaveID != 0 {
		argCount++
		where += ` AND order_id IN (SELECT id FROM orders WHERE wave_id = $` + strconv.Itoa(argCount) + `)`
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pick_tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := internalShared.NewPagination(filter.Pagination.Page, filter.Pagination.PerPage, total)
	query := `SELECT ` + taskColumns + ` FROM pick_tasks` + where + ` ORDER BY id ASC`
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

	var items []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, task)
	}
	return items, total, rows.Err()
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (Task, error) {
	return scanTask(t.tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM pick_tasks WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) Insert(ctx context.Context, task Task) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO pick_tasks
(order_id, product_id, lot_id, serial_id, location_id, requested_qty, picked_qty, confirmed_qty, state, operator_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $8, $9, $9) RETURNING id`,
		task.OrderID, task.ProductID, task.LotID, task.SerialID, task.LocationID,
		task.RequestedQty, task.State, task.OperatorID, task.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepository) Update(ctx context.Context, task Task) error {
	_, err := t.tx.Exec(ctx, `UPDATE pick_tasks SET picked_qty = $1, confirmed_qty = $2, state = $3,
operator_id = $4, started_at = $5, ended_at = $6, updated_at = $7 WHERE id = $8`,
		task.PickedQty, task.ConfirmedQty, task.State, task.OperatorID,
		task.StartedAt, task.EndedAt, time.Now().UTC(), task.ID)
	return err
}

func (t *txRepository) GetLotForUpdate(ctx context.Context, lotID int64) (lots.Lot, error) {
	var lot lots.Lot
	err := t.tx.QueryRow(ctx, `SELECT id, code, product_id, location_id, manufacture_date, expiry_date, supplier,
initial_qty, available_qty, state, active, created_at, updated_at FROM lots WHERE id = $1 FOR UPDATE`, lotID).
		Scan(&lot.ID, &lot.Code, &lot.ProductID, &lot.LocationID, &lot.ManufactureDate, &lot.ExpiryDate,
			&lot.Supplier, &lot.InitialQty, &lot.AvailableQty, &lot.State, &lot.Active, &lot.CreatedAt, &lot.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return lots.Lot{}, lots.ErrLotNotFound
	}
	return lot, err
}

func (t *txRepository) UpdateLotQuantity(ctx context.Context, lotID int64, qty float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE lots SET available_qty = $1, updated_at = NOW() WHERE id = $2`, qty, lotID)
	return err
}

func (t *txRepository) GetPositionForUpdate(ctx context.Context, q inventory.AvailabilityQuery) (inventory.Position, error) {
	return t.ledger.GetPositionForUpdate(ctx, q)
}

func (t *txRepository) Apply(ctx context.Context, entry inventory.LedgerEntry) (int64, error) {
	return t.ledger.Apply(ctx, entry)
}

func (t *txRepository) RecordTrace(ctx context.Context, event trace.Event) (int64, error) {
	return t.events.Append(ctx, event)
}
