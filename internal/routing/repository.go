package routing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warewave/warewave/internal/picking/shared"
)

// Repository persists route entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations the service needs.
type TxRepository interface {
	DeleteRoute(ctx context.Context, waveID, operatorID int64) error
	InsertEntries(ctx context.Context, entries []Entry) error
	GetForUpdate(ctx context.Context, id int64) (Entry, error)
	Update(ctx context.Context, entry Entry) error
	// OpenSeqBefore counts non-terminal entries with a lower sequence on
	// the same route.
	OpenSeqBefore(ctx context.Context, entry Entry) (int, error)
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

const entryColumns = `id, wave_id, operator_id, seq, task_id, product_id, location_id, quantity, state, leg_distance, est_seconds, done_at, created_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.WaveID, &e.OperatorID, &e.Seq, &e.TaskID, &e.ProductID, &e.LocationID,
		&e.Quantity, &e.State, &e.LegDistance, &e.EstSeconds, &e.DoneAt, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return e, err
}

// ListRoute returns a route's entries in sequence order.
func (r *Repository) ListRoute(ctx context.Context, waveID, operatorID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM route_entries
WHERE wave_id = $1 AND ($2 = 0 OR operator_id = $2) ORDER BY operator_id ASC, seq ASC`, waveID, operatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// PendingStops resolves the wave's PENDING tasks to coordinates. Tasks whose
// location has no known coordinates never existed for routing purposes.
func (r *Repository) PendingStops(ctx context.Context, waveID int64) ([]Stop, error) {
	rows, err := r.pool.Query(ctx, `SELECT t.id, t.product_id, t.location_id, l.x, l.y, t.requested_qty
FROM pick_tasks t
JOIN orders o ON o.id = t.order_id
JOIN locations l ON l.id = t.location_id
WHERE o.wave_id = $1 AND t.state = $2
ORDER BY t.id ASC`, waveID, shared.StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stops []Stop
	for rows.Next() {
		var s Stop
		if err := rows.Scan(&s.TaskID, &s.ProductID, &s.LocationID, &s.X, &s.Y, &s.Quantity); err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) DeleteRoute(ctx context.Context, waveID, operatorID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM route_entries WHERE wave_id = $1 AND operator_id = $2`, waveID, operatorID)
	return err
}

func (t *txRepository) InsertEntries(ctx context.Context, entries []Entry) error {
	for i := range entries {
		err := t.tx.QueryRow(ctx, `INSERT INTO route_entries
(wave_id, operator_id, seq, task_id, product_id, location_id, quantity, state, leg_distance, est_seconds, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
			entries[i].WaveID, entries[i].OperatorID, entries[i].Seq, entries[i].TaskID,
			entries[i].ProductID, entries[i].LocationID, entries[i].Quantity, entries[i].State,
			entries[i].LegDistance, entries[i].EstSeconds, entries[i].CreatedAt).Scan(&entries[i].ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (Entry, error) {
	return scanEntry(t.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM route_entries WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) Update(ctx context.Context, entry Entry) error {
	_, err := t.tx.Exec(ctx, `UPDATE route_entries SET state = $1, done_at = $2 WHERE id = $3`,
		entry.State, entry.DoneAt, entry.ID)
	return err
}

func (t *txRepository) OpenSeqBefore(ctx context.Context, entry Entry) (int, error) {
	var open int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM route_entries
WHERE wave_id = $1 AND operator_id = $2 AND seq < $3 AND state NOT IN ($4, $5)`,
		entry.WaveID, entry.OperatorID, entry.Seq, shared.StatusCompleted, shared.StatusCancelled).Scan(&open)
	return open, err
}
