package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists positions and the ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations the service needs.
type TxRepository interface {
	GetPositionForUpdate(ctx context.Context, q AvailabilityQuery) (Position, error)
	UpsertPosition(ctx context.Context, pos Position) error
	AppendEntry(ctx context.Context, entry LedgerEntry) (int64, error)
}

// ErrPositionNotFound indicates a missing position row.
var ErrPositionNotFound = errors.New("inventory position not found")

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &TxWriter{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetPosition reads one position without locking.
func (r *Repository) GetPosition(ctx context.Context, q AvailabilityQuery) (Position, error) {
	var pos Position
	err := r.pool.QueryRow(ctx, `SELECT product_id, location_id, lot_id, serial_id, on_hand, updated_at
FROM inventory_positions WHERE product_id=$1 AND location_id=$2 AND lot_id=$3 AND serial_id=$4`,
		q.ProductID, q.LocationID, q.LotID, q.SerialID).
		Scan(&pos.ProductID, &pos.LocationID, &pos.LotID, &pos.SerialID, &pos.OnHand, &pos.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Position{ProductID: q.ProductID, LocationID: q.LocationID, LotID: q.LotID, SerialID: q.SerialID}, ErrPositionNotFound
		}
		return Position{}, err
	}
	return pos, nil
}

// ListLedger returns ledger entries matching the filter in append order.
func (r *Repository) ListLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, location_id, lot_id, serial_id, kind, qty, qty_before, qty_after, reason, ref_doc, actor_id, occurred_at
FROM inventory_ledger
WHERE ($1 = 0 OR product_id = $1)
  AND ($2 = 0 OR location_id = $2)
  AND ($3 = 0 OR lot_id = $3)
  AND ($4 = 0 OR serial_id = $4)
  AND occurred_at BETWEEN COALESCE($5, '-infinity') AND COALESCE($6, 'infinity')
ORDER BY id ASC
LIMIT $7`, filter.ProductID, filter.LocationID, filter.LotID, filter.SerialID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []LedgerEntry{}
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.LocationID, &e.LotID, &e.SerialID, &e.Kind, &e.Quantity, &e.QtyBefore, &e.QtyAfter, &e.Reason, &e.RefDoc, &e.ActorID, &e.OccurredAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// SumLedger computes the signed quantity sum for one scope, used by replay.
func (r *Repository) SumLedger(ctx context.Context, q AvailabilityQuery) (float64, int, error) {
	var total float64
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(qty_after - qty_before), 0), COUNT(*)
FROM inventory_ledger WHERE product_id=$1 AND location_id=$2 AND lot_id=$3 AND serial_id=$4`,
		q.ProductID, q.LocationID, q.LotID, q.SerialID).Scan(&total, &count)
	if err != nil {
		return 0, 0, err
	}
	return total, count, nil
}

// TxWriter performs position and ledger writes on an open transaction. Other
// packages (lots, picking tasks) embed it in their own transactions so a
// quantity mutation and its ledger entry commit or roll back together.
type TxWriter struct {
	tx pgx.Tx
}

// NewTxWriter wraps an open transaction.
func NewTxWriter(tx pgx.Tx) *TxWriter {
	return &TxWriter{tx: tx}
}

// GetPositionForUpdate locks and reads a position row.
func (w *TxWriter) GetPositionForUpdate(ctx context.Context, q AvailabilityQuery) (Position, error) {
	var pos Position
	err := w.tx.QueryRow(ctx, `SELECT product_id, location_id, lot_id, serial_id, on_hand, updated_at
FROM inventory_positions WHERE product_id=$1 AND location_id=$2 AND lot_id=$3 AND serial_id=$4 FOR UPDATE`,
		q.ProductID, q.LocationID, q.LotID, q.SerialID).
		Scan(&pos.ProductID, &pos.LocationID, &pos.LotID, &pos.SerialID, &pos.OnHand, &pos.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Position{ProductID: q.ProductID, LocationID: q.LocationID, LotID: q.LotID, SerialID: q.SerialID}, ErrPositionNotFound
		}
		return Position{}, err
	}
	return pos, nil
}

// UpsertPosition writes the new on-hand value.
func (w *TxWriter) UpsertPosition(ctx context.Context, pos Position) error {
	_, err := w.tx.Exec(ctx, `INSERT INTO inventory_positions (product_id, location_id, lot_id, serial_id, on_hand, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (product_id, location_id, lot_id, serial_id) DO UPDATE SET on_hand=EXCLUDED.on_hand, updated_at=NOW()`,
		pos.ProductID, pos.LocationID, pos.LotID, pos.SerialID, pos.OnHand)
	return err
}

// Apply appends the entry and synchronises the matching position to the
// entry's after-quantity. Callers composing this into their own transaction
// have already locked the authoritative row (lot or position).
func (w *TxWriter) Apply(ctx context.Context, entry LedgerEntry) (int64, error) {
	id, err := w.AppendEntry(ctx, entry)
	if err != nil {
		return 0, err
	}
	pos := Position{
		ProductID:  entry.ProductID,
		LocationID: entry.LocationID,
		LotID:      entry.LotID,
		SerialID:   entry.SerialID,
		OnHand:     entry.QtyAfter,
	}
	if err := w.UpsertPosition(ctx, pos); err != nil {
		return 0, err
	}
	return id, nil
}

// AppendEntry inserts one immutable ledger entry and returns its id.
func (w *TxWriter) AppendEntry(ctx context.Context, entry LedgerEntry) (int64, error) {
	var id int64
	err := w.tx.QueryRow(ctx, `INSERT INTO inventory_ledger (product_id, location_id, lot_id, serial_id, kind, qty, qty_before, qty_after, reason, ref_doc, actor_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		entry.ProductID, entry.LocationID, entry.LotID, entry.SerialID, string(entry.Kind), entry.Quantity,
		entry.QtyBefore, entry.QtyAfter, entry.Reason, entry.RefDoc, entry.ActorID, entry.OccurredAt).Scan(&id)
	return id, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
