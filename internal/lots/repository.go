package lots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warewave/warewave/internal/inventory"
	"github.com/warewave/warewave/internal/shared"
	"github.com/warewave/warewave/internal/trace"
)

var (
	// ErrLotNotFound indicates a missing lot row.
	ErrLotNotFound = fmt.Errorf("lots: lot %w", shared.ErrNotFound)
	// ErrSerialNotFound indicates a missing serial row.
	ErrSerialNotFound = fmt.Errorf("lots: serial %w", shared.ErrNotFound)
)

// Repository persists lots and serial units in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service. Ledger
// and trace appends ride the same transaction as the quantity mutation so
// the three commit or roll back together.
type TxRepository interface {
	InsertLot(ctx context.Context, lot Lot) (int64, error)
	GetLotForUpdate(ctx context.Context, id int64) (Lot, error)
	UpdateLotQuantity(ctx context.Context, id int64, qty float64) error
	UpdateLotState(ctx context.Context, id int64, state LotState) error
	InsertSerial(ctx context.Context, unit SerialUnit) (int64, error)
	GetSerialForUpdate(ctx context.Context, id int64) (SerialUnit, error)
	UpdateSerial(ctx context.Context, id int64, state SerialState, locationID int64) error
	AppendLedger(ctx context.Context, entry inventory.LedgerEntry) (int64, error)
	RecordTrace(ctx context.Context, event trace.Event) (int64, error)
}

type txRepository struct {
	tx     pgx.Tx
	ledger *inventory.TxWriter
	events *trace.TxRecorder
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("lots repository not initialised")
	}
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

const lotColumns = `id, code, product_id, location_id, manufacture_date, expiry_date, supplier, initial_qty, available_qty, state, active, created_at, updated_at`

func scanLot(row pgx.Row) (Lot, error) {
	var lot Lot
	err := row.Scan(&lot.ID, &lot.Code, &lot.ProductID, &lot.LocationID, &lot.ManufactureDate, &lot.ExpiryDate,
		&lot.Supplier, &lot.InitialQty, &lot.AvailableQty, &lot.State, &lot.Active, &lot.CreatedAt, &lot.UpdatedAt)
	return lot, err
}

// GetLot reads one lot without locking.
func (r *Repository) GetLot(ctx context.Context, id int64) (Lot, error) {
	lot, err := scanLot(r.pool.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lot{}, ErrLotNotFound
		}
		return Lot{}, err
	}
	return lot, nil
}

// GetLotByCode reads one lot by its unique code.
func (r *Repository) GetLotByCode(ctx context.Context, code string) (Lot, error) {
	lot, err := scanLot(r.pool.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE code=$1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lot{}, ErrLotNotFound
		}
		return Lot{}, err
	}
	return lot, nil
}

// List returns lots matching the filter plus a total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Lot, int, error) {
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	where := ` WHERE ($1 = 0 OR product_id = $1) AND ($2 = 0 OR location_id = $2) AND ($3 = '' OR state = $3) AND (NOT $4 OR active)`
	args := []any{filter.ProductID, filter.LocationID, string(filter.State), filter.ActiveOnly}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM lots`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+lotColumns+` FROM lots`+where+` ORDER BY id ASC LIMIT $5 OFFSET $6`,
		append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	result := []Lot{}
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// ListExpiring returns active, non-terminal lots expiring before the cutoff.
func (r *Repository) ListExpiring(ctx context.Context, before time.Time) ([]Lot, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lotColumns+` FROM lots
WHERE active AND state NOT IN ('EXPIRED','WITHDRAWN') AND expiry_date IS NOT NULL AND expiry_date < $1
ORDER BY expiry_date ASC`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Lot{}
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const serialColumns = `id, serial, product_id, lot_id, location_id, state, created_at, updated_at`

func scanSerial(row pgx.Row) (SerialUnit, error) {
	var unit SerialUnit
	err := row.Scan(&unit.ID, &unit.Serial, &unit.ProductID, &unit.LotID, &unit.LocationID, &unit.State, &unit.CreatedAt, &unit.UpdatedAt)
	return unit, err
}

// GetSerial reads one serial unit.
func (r *Repository) GetSerial(ctx context.Context, id int64) (SerialUnit, error) {
	unit, err := scanSerial(r.pool.QueryRow(ctx, `SELECT `+serialColumns+` FROM serial_units WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SerialUnit{}, ErrSerialNotFound
		}
		return SerialUnit{}, err
	}
	return unit, nil
}

// GetSerialByValue reads one serial unit by its unique value.
func (r *Repository) GetSerialByValue(ctx context.Context, serial string) (SerialUnit, error) {
	unit, err := scanSerial(r.pool.QueryRow(ctx, `SELECT `+serialColumns+` FROM serial_units WHERE serial=$1`, serial))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SerialUnit{}, ErrSerialNotFound
		}
		return SerialUnit{}, err
	}
	return unit, nil
}

func (r *txRepository) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO lots (code, product_id, location_id, manufacture_date, expiry_date, supplier, initial_qty, available_qty, state, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW()) RETURNING id`,
		lot.Code, lot.ProductID, lot.LocationID, lot.ManufactureDate, lot.ExpiryDate, lot.Supplier,
		lot.InitialQty, lot.AvailableQty, string(lot.State), lot.Active).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateCode
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) GetLotForUpdate(ctx context.Context, id int64) (Lot, error) {
	lot, err := scanLot(r.tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lot{}, ErrLotNotFound
		}
		return Lot{}, err
	}
	return lot, nil
}

func (r *txRepository) UpdateLotQuantity(ctx context.Context, id int64, qty float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE lots SET available_qty=$2, updated_at=NOW() WHERE id=$1`, id, qty)
	return err
}

func (r *txRepository) UpdateLotState(ctx context.Context, id int64, state LotState) error {
	_, err := r.tx.Exec(ctx, `UPDATE lots SET state=$2, updated_at=NOW() WHERE id=$1`, id, string(state))
	return err
}

func (r *txRepository) InsertSerial(ctx context.Context, unit SerialUnit) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO serial_units (serial, product_id, lot_id, location_id, state, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW()) RETURNING id`,
		unit.Serial, unit.ProductID, unit.LotID, unit.LocationID, string(unit.State)).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateCode
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) GetSerialForUpdate(ctx context.Context, id int64) (SerialUnit, error) {
	unit, err := scanSerial(r.tx.QueryRow(ctx, `SELECT `+serialColumns+` FROM serial_units WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SerialUnit{}, ErrSerialNotFound
		}
		return SerialUnit{}, err
	}
	return unit, nil
}

func (r *txRepository) UpdateSerial(ctx context.Context, id int64, state SerialState, locationID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE serial_units SET state=$2, location_id=$3, updated_at=NOW() WHERE id=$1`, id, string(state), locationID)
	return err
}

func (r *txRepository) AppendLedger(ctx context.Context, entry inventory.LedgerEntry) (int64, error) {
	return r.ledger.Apply(ctx, entry)
}

func (r *txRepository) RecordTrace(ctx context.Context, event trace.Event) (int64, error) {
	return r.events.Append(ctx, event)
}
