package trace

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists traceability events in PostgreSQL. Only insert and
// read operations exist; there is no update or delete path.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append inserts one event.
func (r *Repository) Append(ctx context.Context, event Event) (int64, error) {
	if r == nil {
		return 0, errors.New("trace repository not initialised")
	}
	return appendEvent(ctx, r.pool, event)
}

// List returns events matching the filter in append order.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, event_id, product_id, lot_id, serial_id, kind, origin_location_id, dest_location_id, qty, actor_id, occurred_at, payload
FROM trace_events
WHERE ($1 = 0 OR product_id = $1)
  AND ($2 = 0 OR lot_id = $2)
  AND ($3 = 0 OR serial_id = $3)
  AND ($4 = '' OR kind = $4)
  AND occurred_at BETWEEN COALESCE($5, '-infinity') AND COALESCE($6, 'infinity')
ORDER BY id ASC
LIMIT $7`, filter.ProductID, filter.LotID, filter.SerialID, string(filter.Kind), nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := []Event{}
	for rows.Next() {
		var e Event
		var payload []byte
		if err := rows.Scan(&e.ID, &e.EventID, &e.ProductID, &e.LotID, &e.SerialID, &e.Kind, &e.OriginLocation, &e.DestLocation, &e.Quantity, &e.ActorID, &e.OccurredAt, &payload); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// TxRecorder appends events on an open transaction so an event and its
// coupled quantity mutation commit together.
type TxRecorder struct {
	tx pgx.Tx
}

// NewTxRecorder wraps an open transaction.
func NewTxRecorder(tx pgx.Tx) *TxRecorder {
	return &TxRecorder{tx: tx}
}

// Append inserts one event within the transaction.
func (r *TxRecorder) Append(ctx context.Context, event Event) (int64, error) {
	return appendEvent(ctx, r.tx, event)
}

type execer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func appendEvent(ctx context.Context, db execer, event Event) (int64, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return 0, err
	}
	var id int64
	err = db.QueryRow(ctx, `INSERT INTO trace_events (event_id, product_id, lot_id, serial_id, kind, origin_location_id, dest_location_id, qty, actor_id, occurred_at, payload)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		event.EventID, event.ProductID, event.LotID, event.SerialID, string(event.Kind),
		event.OriginLocation, event.DestLocation, event.Quantity, event.ActorID, event.OccurredAt, payload).Scan(&id)
	return id, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
