package locations

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warewave/warewave/internal/masterdata/shared"
	internalShared "github.com/warewave/warewave/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Location, int, error)
	Get(ctx context.Context, id int64) (Location, error)
	GetByCode(ctx context.Context, code string) (Location, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]Location, error)
	Create(ctx context.Context, loc Location) (Location, error)
	Update(ctx context.Context, id int64, loc Location) error
	Deactivate(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const locationColumns = `id, code, name, zone, x, y, capacity, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Location, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		where += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.Zone != "" {
		argCount++
		where += ` AND zone = $` + strconv.Itoa(argCount)
		args = append(args, filters.Zone)
	}
	if filters.IsActive != nil {
		argCount++
		where += ` AND is_active = $` + strconv.Itoa(argCount)
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM locations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + locationColumns + ` FROM locations` + where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, filters.Limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, filters.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, loc)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Location, error) {
	return r.one(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id)
}

func (r *repository) GetByCode(ctx context.Context, code string) (Location, error) {
	return r.one(ctx, `SELECT `+locationColumns+` FROM locations WHERE code = $1`, code)
}

// GetMany fetches a batch of locations keyed by id for route planning.
func (r *repository) GetMany(ctx context.Context, ids []int64) (map[int64]Location, error) {
	rows, err := r.db.Query(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64]Location, len(ids))
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		result[loc.ID] = loc
	}
	return result, rows.Err()
}

func (r *repository) one(ctx context.Context, query string, arg interface{}) (Location, error) {
	loc, err := scanLocation(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, fmt.Errorf("locations: %w", internalShared.ErrNotFound)
	}
	return loc, err
}

func (r *repository) Create(ctx context.Context, loc Location) (Location, error) {
	query := `INSERT INTO locations (code, name, zone, x, y, capacity, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING id`
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, query, loc.Code, loc.Name, loc.Zone, loc.X, loc.Y, loc.Capacity, loc.IsActive, now).Scan(&loc.ID)
	if err != nil {
		return Location{}, translateUnique(err, loc.Code)
	}
	loc.CreatedAt = now
	loc.UpdatedAt = now
	return loc, nil
}

func (r *repository) Update(ctx context.Context, id int64, loc Location) error {
	query := `UPDATE locations SET code = $1, name = $2, zone = $3, x = $4, y = $5, capacity = $6, is_active = $7, updated_at = $8 WHERE id = $9`
	tag, err := r.db.Exec(ctx, query, loc.Code, loc.Name, loc.Zone, loc.X, loc.Y, loc.Capacity, loc.IsActive, time.Now().UTC(), id)
	if err != nil {
		return translateUnique(err, loc.Code)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("locations: %w", internalShared.ErrNotFound)
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE locations SET is_active = FALSE, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("locations: %w", internalShared.ErrNotFound)
	}
	return nil
}

func scanLocation(row pgx.Row) (Location, error) {
	var loc Location
	err := row.Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Zone, &loc.X, &loc.Y, &loc.Capacity, &loc.IsActive, &loc.CreatedAt, &loc.UpdatedAt)
	return loc, err
}

func translateUnique(err error, code string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("locations: code %s already exists: %w", code, internalShared.ErrConflict)
	}
	return err
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir
	case "zone":
		return "zone " + dir + ", code ASC"
	case "created_at":
		return "created_at " + dir
	default:
		return "code " + dir
	}
}
