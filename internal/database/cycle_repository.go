package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const cycleColumns = `id, cycle_name, status, longitude, latitude, retired_at, created_at, updated_at`

// CycleRepository handles cycle availability in Postgres
type CycleRepository struct {
	db sqlx.ExtContext
}

// NewCycleRepository binds the repository to a connection or a transaction
func NewCycleRepository(db sqlx.ExtContext) *CycleRepository {
	return &CycleRepository{db: db}
}

func scanCycle(row scanner) (*models.Cycle, error) {
	var c models.Cycle
	var retiredAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.CycleName, &c.Status,
		&c.CurrentLocation.Longitude, &c.CurrentLocation.Latitude,
		&retiredAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	c.RetiredAt = timePtr(retiredAt)
	return &c, nil
}

// Create inserts a cycle; duplicate names return store.ErrConflict
func (r *CycleRepository) Create(ctx context.Context, cycle *models.Cycle) error {
	if cycle.ID == uuid.Nil {
		cycle.ID = uuid.New()
	}
	if cycle.Status == "" {
		cycle.Status = models.CycleStatusAvailable
	}

	query := `
		INSERT INTO cycles (id, cycle_name, status, longitude, latitude)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		cycle.ID, cycle.CycleName, cycle.Status,
		cycle.CurrentLocation.Longitude, cycle.CurrentLocation.Latitude,
	).Scan(&cycle.CreatedAt, &cycle.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create cycle: %w", translate(err))
	}
	return nil
}

// GetByID returns a cycle, retired or not
func (r *CycleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE id = $1`
	return scanCycle(r.db.QueryRowxContext(ctx, query, id))
}

// List returns non-retired cycles matching the filter, ordered by name
func (r *CycleRepository) List(ctx context.Context, filter models.CycleFilter) ([]models.Cycle, error) {
	conditions := []string{"retired_at IS NULL"}
	var args []interface{}

	if filter.CycleID != nil {
		args = append(args, *filter.CycleID)
		conditions = append(conditions, fmt.Sprintf("id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Location != nil {
		args = append(args, filter.Location.Longitude, filter.Location.Latitude)
		conditions = append(conditions, fmt.Sprintf("longitude = $%d AND latitude = $%d", len(args)-1, len(args)))
	}

	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY cycle_name`

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer rows.Close()

	var cycles []models.Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, *c)
	}
	return cycles, rows.Err()
}

// FindAvailable returns the first available cycle, optionally at a point
func (r *CycleRepository) FindAvailable(ctx context.Context, at *models.Point) (*models.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles
		WHERE status = 'available' AND retired_at IS NULL`
	var args []interface{}
	if at != nil {
		query += ` AND longitude = $1 AND latitude = $2`
		args = append(args, at.Longitude, at.Latitude)
	}
	query += ` ORDER BY cycle_name LIMIT 1`

	return scanCycle(r.db.QueryRowxContext(ctx, query, args...))
}

// Allocate flips available -> booked in one conditional statement. Under
// concurrent callers Postgres re-checks the WHERE clause after the row lock,
// so exactly one UPDATE returns a row.
func (r *CycleRepository) Allocate(ctx context.Context, id uuid.UUID) (*models.Cycle, error) {
	query := `
		UPDATE cycles
		SET status = 'booked', updated_at = NOW()
		WHERE id = $1 AND status = 'available' AND retired_at IS NULL
		RETURNING ` + cycleColumns

	c, err := scanCycle(r.db.QueryRowxContext(ctx, query, id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrNotAvailable
	}
	return c, err
}

// Transition is the guarded status write used for release and maintenance
func (r *CycleRepository) Transition(ctx context.Context, id uuid.UUID, from, to models.CycleStatus, location *models.Point) (*models.Cycle, error) {
	var lng, lat sql.NullFloat64
	if location != nil {
		lng = sql.NullFloat64{Float64: location.Longitude, Valid: true}
		lat = sql.NullFloat64{Float64: location.Latitude, Valid: true}
	}

	query := `
		UPDATE cycles
		SET status = $3,
		    longitude = COALESCE($4, longitude),
		    latitude = COALESCE($5, latitude),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2 AND retired_at IS NULL
		RETURNING ` + cycleColumns

	c, err := scanCycle(r.db.QueryRowxContext(ctx, query, id, from, to, lng, lat))
	if errors.Is(err, store.ErrNotFound) {
		return nil, r.explain(ctx, id, from)
	}
	return c, err
}

// explain tells a missing cycle apart from one in the wrong state
func (r *CycleRepository) explain(ctx context.Context, id uuid.UUID, expected models.CycleStatus) error {
	var status models.CycleStatus
	err := r.db.QueryRowxContext(ctx, `SELECT status FROM cycles WHERE id = $1 AND retired_at IS NULL`, id).Scan(&status)
	if err != nil {
		return translate(err)
	}
	return fmt.Errorf("cycle is %s, expected %s: %w", status, expected, store.ErrConflict)
}

// Retire soft-deletes a cycle so booking history keeps its reference
func (r *CycleRepository) Retire(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE cycles
		SET retired_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND retired_at IS NULL AND status <> 'booked'`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to retire cycle: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return r.explain(ctx, id, models.CycleStatusAvailable)
	}
	return nil
}
