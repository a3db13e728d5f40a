package database

import (
	"context"
	"fmt"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const locationColumns = `id, name, longitude, latitude, created_at, updated_at`

// LocationRepository handles the station directory
type LocationRepository struct {
	db sqlx.ExtContext
}

func NewLocationRepository(db sqlx.ExtContext) *LocationRepository {
	return &LocationRepository{db: db}
}

func scanLocation(row scanner) (*models.Location, error) {
	var l models.Location
	err := row.Scan(&l.ID, &l.Name, &l.Point.Longitude, &l.Point.Latitude, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &l, nil
}

func (r *LocationRepository) Create(ctx context.Context, location *models.Location) error {
	if location.ID == uuid.Nil {
		location.ID = uuid.New()
	}

	query := `
		INSERT INTO locations (id, name, longitude, latitude)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		location.ID, location.Name, location.Point.Longitude, location.Point.Latitude,
	).Scan(&location.CreatedAt, &location.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create location: %w", translate(err))
	}
	return nil
}

func (r *LocationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE id = $1`
	return scanLocation(r.db.QueryRowxContext(ctx, query, id))
}

func (r *LocationRepository) GetByName(ctx context.Context, name string) (*models.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE name = $1`
	return scanLocation(r.db.QueryRowxContext(ctx, query, name))
}

func (r *LocationRepository) List(ctx context.Context) ([]models.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations ORDER BY name`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	var locations []models.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, *l)
	}
	return locations, rows.Err()
}

func (r *LocationRepository) UpdatePoint(ctx context.Context, name string, point models.Point) (*models.Location, error) {
	query := `
		UPDATE locations
		SET longitude = $2, latitude = $3, updated_at = NOW()
		WHERE name = $1
		RETURNING ` + locationColumns

	return scanLocation(r.db.QueryRowxContext(ctx, query, name, point.Longitude, point.Latitude))
}

func (r *LocationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}
