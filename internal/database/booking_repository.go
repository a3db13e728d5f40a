package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var bookingColumnList = []string{
	"id", "user_id", "cycle_id",
	"start_longitude", "start_latitude", "start_location_name",
	"end_longitude", "end_latitude", "end_location_name",
	"is_round_trip", "start_time", "estimated_end_time", "actual_end_time",
	"estimated_distance_meters", "duration_seconds",
	"penalty_applied", "penalty_amount", "status",
	"received_by", "received_at", "created_at", "updated_at",
}

var bookingColumns = strings.Join(bookingColumnList, ", ")

func prefixedBookingColumns(alias string) string {
	cols := make([]string, len(bookingColumnList))
	for i, c := range bookingColumnList {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// BookingRepository handles booking records in Postgres
type BookingRepository struct {
	db sqlx.ExtContext
}

// NewBookingRepository binds the repository to a connection or a transaction
func NewBookingRepository(db sqlx.ExtContext) *BookingRepository {
	return &BookingRepository{db: db}
}

// bookingDest returns scan targets in bookingColumnList order; finish copies
// the nullable columns back into b.
func bookingDest(b *models.Booking) ([]interface{}, func()) {
	var startName, endName sql.NullString
	var actualEnd, receivedAt sql.NullTime
	var receivedBy uuid.NullUUID

	dest := []interface{}{
		&b.ID, &b.UserID, &b.CycleID,
		&b.StartLocation.Longitude, &b.StartLocation.Latitude, &startName,
		&b.EndLocation.Longitude, &b.EndLocation.Latitude, &endName,
		&b.IsRoundTrip, &b.StartTime, &b.EstimatedEndTime, &actualEnd,
		&b.EstimatedDistanceMeters, &b.DurationSeconds,
		&b.PenaltyApplied, &b.PenaltyAmount, &b.Status,
		&receivedBy, &receivedAt, &b.CreatedAt, &b.UpdatedAt,
	}
	finish := func() {
		b.StartLocationName = stringPtr(startName)
		b.EndLocationName = stringPtr(endName)
		b.ActualEndTime = timePtr(actualEnd)
		b.ReceivedAt = timePtr(receivedAt)
		if receivedBy.Valid {
			id := receivedBy.UUID
			b.ReceivedBy = &id
		}
	}
	return dest, finish
}

func scanBooking(row scanner) (*models.Booking, error) {
	var b models.Booking
	dest, finish := bookingDest(&b)
	if err := row.Scan(dest...); err != nil {
		return nil, translate(err)
	}
	finish()
	return &b, nil
}

// Create inserts a pending booking. The partial unique indexes on open
// bookings turn a second open booking for the same user or cycle into
// store.ErrConflict.
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	if booking.Status == "" {
		booking.Status = models.BookingStatusPending
	}

	query := `
		INSERT INTO bookings (
			id, user_id, cycle_id,
			start_longitude, start_latitude, start_location_name,
			end_longitude, end_latitude, end_location_name,
			is_round_trip, start_time, estimated_end_time,
			estimated_distance_meters, duration_seconds,
			penalty_applied, penalty_amount, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		booking.ID, booking.UserID, booking.CycleID,
		booking.StartLocation.Longitude, booking.StartLocation.Latitude, nullString(booking.StartLocationName),
		booking.EndLocation.Longitude, booking.EndLocation.Latitude, nullString(booking.EndLocationName),
		booking.IsRoundTrip, booking.StartTime, booking.EstimatedEndTime,
		booking.EstimatedDistanceMeters, booking.DurationSeconds,
		booking.PenaltyApplied, booking.PenaltyAmount, booking.Status,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", translate(err))
	}
	return nil
}

// GetByID retrieves a booking by ID
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return scanBooking(r.db.QueryRowxContext(ctx, query, id))
}

// FindOpenByUser returns the user's pending or returned booking
func (r *BookingRepository) FindOpenByUser(ctx context.Context, userID uuid.UUID) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE user_id = $1 AND status IN ('pending', 'returned')
		LIMIT 1`
	return scanBooking(r.db.QueryRowxContext(ctx, query, userID))
}

func bookingConditions(alias string, filter models.BookingFilter) (string, []interface{}) {
	col := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}

	var conditions []string
	var args []interface{}
	add := func(expr string, values ...interface{}) {
		args = append(args, values...)
		conditions = append(conditions, expr)
	}

	if filter.BookingID != nil {
		add(fmt.Sprintf("%s = $%d", col("id"), len(args)+1), *filter.BookingID)
	}
	if filter.CycleID != nil {
		add(fmt.Sprintf("%s = $%d", col("cycle_id"), len(args)+1), *filter.CycleID)
	}
	if filter.UserID != nil {
		add(fmt.Sprintf("%s = $%d", col("user_id"), len(args)+1), *filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		add(fmt.Sprintf("%s = ANY($%d)", col("status"), len(args)+1), pq.Array(statuses))
	}
	if filter.EndLocation != nil {
		n := len(args)
		add(fmt.Sprintf("%s = $%d AND %s = $%d", col("end_longitude"), n+1, col("end_latitude"), n+2),
			filter.EndLocation.Longitude, filter.EndLocation.Latitude)
	}
	if filter.StartedBefore != nil {
		add(fmt.Sprintf("%s < $%d", col("start_time"), len(args)+1), *filter.StartedBefore)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// List returns bookings matching the filter, newest first
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	where, args := bookingConditions("", filter)
	query := `SELECT ` + bookingColumns + ` FROM bookings` + where + ` ORDER BY created_at DESC`

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// ListDetailed joins each booking with its rider and cycle names
func (r *BookingRepository) ListDetailed(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, error) {
	where, args := bookingConditions("b", filter)
	query := `
		SELECT ` + prefixedBookingColumns("b") + `, u.full_name, u.email, c.cycle_name
		FROM bookings b
		LEFT JOIN users u ON u.id = b.user_id
		LEFT JOIN cycles c ON c.id = b.cycle_id` + where + `
		ORDER BY b.created_at DESC`

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list booking details: %w", err)
	}
	defer rows.Close()

	var details []models.BookingDetail
	for rows.Next() {
		var d models.BookingDetail
		var fullName, email, cycleName sql.NullString
		dest, finish := bookingDest(&d.Booking)
		dest = append(dest, &fullName, &email, &cycleName)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		finish()
		d.UserFullName = stringPtr(fullName)
		d.UserEmail = stringPtr(email)
		d.CycleName = stringPtr(cycleName)
		details = append(details, d)
	}
	return details, rows.Err()
}

// explain classifies a guarded update that matched no row. Bookings owned by
// someone else look missing to the caller.
func (r *BookingRepository) explain(ctx context.Context, id, owner uuid.UUID, expected models.BookingStatus) error {
	var userID uuid.UUID
	var status models.BookingStatus
	err := r.db.QueryRowxContext(ctx, `SELECT user_id, status FROM bookings WHERE id = $1`, id).Scan(&userID, &status)
	if err != nil {
		return translate(err)
	}
	if owner != uuid.Nil && userID != owner {
		return store.ErrNotFound
	}
	return fmt.Errorf("booking is %s, expected %s: %w", status, expected, store.ErrConflict)
}

// MarkReturned records the rider's end of ride on an owned pending booking
func (r *BookingRepository) MarkReturned(ctx context.Context, id, userID uuid.UUID, details models.ReturnDetails) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET status = 'returned',
		    actual_end_time = $3,
		    penalty_applied = $4,
		    penalty_amount = $5,
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = 'pending'
		RETURNING ` + bookingColumns

	b, err := scanBooking(r.db.QueryRowxContext(ctx, query,
		id, userID, details.ActualEndTime, details.PenaltyApplied, details.PenaltyAmount))
	if errors.Is(err, store.ErrNotFound) {
		return nil, r.explain(ctx, id, userID, models.BookingStatusPending)
	}
	return b, err
}

// MarkCanceled cancels an owned pending booking
func (r *BookingRepository) MarkCanceled(ctx context.Context, id, userID uuid.UUID) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET status = 'canceled', updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = 'pending'
		RETURNING ` + bookingColumns

	b, err := scanBooking(r.db.QueryRowxContext(ctx, query, id, userID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, r.explain(ctx, id, userID, models.BookingStatusPending)
	}
	return b, err
}

// MarkCompleted records guard verification of a returned booking
func (r *BookingRepository) MarkCompleted(ctx context.Context, id, guardID uuid.UUID, receivedAt time.Time) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET status = 'completed', received_by = $2, received_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'returned'
		RETURNING ` + bookingColumns

	b, err := scanBooking(r.db.QueryRowxContext(ctx, query, id, guardID, receivedAt))
	if errors.Is(err, store.ErrNotFound) {
		return nil, r.explain(ctx, id, uuid.Nil, models.BookingStatusReturned)
	}
	return b, err
}
