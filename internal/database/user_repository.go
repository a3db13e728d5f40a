package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const userColumns = `id, full_name, email, roles, has_penalty, penalty_amount, created_at, updated_at`

// UserRepository handles the penalty ledger in Postgres
type UserRepository struct {
	db sqlx.ExtContext
}

// NewUserRepository binds the repository to a connection or a transaction
func NewUserRepository(db sqlx.ExtContext) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	var fullName, email sql.NullString
	var roles pq.StringArray
	err := row.Scan(&u.ID, &fullName, &email, &roles, &u.HasPenalty, &u.PenaltyAmount, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	u.FullName = stringPtr(fullName)
	u.Email = stringPtr(email)
	u.Roles = []string(roles)
	return &u, nil
}

func optional(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Ensure upserts the identity columns from the authenticated principal.
// Penalty columns are never touched here.
func (r *UserRepository) Ensure(ctx context.Context, principal models.Principal) (*models.User, error) {
	query := `
		INSERT INTO users (id, full_name, email, roles)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			full_name = COALESCE(EXCLUDED.full_name, users.full_name),
			email = COALESCE(EXCLUDED.email, users.email),
			roles = EXCLUDED.roles,
			updated_at = NOW()
		RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRowxContext(ctx, query,
		principal.UserID, optional(principal.FullName), optional(principal.Email), pq.Array(principal.StoredRoles())))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowxContext(ctx, query, id))
}

// GetForUpdate locks the user row until the surrounding transaction ends
func (r *UserRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return scanUser(r.db.QueryRowxContext(ctx, query, id))
}

// AddPenalty increments the balance in place
func (r *UserRepository) AddPenalty(ctx context.Context, id uuid.UUID, amount int64) (*models.User, error) {
	if amount <= 0 {
		return r.GetByID(ctx, id)
	}

	query := `
		UPDATE users
		SET penalty_amount = penalty_amount + $2,
		    has_penalty = TRUE,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	return scanUser(r.db.QueryRowxContext(ctx, query, id, amount))
}

// SettlePenalty decrements the balance in place, floored at zero
func (r *UserRepository) SettlePenalty(ctx context.Context, id uuid.UUID, amount int64) (*models.User, error) {
	query := `
		UPDATE users
		SET penalty_amount = GREATEST(penalty_amount - $2, 0),
		    has_penalty = GREATEST(penalty_amount - $2, 0) > 0,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	return scanUser(r.db.QueryRowxContext(ctx, query, id, amount))
}
