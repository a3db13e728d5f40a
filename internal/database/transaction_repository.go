package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const transactionColumns = `id, user_id, booking_id, payment_reference, amount, currency, status, paid_at, created_at`

// TransactionRepository stores captured penalty payments
type TransactionRepository struct {
	db sqlx.ExtContext
}

func NewTransactionRepository(db sqlx.ExtContext) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func scanTransaction(row scanner) (*models.PaymentTransaction, error) {
	var t models.PaymentTransaction
	var bookingID uuid.NullUUID
	var paidAt sql.NullTime
	err := row.Scan(&t.ID, &t.UserID, &bookingID, &t.PaymentReference, &t.Amount, &t.Currency, &t.Status, &paidAt, &t.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	if bookingID.Valid {
		id := bookingID.UUID
		t.BookingID = &id
	}
	t.PaidAt = timePtr(paidAt)
	return &t, nil
}

// Create inserts a transaction; a reused payment reference is store.ErrConflict
func (r *TransactionRepository) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}

	var bookingID uuid.NullUUID
	if txn.BookingID != nil {
		bookingID = uuid.NullUUID{UUID: *txn.BookingID, Valid: true}
	}
	var paidAt sql.NullTime
	if txn.PaidAt != nil {
		paidAt = sql.NullTime{Time: *txn.PaidAt, Valid: true}
	}

	query := `
		INSERT INTO payment_transactions (id, user_id, booking_id, payment_reference, amount, currency, status, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query,
		txn.ID, txn.UserID, bookingID, txn.PaymentReference, txn.Amount, txn.Currency, txn.Status, paidAt,
	).Scan(&txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment transaction: %w", translate(err))
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE id = $1`
	return scanTransaction(r.db.QueryRowxContext(ctx, query, id))
}

func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*models.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE payment_reference = $1`
	return scanTransaction(r.db.QueryRowxContext(ctx, query, reference))
}

func (r *TransactionRepository) List(ctx context.Context, filter models.TransactionFilter) ([]models.PaymentTransaction, error) {
	var conditions []string
	var args []interface{}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.BookingID != nil {
		args = append(args, *filter.BookingID)
		conditions = append(conditions, fmt.Sprintf("booking_id = $%d", len(args)))
	}

	query := `SELECT ` + transactionColumns + ` FROM payment_transactions`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.PaymentTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}
