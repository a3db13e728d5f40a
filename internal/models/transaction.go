package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus mirrors the payment processor outcome
type TransactionStatus string

const (
	TransactionStatusSucceeded  TransactionStatus = "succeeded"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusProcessing TransactionStatus = "processing"
)

// PaymentTransaction records a captured penalty payment
type PaymentTransaction struct {
	ID               uuid.UUID         `json:"id" db:"id"`
	UserID           uuid.UUID         `json:"user_id" db:"user_id"`
	BookingID        *uuid.UUID        `json:"booking_id,omitempty" db:"booking_id"`
	PaymentReference string            `json:"payment_reference" db:"payment_reference"`
	Amount           int64             `json:"amount" db:"amount"`
	Currency         string            `json:"currency" db:"currency"`
	Status           TransactionStatus `json:"status" db:"status"`
	PaidAt           *time.Time        `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
}

// TransactionFilter narrows transaction listings
type TransactionFilter struct {
	UserID    *uuid.UUID
	BookingID *uuid.UUID
}

// SettlementResult is returned by the penalty settlement path
type SettlementResult struct {
	User        *User               `json:"user"`
	Transaction *PaymentTransaction `json:"transaction"`
}
