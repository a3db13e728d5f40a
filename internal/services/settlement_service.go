package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SettlementService applies captured payments against penalty balances.
// Payment capture itself happens with the processor before this is called.
type SettlementService struct {
	store    store.Store
	events   EventPublisher
	currency string
	now      func() time.Time
	logger   *logrus.Logger
}

// NewSettlementService creates a new settlement service
func NewSettlementService(st store.Store, events EventPublisher, currency string, logger *logrus.Logger) *SettlementService {
	if events == nil {
		events = NoopPublisher{}
	}
	if currency == "" {
		currency = "inr"
	}
	return &SettlementService{
		store:    st,
		events:   events,
		currency: strings.ToLower(currency),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Currency returns the ISO code amounts are recorded in
func (s *SettlementService) Currency() string { return s.currency }

// SettlePenalty records the payment and reduces the balance (floored at
// zero) in one transaction. A payment reference is accepted at most once.
func (s *SettlementService) SettlePenalty(ctx context.Context, caller models.Principal, userID uuid.UUID, req models.SettlePenaltyRequest) (*models.SettlementResult, error) {
	if caller.UserID != userID && !caller.HasRole(models.RoleAdmin) {
		return nil, forbiddenError("You can only settle your own penalty")
	}
	if req.AmountPaid <= 0 {
		return nil, validationError("amount_paid must be greater than zero")
	}
	reference := strings.TrimSpace(req.PaymentReference)
	if reference == "" {
		return nil, validationError("payment_reference is required")
	}
	var bookingID *uuid.UUID
	if req.BookingID != nil && *req.BookingID != "" {
		id, err := uuid.Parse(*req.BookingID)
		if err != nil {
			return nil, validationError("booking_id must be a valid UUID")
		}
		bookingID = &id
	}

	paidAt := s.now()
	var result models.SettlementResult
	err := s.store.WithTx(ctx, func(tx store.Repositories) error {
		if _, err := tx.Users().GetForUpdate(ctx, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFoundError(CodeUserNotFound, "User not found")
			}
			return internalError(err)
		}

		txn := &models.PaymentTransaction{
			UserID:           userID,
			BookingID:        bookingID,
			PaymentReference: reference,
			Amount:           req.AmountPaid,
			Currency:         s.currency,
			Status:           models.TransactionStatusSucceeded,
			PaidAt:           &paidAt,
		}
		if err := tx.Transactions().Create(ctx, txn); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return conflictError(CodeDuplicatePayment, "Payment reference has already been applied")
			}
			return internalError(err)
		}

		user, err := tx.Users().SettlePenalty(ctx, userID, req.AmountPaid)
		if err != nil {
			return internalError(err)
		}

		result = models.SettlementResult{User: user, Transaction: txn}
		return nil
	})
	if err != nil {
		return nil, logFailure(s.logger, err, "Penalty settlement aborted", logrus.Fields{
			"user_id":           userID,
			"payment_reference": reference,
		})
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":           userID,
		"amount_paid":       models.FormatMinorUnits(req.AmountPaid, s.currency),
		"remaining_penalty": models.FormatMinorUnits(result.User.PenaltyAmount, s.currency),
		"transaction_id":    result.Transaction.ID,
	}).Info("Penalty settled")

	publish(ctx, s.events, s.logger, LifecycleEvent{
		Type:          EventPenaltySettled,
		BookingID:     bookingID,
		UserID:        userID,
		PenaltyAmount: result.User.PenaltyAmount,
		OccurredAt:    paidAt,
	})
	return &result, nil
}

// GetPenalty returns the caller's current balance
func (s *SettlementService) GetPenalty(ctx context.Context, caller models.Principal, userID uuid.UUID) (*models.User, error) {
	if caller.UserID != userID && !caller.HasRole(models.RoleAdmin) {
		return nil, forbiddenError("You can only view your own penalty")
	}
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError(CodeUserNotFound, "User not found")
		}
		return nil, internalError(err)
	}
	return user, nil
}

// Profile returns the caller's user row, creating it on first sight
func (s *SettlementService) Profile(ctx context.Context, caller models.Principal) (*models.User, error) {
	user, err := s.store.Users().Ensure(ctx, caller)
	if err != nil {
		return nil, internalError(err)
	}
	return user, nil
}

// ListTransactions returns payment records. Non-admins only see their own.
func (s *SettlementService) ListTransactions(ctx context.Context, caller models.Principal, filter models.TransactionFilter) ([]models.PaymentTransaction, error) {
	if !caller.HasRole(models.RoleAdmin) {
		if filter.UserID != nil && *filter.UserID != caller.UserID {
			return nil, forbiddenError("You can only view your own transactions")
		}
		own := caller.UserID
		filter.UserID = &own
	}
	txns, err := s.store.Transactions().List(ctx, filter)
	if err != nil {
		return nil, internalError(err)
	}
	return txns, nil
}

// GetTransaction returns one payment record visible to the caller
func (s *SettlementService) GetTransaction(ctx context.Context, caller models.Principal, id uuid.UUID) (*models.PaymentTransaction, error) {
	txn, err := s.store.Transactions().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError(CodeTransactionNotFound, "Transaction not found")
		}
		return nil, internalError(err)
	}
	if txn.UserID != caller.UserID && !caller.HasRole(models.RoleAdmin) {
		return nil, notFoundError(CodeTransactionNotFound, "Transaction not found")
	}
	return txn, nil
}
