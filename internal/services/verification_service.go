package services

import (
	"context"
	"time"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// VerificationService lets a guard confirm physical receipt of a returned
// cycle, closing the booking and releasing the cycle for the next rider.
type VerificationService struct {
	store  store.Store
	events EventPublisher
	now    func() time.Time
	logger *logrus.Logger
}

// NewVerificationService creates a new verification service
func NewVerificationService(st store.Store, events EventPublisher, logger *logrus.Logger) *VerificationService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &VerificationService{
		store:  st,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// MarkReceived completes a returned booking. The cycle becomes available at
// the booking's end station; round trips leave it where it was picked up.
func (s *VerificationService) MarkReceived(ctx context.Context, guard models.Principal, bookingID uuid.UUID) (*models.BookingResult, error) {
	if !guard.HasRole(models.RoleGuard, models.RoleAdmin) {
		return nil, forbiddenError("Only guards can verify returned cycles")
	}

	receivedAt := s.now()
	var result models.BookingResult
	err := s.store.WithTx(ctx, func(tx store.Repositories) error {
		booking, err := tx.Bookings().MarkCompleted(ctx, bookingID, guard.UserID, receivedAt)
		if err != nil {
			return bookingTransitionError(err, "Booking not found or not awaiting verification")
		}

		var location *models.Point
		if !booking.IsRoundTrip {
			location = &booking.EndLocation
		}
		cycle, err := tx.Cycles().Transition(ctx, booking.CycleID, models.CycleStatusBooked, models.CycleStatusAvailable, location)
		if err != nil {
			return cycleReleaseError(err)
		}

		result = models.BookingResult{Booking: booking, Cycle: cycle}
		return nil
	})
	if err != nil {
		return nil, logFailure(s.logger, err, "Mark received aborted", logrus.Fields{
			"booking_id": bookingID,
			"guard_id":   guard.UserID,
		})
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"guard_id":   guard.UserID,
		"cycle_id":   result.Cycle.ID,
	}).Info("Cycle received")

	id, cycleID := result.Booking.ID, result.Booking.CycleID
	publish(ctx, s.events, s.logger, LifecycleEvent{
		Type:       EventBookingCompleted,
		BookingID:  &id,
		UserID:     result.Booking.UserID,
		CycleID:    &cycleID,
		Status:     string(result.Booking.Status),
		OccurredAt: receivedAt,
	})
	return &result, nil
}
