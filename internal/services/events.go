package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Routing keys for lifecycle events
const (
	EventBookingCreated   = "booking.created"
	EventBookingCanceled  = "booking.canceled"
	EventBookingReturned  = "booking.returned"
	EventBookingCompleted = "booking.completed"
	EventBookingStuck     = "booking.stuck"
	EventPenaltySettled   = "penalty.settled"
)

// EventPublisher is satisfied by *mq.Publisher
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishJSON(context.Context, string, any) error { return nil }

// LifecycleEvent is the payload published after a committed transition
type LifecycleEvent struct {
	Type          string     `json:"type"`
	BookingID     *uuid.UUID `json:"booking_id,omitempty"`
	UserID        uuid.UUID  `json:"user_id"`
	CycleID       *uuid.UUID `json:"cycle_id,omitempty"`
	Status        string     `json:"status,omitempty"`
	PenaltyAmount int64      `json:"penalty_amount,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// publish is fire-and-forget: the transition has already committed, so a
// broker failure is logged and never returned.
func publish(ctx context.Context, events EventPublisher, logger *logrus.Logger, event LifecycleEvent) {
	if events == nil {
		return
	}
	if err := events.PublishJSON(ctx, event.Type, event); err != nil {
		logger.WithFields(logrus.Fields{
			"event":   event.Type,
			"user_id": event.UserID,
		}).WithError(err).Warn("Failed to publish lifecycle event")
	}
}
