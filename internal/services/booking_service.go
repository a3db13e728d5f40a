package services

import (
	"context"
	"errors"
	"time"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/store"
	"github.com/campuscycle/booking-backend/pkg/maps"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Geocoder resolves station names to points, preserving order
type Geocoder interface {
	Resolve(ctx context.Context, names []string) ([]models.ResolvedLocation, error)
}

// RouteEstimator is satisfied by maps.DistanceMatrixClient and
// maps.StraightLineEstimator
type RouteEstimator interface {
	Estimate(ctx context.Context, origin, destination maps.LatLng) (*maps.Route, error)
}

// BookingConfig holds the reservation policy
type BookingConfig struct {
	RoundTripBuffer time.Duration    // slack added to round trips (default 10 min)
	OneWayBuffer    time.Duration    // slack added to one-way trips (default 5 min)
	StuckThreshold  time.Duration    // default age for stuck-booking triage (default 30 min)
	Now             func() time.Time // clock, UTC by default
}

// DefaultBookingConfig returns default configuration
func DefaultBookingConfig() BookingConfig {
	return BookingConfig{
		RoundTripBuffer: 10 * time.Minute,
		OneWayBuffer:    5 * time.Minute,
		StuckThreshold:  30 * time.Minute,
		Now:             func() time.Time { return time.Now().UTC() },
	}
}

// BookingService owns the booking lifecycle:
//
//	pending -> returned -> completed
//	pending -> canceled
//
// Every transition touching more than one entity runs in one store
// transaction.
type BookingService struct {
	store     store.Store
	geocoder  Geocoder
	router    RouteEstimator
	penalties *PenaltyCalculator
	events    EventPublisher
	config    BookingConfig
	logger    *logrus.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	st store.Store,
	geocoder Geocoder,
	router RouteEstimator,
	penalties *PenaltyCalculator,
	events EventPublisher,
	config BookingConfig,
	logger *logrus.Logger,
) *BookingService {
	defaults := DefaultBookingConfig()
	if config.RoundTripBuffer <= 0 {
		config.RoundTripBuffer = defaults.RoundTripBuffer
	}
	if config.OneWayBuffer <= 0 {
		config.OneWayBuffer = defaults.OneWayBuffer
	}
	if config.StuckThreshold <= 0 {
		config.StuckThreshold = defaults.StuckThreshold
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}
	if events == nil {
		events = NoopPublisher{}
	}
	return &BookingService{
		store:     st,
		geocoder:  geocoder,
		router:    router,
		penalties: penalties,
		events:    events,
		config:    config,
		logger:    logger,
	}
}

// EstimatedEndTime is start + ride duration + the trip-type buffer
func (s *BookingService) EstimatedEndTime(start time.Time, durationSeconds int64, roundTrip bool) time.Time {
	buffer := s.config.OneWayBuffer
	if roundTrip {
		buffer = s.config.RoundTripBuffer
	}
	return start.Add(time.Duration(durationSeconds)*time.Second + buffer)
}

// ============================================================================
// CREATE
// ============================================================================

// ReserveCycle is the transport-facing create path: it validates the raw
// request, checks admission, resolves the stations, estimates the route and
// hands a typed input to CreateBooking.
func (s *BookingService) ReserveCycle(ctx context.Context, principal models.Principal, req models.CreateBookingRequest) (*models.BookingResult, error) {
	cycleID, err := uuid.Parse(req.CycleID)
	if err != nil {
		return nil, validationError("Valid cycle_id is required")
	}
	names := req.Locations
	switch {
	case len(names) == 0 || len(names) > 2:
		return nil, validationError("locations must contain a start and an end station")
	case len(names) == 1 && !req.IsRoundTrip:
		return nil, validationError("an end station is required for one-way trips")
	case len(names) == 1:
		names = []string{names[0], names[0]}
	}

	user, err := s.store.Users().Ensure(ctx, principal)
	if err != nil {
		return nil, internalError(err)
	}

	// Fail fast before calling out to the geocoder and routing provider.
	// CreateBooking repeats both checks under the user lock.
	if err := s.checkAdmission(ctx, s.store, user); err != nil {
		return nil, err
	}

	resolved, err := s.geocoder.Resolve(ctx, names)
	if err != nil {
		return nil, err
	}
	if len(resolved) != 2 {
		return nil, validationError("locations must contain a start and an end station")
	}

	route, err := s.router.Estimate(ctx, toLatLng(resolved[0].Point), toLatLng(resolved[1].Point))
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"user_id": principal.UserID,
			"start":   resolved[0].Name,
			"end":     resolved[1].Name,
		}).WithError(err).Warn("Route estimate failed")
		return nil, dependencyError(CodeRouteUnavailable, "Unable to estimate the route", err)
	}

	return s.CreateBooking(ctx, principal, models.NewBookingInput{
		CycleID:     cycleID,
		Start:       resolved[0],
		End:         resolved[1],
		IsRoundTrip: req.IsRoundTrip,
		Route: models.RouteEstimate{
			DistanceMeters:  route.DistanceMeters,
			DurationSeconds: route.DurationSeconds,
		},
	})
}

// checkAdmission enforces the two preconditions of a new reservation
func (s *BookingService) checkAdmission(ctx context.Context, repos store.Repositories, user *models.User) error {
	if user.HasOutstandingPenalty() {
		return conflictError(CodeOutstandingPenalty, "Please clear your outstanding penalty before booking")
	}
	open, err := repos.Bookings().FindOpenByUser(ctx, user.ID)
	switch {
	case err == nil:
		return conflictError(CodeActiveBookingExists, "You already have an active booking: "+open.ID.String())
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return internalError(err)
	}
}

// CreateBooking allocates the cycle and records a pending booking in one
// transaction. The user row is locked first so two concurrent requests from
// one rider serialise, and the allocation is a compare-and-swap so two
// riders racing for one cycle get exactly one winner.
func (s *BookingService) CreateBooking(ctx context.Context, principal models.Principal, in models.NewBookingInput) (*models.BookingResult, error) {
	start := in.RequestedAtTime
	if start.IsZero() {
		start = s.config.Now()
	}
	if in.Route.DurationSeconds < 0 || in.Route.DistanceMeters < 0 {
		return nil, validationError("route estimate cannot be negative")
	}

	var result models.BookingResult
	err := s.store.WithTx(ctx, func(tx store.Repositories) error {
		if _, err := tx.Users().Ensure(ctx, principal); err != nil {
			return internalError(err)
		}
		user, err := tx.Users().GetForUpdate(ctx, principal.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFoundError(CodeUserNotFound, "User not found")
			}
			return internalError(err)
		}
		if err := s.checkAdmission(ctx, tx, user); err != nil {
			return err
		}

		cycle, err := tx.Cycles().Allocate(ctx, in.CycleID)
		if err != nil {
			if errors.Is(err, store.ErrNotAvailable) {
				return conflictError(CodeCycleNotAvailable, MsgCycleNotAvailable)
			}
			return internalError(err)
		}

		startName, endName := in.Start.Name, in.End.Name
		booking := &models.Booking{
			UserID:                  user.ID,
			CycleID:                 cycle.ID,
			StartLocation:           in.Start.Point,
			StartLocationName:       &startName,
			EndLocation:             in.End.Point,
			EndLocationName:         &endName,
			IsRoundTrip:             in.IsRoundTrip,
			StartTime:               start,
			EstimatedEndTime:        s.EstimatedEndTime(start, in.Route.DurationSeconds, in.IsRoundTrip),
			EstimatedDistanceMeters: in.Route.DistanceMeters,
			DurationSeconds:         in.Route.DurationSeconds,
			Status:                  models.BookingStatusPending,
		}
		if err := tx.Bookings().Create(ctx, booking); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return conflictError(CodeActiveBookingExists, "An active booking already exists for this user or cycle")
			}
			return internalError(err)
		}

		result = models.BookingResult{Booking: booking, Cycle: cycle, User: user}
		return nil
	})
	if err != nil {
		return nil, s.fail(err, "Create booking aborted", logrus.Fields{
			"user_id":  principal.UserID,
			"cycle_id": in.CycleID,
		})
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":         result.Booking.ID,
		"user_id":            principal.UserID,
		"cycle_id":           result.Cycle.ID,
		"is_round_trip":      in.IsRoundTrip,
		"estimated_end_time": result.Booking.EstimatedEndTime,
	}).Info("Booking created")

	publish(ctx, s.events, s.logger, s.event(EventBookingCreated, result.Booking))
	return &result, nil
}

// ============================================================================
// CANCEL / END
// ============================================================================

// CancelBooking cancels the caller's pending booking and puts the cycle back
// into circulation without moving it.
func (s *BookingService) CancelBooking(ctx context.Context, principal models.Principal, bookingID uuid.UUID) (*models.BookingResult, error) {
	var result models.BookingResult
	err := s.store.WithTx(ctx, func(tx store.Repositories) error {
		booking, err := tx.Bookings().MarkCanceled(ctx, bookingID, principal.UserID)
		if err != nil {
			return bookingTransitionError(err, "Booking not found or already completed/canceled")
		}

		cycle, err := tx.Cycles().Transition(ctx, booking.CycleID, models.CycleStatusBooked, models.CycleStatusAvailable, nil)
		if err != nil {
			return cycleReleaseError(err)
		}

		result = models.BookingResult{Booking: booking, Cycle: cycle}
		return nil
	})
	if err != nil {
		return nil, s.fail(err, "Cancel booking aborted", logrus.Fields{
			"booking_id": bookingID,
			"user_id":    principal.UserID,
		})
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"user_id":    principal.UserID,
		"cycle_id":   result.Cycle.ID,
	}).Info("Booking canceled")

	publish(ctx, s.events, s.logger, s.event(EventBookingCanceled, result.Booking))
	return &result, nil
}

// EndBooking records the rider's return at the server clock. The booking
// becomes returned, the cycle stays booked until a guard verifies it (one-way
// trips move it to the destination), and any lateness penalty is added to
// the rider's balance. All three writes commit together.
func (s *BookingService) EndBooking(ctx context.Context, principal models.Principal, bookingID uuid.UUID) (*models.BookingResult, error) {
	return s.endBookingAt(ctx, principal, bookingID, s.config.Now())
}

func (s *BookingService) endBookingAt(ctx context.Context, principal models.Principal, bookingID uuid.UUID, actualEnd time.Time) (*models.BookingResult, error) {
	var result models.BookingResult
	err := s.store.WithTx(ctx, func(tx store.Repositories) error {
		current, err := tx.Bookings().GetByID(ctx, bookingID)
		if err != nil || current.UserID != principal.UserID {
			if err == nil || errors.Is(err, store.ErrNotFound) {
				return notFoundError(CodeBookingNotFound, "Booking not found")
			}
			return internalError(err)
		}
		if !current.Status.CanTransitionTo(models.BookingStatusReturned) {
			return conflictError(CodeInvalidBookingState, "Booking is "+string(current.Status)+" and cannot be ended")
		}

		applied, amount := s.penalties.Assess(actualEnd, current.EstimatedEndTime)
		booking, err := tx.Bookings().MarkReturned(ctx, bookingID, principal.UserID, models.ReturnDetails{
			ActualEndTime:  actualEnd,
			PenaltyApplied: applied,
			PenaltyAmount:  amount,
		})
		if err != nil {
			return bookingTransitionError(err, "Booking not found")
		}

		// Custody is unconfirmed, so the cycle stays booked either way
		var location *models.Point
		if !booking.IsRoundTrip {
			location = &booking.EndLocation
		}
		cycle, err := tx.Cycles().Transition(ctx, booking.CycleID, models.CycleStatusBooked, models.CycleStatusBooked, location)
		if err != nil {
			return cycleReleaseError(err)
		}

		var user *models.User
		if applied {
			user, err = tx.Users().AddPenalty(ctx, principal.UserID, amount)
		} else {
			user, err = tx.Users().GetByID(ctx, principal.UserID)
		}
		if err != nil {
			return internalError(err)
		}

		result = models.BookingResult{Booking: booking, Cycle: cycle, User: user}
		return nil
	})
	if err != nil {
		return nil, s.fail(err, "End booking aborted", logrus.Fields{
			"booking_id": bookingID,
			"user_id":    principal.UserID,
		})
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":      bookingID,
		"user_id":         principal.UserID,
		"cycle_id":        result.Cycle.ID,
		"penalty_applied": result.Booking.PenaltyApplied,
		"penalty_amount":  result.Booking.PenaltyAmount,
	}).Info("Booking returned")

	publish(ctx, s.events, s.logger, s.event(EventBookingReturned, result.Booking))
	return &result, nil
}

// ============================================================================
// QUERIES
// ============================================================================

// BookingQuery is the merged lookup. Riders only ever see their own bookings.
type BookingQuery struct {
	BookingID   *uuid.UUID
	CycleID     *uuid.UUID
	UserID      *uuid.UUID
	EndLocation string
	Statuses    []models.BookingStatus
}

func isStaff(p models.Principal) bool {
	return p.HasRole(models.RoleGuard, models.RoleAdmin)
}

// GetBooking returns one booking visible to the caller
func (s *BookingService) GetBooking(ctx context.Context, principal models.Principal, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError(CodeBookingNotFound, "Booking not found")
		}
		return nil, internalError(err)
	}
	if booking.UserID != principal.UserID && !isStaff(principal) {
		return nil, notFoundError(CodeBookingNotFound, "Booking not found")
	}
	return booking, nil
}

// filter turns a query into a store filter. Non-staff callers are pinned
// to their own bookings and the end station is resolved by name.
func (s *BookingService) filter(ctx context.Context, principal models.Principal, q BookingQuery) (models.BookingFilter, error) {
	filter := models.BookingFilter{
		BookingID: q.BookingID,
		CycleID:   q.CycleID,
		UserID:    q.UserID,
		Statuses:  q.Statuses,
	}
	for _, st := range q.Statuses {
		if !st.Valid() {
			return filter, validationError("unknown booking status: " + string(st))
		}
	}
	if !isStaff(principal) {
		if q.UserID != nil && *q.UserID != principal.UserID {
			return filter, forbiddenError("You can only view your own bookings")
		}
		own := principal.UserID
		filter.UserID = &own
	}
	if q.EndLocation != "" {
		resolved, err := s.geocoder.Resolve(ctx, []string{q.EndLocation})
		if err != nil {
			return filter, err
		}
		filter.EndLocation = &resolved[0].Point
	}
	return filter, nil
}

// ListBookings runs the merged query
func (s *BookingService) ListBookings(ctx context.Context, principal models.Principal, q BookingQuery) ([]models.Booking, error) {
	filter, err := s.filter(ctx, principal, q)
	if err != nil {
		return nil, err
	}
	bookings, err := s.store.Bookings().List(ctx, filter)
	if err != nil {
		return nil, internalError(err)
	}
	return bookings, nil
}

// ActiveBookings lists pending bookings. Riders only see their own; staff
// may narrow by user, cycle or end station.
func (s *BookingService) ActiveBookings(ctx context.Context, principal models.Principal, q BookingQuery) ([]models.Booking, error) {
	q.Statuses = []models.BookingStatus{models.BookingStatusPending}
	return s.ListBookings(ctx, principal, q)
}

// ReturnedBookings lists rides awaiting guard verification, optionally only
// those ending at one station or belonging to one rider
func (s *BookingService) ReturnedBookings(ctx context.Context, principal models.Principal, q BookingQuery) ([]models.BookingDetail, error) {
	if !isStaff(principal) {
		return nil, forbiddenError("Only guards can view returned bookings")
	}
	q.Statuses = []models.BookingStatus{models.BookingStatusReturned}
	filter, err := s.filter(ctx, principal, q)
	if err != nil {
		return nil, err
	}
	details, err := s.store.Bookings().ListDetailed(ctx, filter)
	if err != nil {
		return nil, internalError(err)
	}
	return details, nil
}

// StuckBookings lists pending bookings that started more than threshold ago.
// A zero threshold uses the configured default. Callers are admins or the
// scheduler, so q is not pinned to a user.
func (s *BookingService) StuckBookings(ctx context.Context, threshold time.Duration, q BookingQuery) ([]models.BookingDetail, error) {
	if threshold < 0 {
		return nil, validationError("minutes must be a positive integer")
	}
	if threshold == 0 {
		threshold = s.config.StuckThreshold
	}
	q.Statuses = []models.BookingStatus{models.BookingStatusPending}
	filter, err := s.filter(ctx, models.Principal{Roles: []string{models.RoleAdmin}}, q)
	if err != nil {
		return nil, err
	}
	cutoff := s.config.Now().Add(-threshold)
	filter.StartedBefore = &cutoff

	details, err := s.store.Bookings().ListDetailed(ctx, filter)
	if err != nil {
		return nil, internalError(err)
	}
	return details, nil
}

// AdminBookings lists bookings joined with rider and cycle names
func (s *BookingService) AdminBookings(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, error) {
	details, err := s.store.Bookings().ListDetailed(ctx, filter)
	if err != nil {
		return nil, internalError(err)
	}
	return details, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *BookingService) event(kind string, b *models.Booking) LifecycleEvent {
	id, cycleID := b.ID, b.CycleID
	return LifecycleEvent{
		Type:          kind,
		BookingID:     &id,
		UserID:        b.UserID,
		CycleID:       &cycleID,
		Status:        string(b.Status),
		PenaltyAmount: b.PenaltyAmount,
		OccurredAt:    s.config.Now(),
	}
}

// fail logs an aborted transaction. Internal causes are logged in full and
// surfaced generically.
func (s *BookingService) fail(err error, msg string, fields logrus.Fields) error {
	return logFailure(s.logger, err, msg, fields)
}

func logFailure(logger *logrus.Logger, err error, msg string, fields logrus.Fields) error {
	svcErr := AsError(err)
	entry := logger.WithFields(fields).WithField("code", svcErr.Code)
	if svcErr.Kind == KindInternal {
		entry.WithError(svcErr.Err).Error(msg)
	} else {
		entry.Info(msg)
	}
	return svcErr
}

func bookingTransitionError(err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFoundError(CodeBookingNotFound, notFoundMsg)
	case errors.Is(err, store.ErrConflict):
		return newError(KindConflict, CodeInvalidBookingState, "Booking is not in the expected state", err)
	}
	return internalError(err)
}

func cycleReleaseError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFoundError(CodeCycleNotFound, "Cycle not found")
	case errors.Is(err, store.ErrConflict):
		return newError(KindConflict, CodeInvalidCycleState, "Cycle is not in the expected state", err)
	}
	return internalError(err)
}
