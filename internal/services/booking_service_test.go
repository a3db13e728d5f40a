package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveCycle_OneWay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addCycle(t, "cycle-01")
	rider := student()

	res, err := f.bookings.ReserveCycle(ctx, rider, oneWay(c.ID))
	require.NoError(t, err)

	b := res.Booking
	assert.Equal(t, models.BookingStatusPending, b.Status)
	assert.Equal(t, rider.UserID, b.UserID)
	assert.Equal(t, stationA, b.StartLocation)
	assert.Equal(t, stationB, b.EndLocation)
	assert.Equal(t, "main gate", *b.StartLocationName)
	assert.Equal(t, "library", *b.EndLocationName)
	assert.False(t, b.IsRoundTrip)
	assert.Equal(t, int64(1200), b.EstimatedDistanceMeters)
	assert.Equal(t, int64(600), b.DurationSeconds)
	// 600s ride + 5 min one-way buffer
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), b.EstimatedEndTime)

	assert.Equal(t, models.CycleStatusBooked, f.cycle(t, c.ID).Status)
	assert.Equal(t, []string{EventBookingCreated}, f.events.Keys())
}

func TestReserveCycle_RoundTripSingleLocation(t *testing.T) {
	f := newFixture(t)
	c := f.addCycle(t, "cycle-01")

	res, err := f.bookings.ReserveCycle(context.Background(), student(), roundTrip(c.ID))
	require.NoError(t, err)

	assert.True(t, res.Booking.IsRoundTrip)
	assert.Equal(t, res.Booking.StartLocation, res.Booking.EndLocation)
	// 600s ride + 10 min round-trip buffer
	assert.Equal(t, f.clock.Now().Add(20*time.Minute), res.Booking.EstimatedEndTime)
}

func TestReserveCycle_Validation(t *testing.T) {
	f := newFixture(t)
	c := f.addCycle(t, "cycle-01")

	tests := []struct {
		name string
		req  models.CreateBookingRequest
	}{
		{"bad cycle id", models.CreateBookingRequest{CycleID: "nope", Locations: []string{"Main Gate", "Library"}}},
		{"one-way with one station", models.CreateBookingRequest{CycleID: c.ID.String(), Locations: []string{"Main Gate"}}},
		{"no stations", models.CreateBookingRequest{CycleID: c.ID.String()}},
		{"three stations", models.CreateBookingRequest{CycleID: c.ID.String(), Locations: []string{"a", "b", "c"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.bookings.ReserveCycle(context.Background(), student(), tt.req)
			requireKind(t, err, KindValidation, CodeValidation)
		})
	}
	assert.Equal(t, models.CycleStatusAvailable, f.cycle(t, c.ID).Status)
}

func TestReserveCycle_UnknownLocation(t *testing.T) {
	f := newFixture(t)
	c := f.addCycle(t, "cycle-01")

	_, err := f.bookings.ReserveCycle(context.Background(), student(), models.CreateBookingRequest{
		CycleID:   c.ID.String(),
		Locations: []string{"Main Gate", "Nowhere"},
	})
	requireKind(t, err, KindNotFound, CodeLocationNotFound)
	assert.Equal(t, 0, f.router.calls)
}

func TestReserveCycle_RouteFailureLeavesInventoryUntouched(t *testing.T) {
	f := newFixture(t)
	c := f.addCycle(t, "cycle-01")
	f.router.err = errors.New("provider unreachable")

	_, err := f.bookings.ReserveCycle(context.Background(), student(), oneWay(c.ID))
	requireKind(t, err, KindDependency, CodeRouteUnavailable)
	assert.Equal(t, models.CycleStatusAvailable, f.cycle(t, c.ID).Status)
}

func TestReserveCycle_OutstandingPenaltyRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addCycle(t, "cycle-01")
	rider := student()

	_, err := f.store.Users().Ensure(ctx, rider)
	require.NoError(t, err)
	_, err = f.store.Users().AddPenalty(ctx, rider.UserID, 500)
	require.NoError(t, err)

	_, err = f.bookings.ReserveCycle(ctx, rider, oneWay(c.ID))
	requireKind(t, err, KindConflict, CodeOutstandingPenalty)

	assert.Equal(t, models.CycleStatusAvailable, f.cycle(t, c.ID).Status)
	assert.Equal(t, 0, f.router.calls)
	bookings, err := f.store.Bookings().List(ctx, models.BookingFilter{UserID: &rider.UserID})
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestReserveCycle_ActiveBookingExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.addCycle(t, "cycle-01")
	second := f.addCycle(t, "cycle-02")
	rider := student()

	_, err := f.bookings.ReserveCycle(ctx, rider, oneWay(first.ID))
	require.NoError(t, err)

	_, err = f.bookings.ReserveCycle(ctx, rider, oneWay(second.ID))
	requireKind(t, err, KindConflict, CodeActiveBookingExists)
	assert.Equal(t, models.CycleStatusAvailable, f.cycle(t, second.ID).Status)
}

func TestReserveCycle_MaintenanceCycleNotAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addCycle(t, "cycle-01")
	_, err := f.inventory.SetStatus(ctx, c.ID, models.CycleStatusMaintenance)
	require.NoError(t, err)

	_, err = f.bookings.ReserveCycle(ctx, student(), oneWay(c.ID))
	requireKind(t, err, KindConflict, CodeCycleNotAvailable)
	assert.Equal(t, MsgCycleNotAvailable, AsError(err).Message)
}

func TestCreateBooking_AllocationExclusivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addCycle(t, "cycle-01")

	const riders = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts []error
	)
	start := make(chan struct{})
	for i := 0; i < riders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.bookings.ReserveCycle(ctx, student(), oneWay(c.ID))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				conflicts = append(conflicts, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	require.Len(t, conflicts, riders-1)
	for _, err := range conflicts {
		requireKind(t, err, KindConflict, CodeCycleNotAvailable)
		assert.Equal(t, MsgCycleNotAvailable, AsError(err).Message)
	}
	assert.Equal(t, models.CycleStatusBooked, f.cycle(t, c.ID).Status)

	bookings, err := f.store.Bookings().List(ctx, models.BookingFilter{CycleID: &c.ID})
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

func TestCreateBooking_SingleOpenBookingPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rider := student()

	const attempts = 8
	cycles := make([]*models.Cycle, attempts)
	for i := range cycles {
		cycles[i] = f.addCycle(t, "cycle-"+uuid.NewString()[:8])
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for _, c := range cycles {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			if _, err := f.bookings.ReserveCycle(ctx, rider, oneWay(id)); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else {
				assert.True(t, IsKind(err, KindConflict), err.Error())
			}
		}(c.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	open, err := f.store.Bookings().List(ctx, models.BookingFilter{UserID: &rider.UserID, Statuses: models.OpenBookingStatuses})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	booked := models.CycleStatusBooked
	held, err := f.store.Cycles().List(ctx, models.CycleFilter{Status: &booked})
	require.NoError(t, err)
	assert.Len(t, held, 1, "losing attempts must not leave cycles booked")
}

func TestCreateBooking_NoOrphanedAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addCycle(t, "cycle-01")
	f.store.FailNext("bookings.create", errors.New("write failed"))

	_, err := f.bookings.ReserveCycle(ctx, student(), oneWay(c.ID))
	requireKind(t, err, KindInternal, CodeInternal)

	assert.Equal(t, models.CycleStatusAvailable, f.cycle(t, c.ID).Status)
	bookings, err := f.store.Bookings().List(ctx, models.BookingFilter{CycleID: &c.ID})
	require.NoError(t, err)
	assert.Empty(t, bookings)
	assert.Empty(t, f.events.Keys())

	// the cycle can still be booked afterwards
	_, err = f.bookings.ReserveCycle(ctx, student(), oneWay(c.ID))
	assert.NoError(t, err)
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addCycle(t, "cycle-01")
	rider := student()
	res, err := f.bookings.ReserveCycle(ctx, rider, oneWay(c.ID))
	require.NoError(t, err)

	t.Run("Other User", func(t *testing.T) {
		_, err := f.bookings.CancelBooking(ctx, student(), res.Booking.ID)
		requireKind(t, err, KindNotFound, CodeBookingNotFound)
	})

	t.Run("Owner", func(t *testing.T) {
		out, err := f.bookings.CancelBooking(ctx, rider, res.Booking.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusCanceled, out.Booking.Status)
		assert.Equal(t, models.CycleStatusAvailable, out.Cycle.Status)
		assert.Equal(t, stationA, out.Cycle.CurrentLocation)
	})

	t.Run("Twice", func(t *testing.T) {
		_, err := f.bookings.CancelBooking(ctx, rider, res.Booking.ID)
		requireKind(t, err, KindConflict, CodeInvalidBookingState)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := f.bookings.CancelBooking(ctx, rider, uuid.New())
		requireKind(t, err, KindNotFound, CodeBookingNotFound)
	})
}

func TestEndBooking_LatePenalty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addCycle(t, "cycle-01")
	rider := student()
	res, err := f.bookings.ReserveCycle(ctx, rider, oneWay(c.ID))
	require.NoError(t, err)

	// estimated end is +15m, return 20 minutes after it
	f.clock.Advance(35 * time.Minute)
	out, err := f.bookings.EndBooking(ctx, rider, res.Booking.ID)
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusReturned, out.Booking.Status)
	assert.True(t, out.Booking.PenaltyApplied)
	assert.Equal(t, int64(4000), out.Booking.PenaltyAmount)
	require.NotNil(t, out.Booking.ActualEndTime)
	assert.Equal(t, f.clock.Now(), *out.Booking.ActualEndTime)

	// custody unconfirmed: still booked, but moved to the destination
	assert.Equal(t, models.CycleStatusBooked, out.Cycle.Status)
	assert.Equal(t, stationB, out.Cycle.CurrentLocation)

	assert.True(t, out.User.HasPenalty)
	assert.Equal(t, int64(4000), out.User.PenaltyAmount)
	assert.Equal(t, int64(4000), f.user(t, rider.UserID).PenaltyAmount)
}

func TestEndBooking_OnTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addCycle(t, "cycle-01")
	rider := student()
	res, err := f.bookings.ReserveCycle(ctx, rider, oneWay(c.ID))
	require.NoError(t, err)

	f.clock.Advance(15 * time.Minute)
	out, err := f.bookings.EndBooking(ctx, rider, res.Booking.ID)
	require.NoError(t, err)

	assert.False(t, out.Booking.PenaltyApplied)
	assert.Zero(t, out.Booking.PenaltyAmount)
	assert.False(t, out.User.HasPenalty)
}

func TestEndBooking_Atomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addCycle(t, "cycle-01")
	rider := student()
	res, err := f.bookings.ReserveCycle(ctx, rider, oneWay(c.ID))
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	f.store.FailNext("users.add_penalty", errors.New("write failed"))
	_, err = f.bookings.EndBooking(ctx, rider, res.Booking.ID)
	requireKind(t, err, KindInternal, CodeInternal)

	booking, err := f.store.Bookings().GetByID(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Nil(t, booking.ActualEndTime)
	assert.Equal(t, stationA, f.cycle(t, c.ID).CurrentLocation)
	assert.Zero(t, f.user(t, rider.UserID).PenaltyAmount)

	// a retry succeeds once the store recovers
	out, err := f.bookings.EndBooking(ctx, rider, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusReturned, out.Booking.Status)
}

func TestEndBooking_WrongStateOrOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addCycle(t, "cycle-01")
	rider := student()
	res, err := f.bookings.ReserveCycle(ctx, rider, oneWay(c.ID))
	require.NoError(t, err)

	_, err = f.bookings.EndBooking(ctx, student(), res.Booking.ID)
	requireKind(t, err, KindNotFound, CodeBookingNotFound)

	_, err = f.bookings.CancelBooking(ctx, rider, res.Booking.ID)
	require.NoError(t, err)
	_, err = f.bookings.EndBooking(ctx, rider, res.Booking.ID)
	requireKind(t, err, KindConflict, CodeInvalidBookingState)
}

func TestLifecycleTotality(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addCycle(t, "cycle-01")
	rider, staff := student(), guard()

	res, err := f.bookings.ReserveCycle(ctx, rider, oneWay(c.ID))
	require.NoError(t, err)
	id := res.Booking.ID

	_, err = f.verification.MarkReceived(ctx, staff, id)
	requireKind(t, err, KindConflict, CodeInvalidBookingState)

	_, err = f.bookings.EndBooking(ctx, rider, id)
	require.NoError(t, err)

	_, err = f.bookings.CancelBooking(ctx, rider, id)
	requireKind(t, err, KindConflict, CodeInvalidBookingState)
	_, err = f.bookings.EndBooking(ctx, rider, id)
	requireKind(t, err, KindConflict, CodeInvalidBookingState)

	_, err = f.verification.MarkReceived(ctx, staff, id)
	require.NoError(t, err)

	_, err = f.verification.MarkReceived(ctx, staff, id)
	requireKind(t, err, KindConflict, CodeInvalidBookingState)
	_, err = f.bookings.CancelBooking(ctx, rider, id)
	requireKind(t, err, KindConflict, CodeInvalidBookingState)
	_, err = f.bookings.EndBooking(ctx, rider, id)
	requireKind(t, err, KindConflict, CodeInvalidBookingState)

	b, err := f.store.Bookings().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, b.Status)
}

func TestRoundTripLocationInvariance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addCycle(t, "cycle-01")
	rider := student()
	before := f.cycle(t, c.ID).CurrentLocation

	res, err := f.bookings.ReserveCycle(ctx, rider, roundTrip(c.ID))
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	ended, err := f.bookings.EndBooking(ctx, rider, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, before, ended.Cycle.CurrentLocation)
	assert.Equal(t, models.CycleStatusBooked, ended.Cycle.Status)

	received, err := f.verification.MarkReceived(ctx, guard(), res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, before, received.Cycle.CurrentLocation)
	assert.Equal(t, models.CycleStatusAvailable, received.Cycle.Status)
}

// A rider books at A, rides to B twenty minutes late, a guard receives the
// cycle, the rider pays and can book again.
func TestFullRideScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addCycle(t, "cycle-01")
	rider, staff := student(), guard()

	res, err := f.bookings.ReserveCycle(ctx, rider, oneWay(c.ID))
	require.NoError(t, err)

	f.clock.Advance(35 * time.Minute)
	_, err = f.bookings.EndBooking(ctx, rider, res.Booking.ID)
	require.NoError(t, err)

	returned, err := f.bookings.ReturnedBookings(ctx, staff, BookingQuery{})
	require.NoError(t, err)
	require.Len(t, returned, 1)
	assert.Equal(t, "cycle-01", *returned[0].CycleName)
	assert.Equal(t, "Test Rider", *returned[0].UserFullName)

	received, err := f.verification.MarkReceived(ctx, staff, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, received.Booking.Status)
	assert.Equal(t, staff.UserID, *received.Booking.ReceivedBy)
	assert.Equal(t, models.CycleStatusAvailable, received.Cycle.Status)
	assert.Equal(t, stationB, received.Cycle.CurrentLocation)

	// penalty blocks the next ride until settled
	_, err = f.bookings.ReserveCycle(ctx, rider, models.CreateBookingRequest{
		CycleID: c.ID.String(), Locations: []string{"Library", "Main Gate"},
	})
	requireKind(t, err, KindConflict, CodeOutstandingPenalty)

	settled, err := f.settlement.SettlePenalty(ctx, rider, rider.UserID, models.SettlePenaltyRequest{
		AmountPaid: 4000, PaymentReference: "pi_123",
	})
	require.NoError(t, err)
	assert.Zero(t, settled.User.PenaltyAmount)
	assert.False(t, settled.User.HasPenalty)

	_, err = f.bookings.ReserveCycle(ctx, rider, models.CreateBookingRequest{
		CycleID: c.ID.String(), Locations: []string{"Library", "Main Gate"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		EventBookingCreated,
		EventBookingReturned,
		EventBookingCompleted,
		EventPenaltySettled,
		EventBookingCreated,
	}, f.events.Keys())
}

func TestBookingQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.addCycle(t, "cycle-01")
	c2 := f.addCycle(t, "cycle-02")
	alice, bob := student(), student()

	a, err := f.bookings.ReserveCycle(ctx, alice, oneWay(c1.ID))
	require.NoError(t, err)
	f.clock.Advance(45 * time.Minute)
	b, err := f.bookings.ReserveCycle(ctx, bob, roundTrip(c2.ID))
	require.NoError(t, err)

	t.Run("Riders See Only Their Own", func(t *testing.T) {
		got, err := f.bookings.ListBookings(ctx, alice, BookingQuery{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, a.Booking.ID, got[0].ID)

		_, err = f.bookings.ListBookings(ctx, alice, BookingQuery{UserID: &bob.UserID})
		requireKind(t, err, KindForbidden, CodeForbidden)
	})

	t.Run("Staff By Cycle", func(t *testing.T) {
		got, err := f.bookings.ListBookings(ctx, admin(), BookingQuery{CycleID: &c2.ID})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, b.Booking.ID, got[0].ID)
	})

	t.Run("By End Location", func(t *testing.T) {
		got, err := f.bookings.ListBookings(ctx, admin(), BookingQuery{EndLocation: "library"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, a.Booking.ID, got[0].ID)
	})

	t.Run("Unknown Status", func(t *testing.T) {
		_, err := f.bookings.ListBookings(ctx, admin(), BookingQuery{Statuses: []models.BookingStatus{"lost"}})
		requireKind(t, err, KindValidation, CodeValidation)
	})

	t.Run("Active", func(t *testing.T) {
		got, err := f.bookings.ActiveBookings(ctx, bob, BookingQuery{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, b.Booking.ID, got[0].ID)

		// a rider's cycle filter stays inside their own bookings
		got, err = f.bookings.ActiveBookings(ctx, bob, BookingQuery{CycleID: &c1.ID})
		require.NoError(t, err)
		assert.Empty(t, got)

		_, err = f.bookings.ActiveBookings(ctx, bob, BookingQuery{UserID: &alice.UserID})
		requireKind(t, err, KindForbidden, CodeForbidden)

		got, err = f.bookings.ActiveBookings(ctx, guard(), BookingQuery{CycleID: &c1.ID})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, a.Booking.ID, got[0].ID)

		got, err = f.bookings.ActiveBookings(ctx, guard(), BookingQuery{UserID: &bob.UserID})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, b.Booking.ID, got[0].ID)

		got, err = f.bookings.ActiveBookings(ctx, guard(), BookingQuery{EndLocation: "Main Gate"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, b.Booking.ID, got[0].ID)

		_, err = f.bookings.ActiveBookings(ctx, guard(), BookingQuery{EndLocation: "Stadium"})
		requireKind(t, err, KindNotFound, CodeLocationNotFound)
	})

	t.Run("Get", func(t *testing.T) {
		_, err := f.bookings.GetBooking(ctx, bob, a.Booking.ID)
		requireKind(t, err, KindNotFound, CodeBookingNotFound)

		got, err := f.bookings.GetBooking(ctx, guard(), a.Booking.ID)
		require.NoError(t, err)
		assert.Equal(t, alice.UserID, got.UserID)
	})

	t.Run("Stuck", func(t *testing.T) {
		got, err := f.bookings.StuckBookings(ctx, 30*time.Minute, BookingQuery{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, a.Booking.ID, got[0].ID)

		got, err = f.bookings.StuckBookings(ctx, 30*time.Minute, BookingQuery{EndLocation: "Library"})
		require.NoError(t, err)
		require.Len(t, got, 1)

		got, err = f.bookings.StuckBookings(ctx, 30*time.Minute, BookingQuery{EndLocation: "Main Gate"})
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = f.bookings.StuckBookings(ctx, 2*time.Hour, BookingQuery{})
		require.NoError(t, err)
		assert.Empty(t, got)

		_, err = f.bookings.StuckBookings(ctx, -time.Minute, BookingQuery{})
		requireKind(t, err, KindValidation, CodeValidation)
	})

	t.Run("Returned Requires Staff", func(t *testing.T) {
		_, err := f.bookings.ReturnedBookings(ctx, alice, BookingQuery{})
		requireKind(t, err, KindForbidden, CodeForbidden)
	})

	t.Run("Admin Listing", func(t *testing.T) {
		got, err := f.bookings.AdminBookings(ctx, models.BookingFilter{})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestReturnedBookings_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.addCycle(t, "cycle-01")
	c2 := f.addCycle(t, "cycle-02")
	alice, bob := student(), student()

	a, err := f.bookings.ReserveCycle(ctx, alice, oneWay(c1.ID))
	require.NoError(t, err)
	b, err := f.bookings.ReserveCycle(ctx, bob, roundTrip(c2.ID))
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)
	_, err = f.bookings.EndBooking(ctx, alice, a.Booking.ID)
	require.NoError(t, err)
	_, err = f.bookings.EndBooking(ctx, bob, b.Booking.ID)
	require.NoError(t, err)

	tests := []struct {
		name  string
		query BookingQuery
		want  []uuid.UUID
	}{
		{"All", BookingQuery{}, []uuid.UUID{a.Booking.ID, b.Booking.ID}},
		{"Library Station", BookingQuery{EndLocation: "Library"}, []uuid.UUID{a.Booking.ID}},
		{"Main Gate Station", BookingQuery{EndLocation: "main gate"}, []uuid.UUID{b.Booking.ID}},
		{"By Rider", BookingQuery{UserID: &bob.UserID}, []uuid.UUID{b.Booking.ID}},
		{"Rider At Other Station", BookingQuery{UserID: &bob.UserID, EndLocation: "Library"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.bookings.ReturnedBookings(ctx, guard(), tt.query)
			require.NoError(t, err)
			ids := make([]uuid.UUID, 0, len(got))
			for _, d := range got {
				assert.Equal(t, models.BookingStatusReturned, d.Status)
				ids = append(ids, d.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}

	t.Run("Unknown Station", func(t *testing.T) {
		_, err := f.bookings.ReturnedBookings(ctx, guard(), BookingQuery{EndLocation: "Stadium"})
		requireKind(t, err, KindNotFound, CodeLocationNotFound)
	})
}

func TestCancelBooking_Atomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addCycle(t, "cycle-01")
	rider := student()
	res, err := f.bookings.ReserveCycle(ctx, rider, oneWay(c.ID))
	require.NoError(t, err)

	f.store.FailNext("cycles.transition", errors.New("write failed"))
	_, err = f.bookings.CancelBooking(ctx, rider, res.Booking.ID)
	requireKind(t, err, KindInternal, CodeInternal)

	booking, err := f.store.Bookings().GetByID(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Equal(t, models.CycleStatusBooked, f.cycle(t, c.ID).Status)
	assert.Equal(t, []string{EventBookingCreated}, f.events.Keys())

	out, err := f.bookings.CancelBooking(ctx, rider, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCanceled, out.Booking.Status)
	assert.Equal(t, models.CycleStatusAvailable, out.Cycle.Status)
}

func TestPublishFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	c := f.addCycle(t, "cycle-01")
	f.events.err = errors.New("broker down")

	_, err := f.bookings.ReserveCycle(context.Background(), student(), oneWay(c.ID))
	require.NoError(t, err)
	assert.Equal(t, models.CycleStatusBooked, f.cycle(t, c.ID).Status)
}
