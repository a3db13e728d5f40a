package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusReturned  BookingStatus = "returned"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCanceled  BookingStatus = "canceled"
)

// bookingTransitions lists the only legal forward moves of the lifecycle.
// completed and canceled are terminal.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:  {BookingStatusReturned, BookingStatusCanceled},
	BookingStatusReturned: {BookingStatusCompleted},
}

// OpenBookingStatuses are the statuses that still hold a cycle and block a new reservation
var OpenBookingStatuses = []BookingStatus{BookingStatusPending, BookingStatusReturned}

// Valid reports whether s is a known booking status
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusReturned, BookingStatusCompleted, BookingStatusCanceled:
		return true
	}
	return false
}

// IsOpen reports whether the booking is still unresolved
func (s BookingStatus) IsOpen() bool {
	return s == BookingStatusPending || s == BookingStatusReturned
}

// IsTerminal reports whether no further transition is possible
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCanceled
}

// CanTransitionTo checks the lifecycle table
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Booking represents one reservation from allocation to guard verification.
// Bookings are never deleted.
type Booking struct {
	ID                      uuid.UUID     `json:"id" db:"id"`
	UserID                  uuid.UUID     `json:"user_id" db:"user_id"`
	CycleID                 uuid.UUID     `json:"cycle_id" db:"cycle_id"`
	StartLocation           Point         `json:"start_location"`
	StartLocationName       *string       `json:"start_location_name,omitempty" db:"start_location_name"`
	EndLocation             Point         `json:"end_location"`
	EndLocationName         *string       `json:"end_location_name,omitempty" db:"end_location_name"`
	IsRoundTrip             bool          `json:"is_round_trip" db:"is_round_trip"`
	StartTime               time.Time     `json:"start_time" db:"start_time"`
	EstimatedEndTime        time.Time     `json:"estimated_end_time" db:"estimated_end_time"`
	ActualEndTime           *time.Time    `json:"actual_end_time,omitempty" db:"actual_end_time"`
	EstimatedDistanceMeters int64         `json:"estimated_distance_meters" db:"estimated_distance_meters"`
	DurationSeconds         int64         `json:"duration_seconds" db:"duration_seconds"`
	PenaltyApplied          bool          `json:"penalty_applied" db:"penalty_applied"`
	PenaltyAmount           int64         `json:"penalty_amount" db:"penalty_amount"`
	Status                  BookingStatus `json:"status" db:"status"`
	ReceivedBy              *uuid.UUID    `json:"received_by,omitempty" db:"received_by"`
	ReceivedAt              *time.Time    `json:"received_at,omitempty" db:"received_at"`
	CreatedAt               time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time     `json:"updated_at" db:"updated_at"`
}

// ReturnDetails is what the rider reports when ending a ride
type ReturnDetails struct {
	ActualEndTime  time.Time
	PenaltyApplied bool
	PenaltyAmount  int64
}

// BookingDetail is a booking joined with the names staff need on screen
type BookingDetail struct {
	Booking
	UserFullName *string `json:"user_full_name,omitempty" db:"user_full_name"`
	UserEmail    *string `json:"user_email,omitempty" db:"user_email"`
	CycleName    *string `json:"cycle_name,omitempty" db:"cycle_name"`
}

// BookingFilter narrows booking queries. Zero values mean "no constraint".
type BookingFilter struct {
	BookingID     *uuid.UUID
	CycleID       *uuid.UUID
	UserID        *uuid.UUID
	Statuses      []BookingStatus
	EndLocation   *Point
	StartedBefore *time.Time
}

// CreateBookingRequest is the HTTP payload for a new reservation.
// locations is ordered: start first, then end.
type CreateBookingRequest struct {
	CycleID     string   `json:"cycle_id" binding:"required"`
	Locations   []string `json:"locations" binding:"required,min=1,max=2"`
	IsRoundTrip bool     `json:"is_round_trip"`
}

// NewBookingInput is the typed input the booking engine accepts once
// station names have been resolved and the route has been estimated.
type NewBookingInput struct {
	CycleID         uuid.UUID
	Start           ResolvedLocation
	End             ResolvedLocation
	IsRoundTrip     bool
	Route           RouteEstimate
	RequestedAtTime time.Time
}

// BookingResult bundles the entities touched by a multi-entity transition
type BookingResult struct {
	Booking *Booking `json:"booking"`
	Cycle   *Cycle   `json:"cycle"`
	User    *User    `json:"user,omitempty"`
}
