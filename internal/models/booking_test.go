package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBookingStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from BookingStatus
		to   BookingStatus
		want bool
	}{
		{BookingStatusPending, BookingStatusReturned, true},
		{BookingStatusPending, BookingStatusCanceled, true},
		{BookingStatusReturned, BookingStatusCompleted, true},
		{BookingStatusPending, BookingStatusCompleted, false},
		{BookingStatusReturned, BookingStatusPending, false},
		{BookingStatusReturned, BookingStatusCanceled, false},
		{BookingStatusCompleted, BookingStatusPending, false},
		{BookingStatusCanceled, BookingStatusReturned, false},
		{BookingStatusCanceled, BookingStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestBookingStatus_Flags(t *testing.T) {
	assert.True(t, BookingStatusPending.IsOpen())
	assert.True(t, BookingStatusReturned.IsOpen())
	assert.False(t, BookingStatusCompleted.IsOpen())
	assert.True(t, BookingStatusCanceled.IsTerminal())
	assert.False(t, BookingStatus("archived").Valid())
}

func TestFormatMinorUnits(t *testing.T) {
	assert.Equal(t, "INR 40.00", FormatMinorUnits(4000, "inr"))
	assert.Equal(t, "0.05", FormatMinorUnits(5, ""))
	assert.Equal(t, "INR 0.00", FormatMinorUnits(0, "INR"))
}

func TestPrincipal_HasRole(t *testing.T) {
	p := Principal{Roles: []string{RoleStudent, RoleGuard}}
	assert.True(t, p.HasRole(RoleGuard))
	assert.True(t, p.HasRole(RoleAdmin, RoleStudent))
	assert.False(t, p.HasRole(RoleAdmin))
}
