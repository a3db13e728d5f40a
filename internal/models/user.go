package models

import (
	"time"

	"github.com/google/uuid"
)

// Roles carried by the authenticated principal
const (
	RoleStudent = "student"
	RoleGuard   = "guard"
	RoleAdmin   = "admin"
)

// User is the penalty-relevant slice of an account. Identity and
// credentials live with the authentication provider.
type User struct {
	ID            uuid.UUID `json:"id" db:"id"`
	FullName      *string   `json:"full_name,omitempty" db:"full_name"`
	Email         *string   `json:"email,omitempty" db:"email"`
	Roles         []string  `json:"roles" db:"roles"`
	HasPenalty    bool      `json:"has_penalty" db:"has_penalty"`
	PenaltyAmount int64     `json:"penalty_amount" db:"penalty_amount"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// HasOutstandingPenalty reports whether new reservations must be refused
func (u *User) HasOutstandingPenalty() bool {
	return u.HasPenalty || u.PenaltyAmount > 0
}

// Principal is the authenticated caller handed to every core operation
type Principal struct {
	UserID   uuid.UUID
	Email    string
	FullName string
	Roles    []string
}

// HasRole reports whether the principal carries any of the given roles
func (p Principal) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range p.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// StoredRoles is the role set persisted for the principal. Identity
// provider tokens without a roles claim are riders.
func (p Principal) StoredRoles() []string {
	if len(p.Roles) == 0 {
		return []string{RoleStudent}
	}
	return append([]string(nil), p.Roles...)
}

// SettlePenaltyRequest is sent once the payment processor has captured funds
type SettlePenaltyRequest struct {
	AmountPaid       int64   `json:"amount_paid" binding:"required,gt=0"`
	PaymentReference string  `json:"payment_reference" binding:"required"`
	BookingID        *string `json:"booking_id,omitempty"`
}

// UserResponse adds a display amount to the user payload
type UserResponse struct {
	*User
	PenaltyDisplay string `json:"penalty_display"`
}

// NewUserResponse formats the outstanding penalty for clients
func NewUserResponse(u *User, currency string) UserResponse {
	return UserResponse{User: u, PenaltyDisplay: FormatMinorUnits(u.PenaltyAmount, currency)}
}
