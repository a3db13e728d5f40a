// Package store defines the persistence contracts shared by the Postgres
// repositories and the in-memory store used in tests and local runs.
//
// Every multi-entity transition goes through Store.WithTx: either every write
// made through the Repositories handed to fn commits, or none does.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a guarded write finds the row in an
	// unexpected state, or a uniqueness rule would be broken
	ErrConflict = errors.New("conflict")

	// ErrNotAvailable is returned by Allocate when the cycle is missing or
	// not in the available state
	ErrNotAvailable = errors.New("cycle not found or already booked")
)

// CycleRepository owns cycle availability
type CycleRepository interface {
	Create(ctx context.Context, cycle *models.Cycle) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Cycle, error)
	List(ctx context.Context, filter models.CycleFilter) ([]models.Cycle, error)
	// FindAvailable returns at most one available cycle, optionally at a point
	FindAvailable(ctx context.Context, at *models.Point) (*models.Cycle, error)
	// Allocate moves a cycle from available to booked, compare-and-swap
	Allocate(ctx context.Context, id uuid.UUID) (*models.Cycle, error)
	// Transition moves a cycle from one status to another only if it is
	// currently in from. location, when non-nil, replaces currentLocation.
	Transition(ctx context.Context, id uuid.UUID, from, to models.CycleStatus, location *models.Point) (*models.Cycle, error)
	// Retire soft-deletes a cycle that is not booked
	Retire(ctx context.Context, id uuid.UUID) error
}

// BookingRepository owns booking records and their guarded transitions
type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindOpenByUser(ctx context.Context, userID uuid.UUID) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	ListDetailed(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, error)
	// MarkReturned moves an owned pending booking to returned
	MarkReturned(ctx context.Context, id, userID uuid.UUID, details models.ReturnDetails) (*models.Booking, error)
	// MarkCanceled moves an owned pending booking to canceled
	MarkCanceled(ctx context.Context, id, userID uuid.UUID) (*models.Booking, error)
	// MarkCompleted moves a returned booking to completed
	MarkCompleted(ctx context.Context, id, guardID uuid.UUID, receivedAt time.Time) (*models.Booking, error)
}

// UserRepository owns the penalty balance
type UserRepository interface {
	// Ensure creates the user row for a principal if it does not exist yet
	Ensure(ctx context.Context, principal models.Principal) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// GetForUpdate reads the user and, inside a transaction, locks the row
	// until commit so admission checks for one user serialise
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error)
	// AddPenalty atomically increments the balance and sets has_penalty
	AddPenalty(ctx context.Context, id uuid.UUID, amount int64) (*models.User, error)
	// SettlePenalty atomically decrements the balance, floored at zero
	SettlePenalty(ctx context.Context, id uuid.UUID, amount int64) (*models.User, error)
}

// LocationRepository owns the station directory
type LocationRepository interface {
	Create(ctx context.Context, location *models.Location) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Location, error)
	GetByName(ctx context.Context, name string) (*models.Location, error)
	List(ctx context.Context) ([]models.Location, error)
	UpdatePoint(ctx context.Context, name string, point models.Point) (*models.Location, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TransactionRepository records payment captures
type TransactionRepository interface {
	Create(ctx context.Context, txn *models.PaymentTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	GetByReference(ctx context.Context, reference string) (*models.PaymentTransaction, error)
	List(ctx context.Context, filter models.TransactionFilter) ([]models.PaymentTransaction, error)
}

// Repositories groups the repositories bound to one connection or transaction
type Repositories interface {
	Cycles() CycleRepository
	Bookings() BookingRepository
	Users() UserRepository
	Locations() LocationRepository
	Transactions() TransactionRepository
}

// Store is the persistence entry point
type Store interface {
	Repositories

	// WithTx runs fn inside one atomic transaction. A non-nil error from fn,
	// or a panic, aborts every write made through tx.
	WithTx(ctx context.Context, fn func(tx Repositories) error) error

	Ping(ctx context.Context) error
}
