package database

import (
	"context"
	"fmt"

	"github.com/campuscycle/booking-backend/internal/store"
	"github.com/jmoiron/sqlx"
)

var _ store.Store = (*Store)(nil)

type repositories struct {
	cycles       *CycleRepository
	bookings     *BookingRepository
	users        *UserRepository
	locations    *LocationRepository
	transactions *TransactionRepository
}

func newRepositories(db sqlx.ExtContext) *repositories {
	return &repositories{
		cycles:       NewCycleRepository(db),
		bookings:     NewBookingRepository(db),
		users:        NewUserRepository(db),
		locations:    NewLocationRepository(db),
		transactions: NewTransactionRepository(db),
	}
}

func (r *repositories) Cycles() store.CycleRepository             { return r.cycles }
func (r *repositories) Bookings() store.BookingRepository         { return r.bookings }
func (r *repositories) Users() store.UserRepository               { return r.users }
func (r *repositories) Locations() store.LocationRepository       { return r.locations }
func (r *repositories) Transactions() store.TransactionRepository { return r.transactions }

// Store is the Postgres-backed store.Store
type Store struct {
	*repositories
	db *sqlx.DB
}

// NewStore wraps an open connection pool
func NewStore(db *sqlx.DB) *Store {
	return &Store{repositories: newRepositories(db), db: db}
}

// WithTx runs fn inside one database transaction. The deferred rollback is a
// no-op after a successful commit and also covers panics inside fn.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
