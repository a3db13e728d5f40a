// Package memory is an in-process implementation of store.Store used for
// tests and for running the API without Postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/store"
	"github.com/google/uuid"
)

var _ store.Store = (*Store)(nil)

type dataset struct {
	cycles       map[uuid.UUID]models.Cycle
	bookings     map[uuid.UUID]models.Booking
	users        map[uuid.UUID]models.User
	locations    map[uuid.UUID]models.Location
	transactions map[uuid.UUID]models.PaymentTransaction
}

func newDataset() *dataset {
	return &dataset{
		cycles:       make(map[uuid.UUID]models.Cycle),
		bookings:     make(map[uuid.UUID]models.Booking),
		users:        make(map[uuid.UUID]models.User),
		locations:    make(map[uuid.UUID]models.Location),
		transactions: make(map[uuid.UUID]models.PaymentTransaction),
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.cycles {
		c.cycles[k] = v
	}
	for k, v := range d.bookings {
		c.bookings[k] = v
	}
	for k, v := range d.users {
		u := v
		u.Roles = append([]string(nil), v.Roles...)
		c.users[k] = u
	}
	for k, v := range d.locations {
		c.locations[k] = v
	}
	for k, v := range d.transactions {
		c.transactions[k] = v
	}
	return c
}

// Store keeps every entity in maps guarded by one mutex. WithTx holds the
// write lock for the whole callback and restores a snapshot on failure.
type Store struct {
	mu       sync.RWMutex
	data     *dataset
	failures map[string]error
	now      func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		data:     newDataset(),
		failures: make(map[string]error),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FailNext makes the next call of op fail with err. op names look like
// "bookings.create" or "users.add_penalty".
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// takeFailure must be called with the write lock held
func (s *Store) takeFailure(op string) error {
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

func (s *Store) Cycles() store.CycleRepository             { return &cycleRepo{view{s: s}} }
func (s *Store) Bookings() store.BookingRepository         { return &bookingRepo{view{s: s}} }
func (s *Store) Users() store.UserRepository               { return &userRepo{view{s: s}} }
func (s *Store) Locations() store.LocationRepository       { return &locationRepo{view{s: s}} }
func (s *Store) Transactions() store.TransactionRepository { return &transactionRepo{view{s: s}} }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// WithTx runs fn against a locked view. Any error or panic restores the
// state captured before fn started.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Repositories) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	return fn(&txRepos{view{s: s, locked: true}})
}

type txRepos struct{ v view }

func (t *txRepos) Cycles() store.CycleRepository             { return &cycleRepo{t.v} }
func (t *txRepos) Bookings() store.BookingRepository         { return &bookingRepo{t.v} }
func (t *txRepos) Users() store.UserRepository               { return &userRepo{t.v} }
func (t *txRepos) Locations() store.LocationRepository       { return &locationRepo{t.v} }
func (t *txRepos) Transactions() store.TransactionRepository { return &transactionRepo{t.v} }

// view binds a repository either to the live store (taking the lock per
// call) or to a transaction that already holds it.
type view struct {
	s      *Store
	locked bool
}

func (v view) read(fn func(d *dataset) error) error {
	if v.locked {
		return fn(v.s.data)
	}
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return fn(v.s.data)
}

func (v view) write(op string, fn func(d *dataset) error) error {
	if !v.locked {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	if err := v.s.takeFailure(op); err != nil {
		return err
	}
	return fn(v.s.data)
}

// ---------------------------------------------------------------------------
// cycles

type cycleRepo struct{ v view }

func (r *cycleRepo) Create(_ context.Context, cycle *models.Cycle) error {
	return r.v.write("cycles.create", func(d *dataset) error {
		for _, c := range d.cycles {
			if c.CycleName == cycle.CycleName {
				return fmt.Errorf("cycle %q: %w", cycle.CycleName, store.ErrConflict)
			}
		}
		if cycle.ID == uuid.Nil {
			cycle.ID = uuid.New()
		}
		if cycle.Status == "" {
			cycle.Status = models.CycleStatusAvailable
		}
		now := r.v.s.now()
		cycle.CreatedAt, cycle.UpdatedAt = now, now
		d.cycles[cycle.ID] = *cycle
		return nil
	})
}

func (r *cycleRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Cycle, error) {
	var out *models.Cycle
	err := r.v.read(func(d *dataset) error {
		c, ok := d.cycles[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *cycleRepo) List(_ context.Context, filter models.CycleFilter) ([]models.Cycle, error) {
	var out []models.Cycle
	err := r.v.read(func(d *dataset) error {
		for _, c := range d.cycles {
			if c.RetiredAt != nil {
				continue
			}
			if filter.CycleID != nil && c.ID != *filter.CycleID {
				continue
			}
			if filter.Status != nil && c.Status != *filter.Status {
				continue
			}
			if filter.Location != nil && c.CurrentLocation != *filter.Location {
				continue
			}
			out = append(out, c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CycleName < out[j].CycleName })
	return out, err
}

func (r *cycleRepo) FindAvailable(ctx context.Context, at *models.Point) (*models.Cycle, error) {
	status := models.CycleStatusAvailable
	cycles, err := r.List(ctx, models.CycleFilter{Status: &status, Location: at})
	if err != nil {
		return nil, err
	}
	if len(cycles) == 0 {
		return nil, store.ErrNotFound
	}
	return &cycles[0], nil
}

func (r *cycleRepo) Allocate(_ context.Context, id uuid.UUID) (*models.Cycle, error) {
	var out *models.Cycle
	err := r.v.write("cycles.allocate", func(d *dataset) error {
		c, ok := d.cycles[id]
		if !ok || c.RetiredAt != nil || c.Status != models.CycleStatusAvailable {
			return store.ErrNotAvailable
		}
		c.Status = models.CycleStatusBooked
		c.UpdatedAt = r.v.s.now()
		d.cycles[id] = c
		out = &c
		return nil
	})
	return out, err
}

func (r *cycleRepo) Transition(_ context.Context, id uuid.UUID, from, to models.CycleStatus, location *models.Point) (*models.Cycle, error) {
	var out *models.Cycle
	err := r.v.write("cycles.transition", func(d *dataset) error {
		c, ok := d.cycles[id]
		if !ok {
			return store.ErrNotFound
		}
		if c.RetiredAt != nil || c.Status != from {
			return fmt.Errorf("cycle is %s, expected %s: %w", c.Status, from, store.ErrConflict)
		}
		c.Status = to
		if location != nil {
			c.CurrentLocation = *location
		}
		c.UpdatedAt = r.v.s.now()
		d.cycles[id] = c
		out = &c
		return nil
	})
	return out, err
}

func (r *cycleRepo) Retire(_ context.Context, id uuid.UUID) error {
	return r.v.write("cycles.retire", func(d *dataset) error {
		c, ok := d.cycles[id]
		if !ok || c.RetiredAt != nil {
			return store.ErrNotFound
		}
		if c.Status == models.CycleStatusBooked {
			return fmt.Errorf("cycle is booked: %w", store.ErrConflict)
		}
		now := r.v.s.now()
		c.RetiredAt = &now
		c.UpdatedAt = now
		d.cycles[id] = c
		return nil
	})
}

// ---------------------------------------------------------------------------
// bookings

type bookingRepo struct{ v view }

func (r *bookingRepo) Create(_ context.Context, booking *models.Booking) error {
	return r.v.write("bookings.create", func(d *dataset) error {
		for _, b := range d.bookings {
			if !b.Status.IsOpen() {
				continue
			}
			if b.UserID == booking.UserID {
				return fmt.Errorf("user already holds booking %s: %w", b.ID, store.ErrConflict)
			}
			if b.CycleID == booking.CycleID {
				return fmt.Errorf("cycle already held by booking %s: %w", b.ID, store.ErrConflict)
			}
		}
		if booking.ID == uuid.Nil {
			booking.ID = uuid.New()
		}
		if booking.Status == "" {
			booking.Status = models.BookingStatusPending
		}
		now := r.v.s.now()
		booking.CreatedAt, booking.UpdatedAt = now, now
		d.bookings[booking.ID] = *booking
		return nil
	})
}

func (r *bookingRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	var out *models.Booking
	err := r.v.read(func(d *dataset) error {
		b, ok := d.bookings[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

func (r *bookingRepo) FindOpenByUser(_ context.Context, userID uuid.UUID) (*models.Booking, error) {
	var out *models.Booking
	err := r.v.read(func(d *dataset) error {
		for _, b := range d.bookings {
			if b.UserID == userID && b.Status.IsOpen() {
				out = &b
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func matchBooking(b models.Booking, f models.BookingFilter) bool {
	if f.BookingID != nil && b.ID != *f.BookingID {
		return false
	}
	if f.CycleID != nil && b.CycleID != *f.CycleID {
		return false
	}
	if f.UserID != nil && b.UserID != *f.UserID {
		return false
	}
	if f.EndLocation != nil && b.EndLocation != *f.EndLocation {
		return false
	}
	if f.StartedBefore != nil && !b.StartTime.Before(*f.StartedBefore) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if b.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (r *bookingRepo) List(_ context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	var out []models.Booking
	err := r.v.read(func(d *dataset) error {
		for _, b := range d.bookings {
			if matchBooking(b, filter) {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

func (r *bookingRepo) ListDetailed(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, error) {
	bookings, err := r.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]models.BookingDetail, 0, len(bookings))
	err = r.v.read(func(d *dataset) error {
		for _, b := range bookings {
			detail := models.BookingDetail{Booking: b}
			if u, ok := d.users[b.UserID]; ok {
				detail.UserFullName = u.FullName
				detail.UserEmail = u.Email
			}
			if c, ok := d.cycles[b.CycleID]; ok {
				name := c.CycleName
				detail.CycleName = &name
			}
			out = append(out, detail)
		}
		return nil
	})
	return out, err
}

// transition applies mutate to a booking that exists, is visible to owner
// (uuid.Nil skips the ownership check) and is currently in from.
func (r *bookingRepo) transition(op string, id, owner uuid.UUID, from models.BookingStatus, mutate func(b *models.Booking)) (*models.Booking, error) {
	var out *models.Booking
	err := r.v.write(op, func(d *dataset) error {
		b, ok := d.bookings[id]
		if !ok || (owner != uuid.Nil && b.UserID != owner) {
			return store.ErrNotFound
		}
		if b.Status != from {
			return fmt.Errorf("booking is %s, expected %s: %w", b.Status, from, store.ErrConflict)
		}
		mutate(&b)
		b.UpdatedAt = r.v.s.now()
		d.bookings[id] = b
		out = &b
		return nil
	})
	return out, err
}

func (r *bookingRepo) MarkReturned(_ context.Context, id, userID uuid.UUID, details models.ReturnDetails) (*models.Booking, error) {
	return r.transition("bookings.mark_returned", id, userID, models.BookingStatusPending, func(b *models.Booking) {
		end := details.ActualEndTime
		b.ActualEndTime = &end
		b.PenaltyApplied = details.PenaltyApplied
		b.PenaltyAmount = details.PenaltyAmount
		b.Status = models.BookingStatusReturned
	})
}

func (r *bookingRepo) MarkCanceled(_ context.Context, id, userID uuid.UUID) (*models.Booking, error) {
	return r.transition("bookings.mark_canceled", id, userID, models.BookingStatusPending, func(b *models.Booking) {
		b.Status = models.BookingStatusCanceled
	})
}

func (r *bookingRepo) MarkCompleted(_ context.Context, id, guardID uuid.UUID, receivedAt time.Time) (*models.Booking, error) {
	return r.transition("bookings.mark_completed", id, uuid.Nil, models.BookingStatusReturned, func(b *models.Booking) {
		guard := guardID
		at := receivedAt
		b.ReceivedBy = &guard
		b.ReceivedAt = &at
		b.Status = models.BookingStatusCompleted
	})
}

// ---------------------------------------------------------------------------
// users

type userRepo struct{ v view }

func (r *userRepo) Ensure(_ context.Context, principal models.Principal) (*models.User, error) {
	var out *models.User
	err := r.v.write("users.ensure", func(d *dataset) error {
		now := r.v.s.now()
		u, ok := d.users[principal.UserID]
		if !ok {
			u = models.User{ID: principal.UserID, CreatedAt: now}
		}
		if principal.FullName != "" {
			name := principal.FullName
			u.FullName = &name
		}
		if principal.Email != "" {
			email := principal.Email
			u.Email = &email
		}
		u.Roles = principal.StoredRoles()
		u.UpdatedAt = now
		d.users[u.ID] = u
		out = &u
		return nil
	})
	return out, err
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	var out *models.User
	err := r.v.read(func(d *dataset) error {
		u, ok := d.users[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

// GetForUpdate needs no extra locking here: a transaction already holds the
// store's write lock.
func (r *userRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r *userRepo) adjust(op string, id uuid.UUID, apply func(current int64) int64) (*models.User, error) {
	var out *models.User
	err := r.v.write(op, func(d *dataset) error {
		u, ok := d.users[id]
		if !ok {
			return store.ErrNotFound
		}
		u.PenaltyAmount = apply(u.PenaltyAmount)
		u.HasPenalty = u.PenaltyAmount > 0
		u.UpdatedAt = r.v.s.now()
		d.users[id] = u
		out = &u
		return nil
	})
	return out, err
}

func (r *userRepo) AddPenalty(_ context.Context, id uuid.UUID, amount int64) (*models.User, error) {
	return r.adjust("users.add_penalty", id, func(current int64) int64 {
		if amount <= 0 {
			return current
		}
		return current + amount
	})
}

func (r *userRepo) SettlePenalty(_ context.Context, id uuid.UUID, amount int64) (*models.User, error) {
	return r.adjust("users.settle_penalty", id, func(current int64) int64 {
		if amount >= current {
			return 0
		}
		return current - amount
	})
}

// ---------------------------------------------------------------------------
// locations

type locationRepo struct{ v view }

func (r *locationRepo) Create(_ context.Context, location *models.Location) error {
	return r.v.write("locations.create", func(d *dataset) error {
		for _, l := range d.locations {
			if l.Name == location.Name {
				return fmt.Errorf("location %q: %w", location.Name, store.ErrConflict)
			}
		}
		if location.ID == uuid.Nil {
			location.ID = uuid.New()
		}
		now := r.v.s.now()
		location.CreatedAt, location.UpdatedAt = now, now
		d.locations[location.ID] = *location
		return nil
	})
}

func (r *locationRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Location, error) {
	var out *models.Location
	err := r.v.read(func(d *dataset) error {
		l, ok := d.locations[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &l
		return nil
	})
	return out, err
}

func (r *locationRepo) GetByName(_ context.Context, name string) (*models.Location, error) {
	var out *models.Location
	err := r.v.read(func(d *dataset) error {
		for _, l := range d.locations {
			if l.Name == name {
				out = &l
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r *locationRepo) List(_ context.Context) ([]models.Location, error) {
	var out []models.Location
	err := r.v.read(func(d *dataset) error {
		for _, l := range d.locations {
			out = append(out, l)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (r *locationRepo) UpdatePoint(_ context.Context, name string, point models.Point) (*models.Location, error) {
	var out *models.Location
	err := r.v.write("locations.update", func(d *dataset) error {
		for id, l := range d.locations {
			if l.Name == name {
				l.Point = point
				l.UpdatedAt = r.v.s.now()
				d.locations[id] = l
				out = &l
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r *locationRepo) Delete(_ context.Context, id uuid.UUID) error {
	return r.v.write("locations.delete", func(d *dataset) error {
		if _, ok := d.locations[id]; !ok {
			return store.ErrNotFound
		}
		delete(d.locations, id)
		return nil
	})
}

// ---------------------------------------------------------------------------
// payment transactions

type transactionRepo struct{ v view }

func (r *transactionRepo) Create(_ context.Context, txn *models.PaymentTransaction) error {
	return r.v.write("transactions.create", func(d *dataset) error {
		for _, t := range d.transactions {
			if t.PaymentReference == txn.PaymentReference {
				return fmt.Errorf("payment reference %q: %w", txn.PaymentReference, store.ErrConflict)
			}
		}
		if txn.ID == uuid.Nil {
			txn.ID = uuid.New()
		}
		txn.CreatedAt = r.v.s.now()
		d.transactions[txn.ID] = *txn
		return nil
	})
}

func (r *transactionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	var out *models.PaymentTransaction
	err := r.v.read(func(d *dataset) error {
		t, ok := d.transactions[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func (r *transactionRepo) GetByReference(_ context.Context, reference string) (*models.PaymentTransaction, error) {
	var out *models.PaymentTransaction
	err := r.v.read(func(d *dataset) error {
		for _, t := range d.transactions {
			if t.PaymentReference == reference {
				out = &t
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r *transactionRepo) List(_ context.Context, filter models.TransactionFilter) ([]models.PaymentTransaction, error) {
	var out []models.PaymentTransaction
	err := r.v.read(func(d *dataset) error {
		for _, t := range d.transactions {
			if filter.UserID != nil && t.UserID != *filter.UserID {
				continue
			}
			if filter.BookingID != nil && (t.BookingID == nil || *t.BookingID != *filter.BookingID) {
				continue
			}
			out = append(out, t)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}
