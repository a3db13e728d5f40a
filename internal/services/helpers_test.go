package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/store/memory"
	"github.com/campuscycle/booking-backend/pkg/maps"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	stationA = models.Point{Longitude: 80.0210, Latitude: 6.7970}
	stationB = models.Point{Longitude: 80.0290, Latitude: 6.8010}
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fixedRoute is a RouteEstimator returning the same answer every time
type fixedRoute struct {
	route maps.Route
	err   error
	calls int
	mu    sync.Mutex
}

func (f *fixedRoute) Estimate(context.Context, maps.LatLng, maps.LatLng) (*maps.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r := f.route
	return &r, nil
}

// recordingPublisher keeps every published routing key
type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return p.err
}

func (p *recordingPublisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// testClock is a settable clock shared by the services under test
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store        *memory.Store
	clock        *testClock
	router       *fixedRoute
	events       *recordingPublisher
	locations    *LocationService
	bookings     *BookingService
	verification *VerificationService
	settlement   *SettlementService
	inventory    *InventoryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := quietLogger()
	st := memory.New()
	clock := &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	router := &fixedRoute{route: maps.Route{DistanceMeters: 1200, DurationSeconds: 600}}
	events := &recordingPublisher{}

	locations := NewLocationService(st, 0, logger)
	cfg := DefaultBookingConfig()
	cfg.Now = clock.Now

	verification := NewVerificationService(st, events, logger)
	verification.now = clock.Now
	settlement := NewSettlementService(st, events, "inr", logger)
	settlement.now = clock.Now

	f := &fixture{
		store:        st,
		clock:        clock,
		router:       router,
		events:       events,
		locations:    locations,
		bookings:     NewBookingService(st, locations, router, NewPenaltyCalculator(DefaultPenaltyPerMinute), events, cfg, logger),
		verification: verification,
		settlement:   settlement,
		inventory:    NewInventoryService(st, locations, logger),
	}

	ctx := context.Background()
	for name, pt := range map[string]models.Point{"Main Gate": stationA, "Library": stationB} {
		lng, lat := pt.Longitude, pt.Latitude
		_, err := locations.Create(ctx, models.CreateLocationRequest{Name: name, Longitude: &lng, Latitude: &lat})
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) addCycle(t *testing.T, name string) *models.Cycle {
	t.Helper()
	c, err := f.inventory.AddCycle(context.Background(), models.CreateCycleRequest{CycleName: name, Location: "main gate"})
	require.NoError(t, err)
	return c
}

func (f *fixture) cycle(t *testing.T, id uuid.UUID) *models.Cycle {
	t.Helper()
	c, err := f.store.Cycles().GetByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (f *fixture) user(t *testing.T, id uuid.UUID) *models.User {
	t.Helper()
	u, err := f.store.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func student() models.Principal {
	return models.Principal{UserID: uuid.New(), Email: "rider@campus.edu", FullName: "Test Rider", Roles: []string{models.RoleStudent}}
}

func guard() models.Principal {
	return models.Principal{UserID: uuid.New(), FullName: "Gate Guard", Roles: []string{models.RoleGuard}}
}

func admin() models.Principal {
	return models.Principal{UserID: uuid.New(), Roles: []string{models.RoleAdmin}}
}

func oneWay(cycleID uuid.UUID) models.CreateBookingRequest {
	return models.CreateBookingRequest{CycleID: cycleID.String(), Locations: []string{"Main Gate", "Library"}}
}

func roundTrip(cycleID uuid.UUID) models.CreateBookingRequest {
	return models.CreateBookingRequest{CycleID: cycleID.String(), Locations: []string{"Main Gate"}, IsRoundTrip: true}
}

func requireKind(t *testing.T, err error, kind ErrorKind, code string) {
	t.Helper()
	require.Error(t, err)
	var svcErr *Error
	require.True(t, errors.As(err, &svcErr), "expected *services.Error, got %T: %v", err, err)
	require.Equal(t, kind, svcErr.Kind, svcErr.Error())
	if code != "" {
		require.Equal(t, code, svcErr.Code)
	}
}
