package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/store"
	"github.com/campuscycle/booking-backend/pkg/maps"
	"github.com/campuscycle/booking-backend/pkg/validator"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultNearbyRadiusMeters is how far a coordinate lookup may snap to a station
const DefaultNearbyRadiusMeters = 50.0

// LocationService manages the station directory and resolves station names
// for the booking flow
type LocationService struct {
	store        store.Store
	validator    *validator.LocationValidator
	nearbyRadius float64
	logger       *logrus.Logger
}

// NewLocationService creates a new location service
func NewLocationService(st store.Store, nearbyRadius float64, logger *logrus.Logger) *LocationService {
	if nearbyRadius <= 0 {
		nearbyRadius = DefaultNearbyRadiusMeters
	}
	return &LocationService{
		store:        st,
		validator:    validator.NewLocationValidator(),
		nearbyRadius: nearbyRadius,
		logger:       logger,
	}
}

func (s *LocationService) point(longitude, latitude *float64) (models.Point, error) {
	if longitude == nil || latitude == nil {
		return models.Point{}, validationError("longitude and latitude are required")
	}
	if err := s.validator.ValidateCoordinates(*longitude, *latitude); err != nil {
		return models.Point{}, validationError(err.Error())
	}
	return models.Point{Longitude: *longitude, Latitude: *latitude}, nil
}

// Create adds a station. Names are unique after normalisation.
func (s *LocationService) Create(ctx context.Context, req models.CreateLocationRequest) (*models.Location, error) {
	name, err := s.validator.ValidateName(req.Name)
	if err != nil {
		return nil, validationError(err.Error())
	}
	pt, err := s.point(req.Longitude, req.Latitude)
	if err != nil {
		return nil, err
	}

	loc := &models.Location{Name: name, Point: pt}
	if err := s.store.Locations().Create(ctx, loc); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, conflictError(CodeDuplicateLocation, fmt.Sprintf("Location '%s' already exists", name))
		}
		return nil, internalError(err)
	}

	s.logger.WithFields(logrus.Fields{"location_id": loc.ID, "name": name}).Info("Location created")
	return loc, nil
}

// Update moves the station identified by name
func (s *LocationService) Update(ctx context.Context, req models.UpdateLocationRequest) (*models.Location, error) {
	name, err := s.validator.ValidateName(req.Name)
	if err != nil {
		return nil, validationError(err.Error())
	}
	pt, err := s.point(req.Longitude, req.Latitude)
	if err != nil {
		return nil, err
	}

	loc, err := s.store.Locations().UpdatePoint(ctx, name, pt)
	if err != nil {
		return nil, s.notFoundOrInternal(err, name)
	}
	return loc, nil
}

// Delete removes a station by id
func (s *LocationService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Locations().Delete(ctx, id); err != nil {
		return s.notFoundOrInternal(err, id.String())
	}
	s.logger.WithField("location_id", id).Info("Location deleted")
	return nil
}

// Get returns a station by id
func (s *LocationService) Get(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	loc, err := s.store.Locations().GetByID(ctx, id)
	if err != nil {
		return nil, s.notFoundOrInternal(err, id.String())
	}
	return loc, nil
}

// List returns every station sorted by name
func (s *LocationService) List(ctx context.Context) ([]models.Location, error) {
	locs, err := s.store.Locations().List(ctx)
	if err != nil {
		return nil, internalError(err)
	}
	return locs, nil
}

// Lookup returns the station at exactly these coordinates, or failing that
// the nearest station within the configured radius.
func (s *LocationService) Lookup(ctx context.Context, pt models.Point) (*models.Location, error) {
	if err := s.validator.ValidateCoordinates(pt.Longitude, pt.Latitude); err != nil {
		return nil, validationError(err.Error())
	}

	locs, err := s.store.Locations().List(ctx)
	if err != nil {
		return nil, internalError(err)
	}

	var nearest *models.Location
	best := s.nearbyRadius
	for i := range locs {
		if locs[i].Point == pt {
			return &locs[i], nil
		}
		d := maps.HaversineMeters(toLatLng(pt), toLatLng(locs[i].Point))
		if d <= best {
			best = d
			nearest = &locs[i]
		}
	}
	if nearest == nil {
		return nil, notFoundError(CodeLocationNotFound, "No location found near these coordinates")
	}
	return nearest, nil
}

// Resolve turns station names into points, preserving order. Any unknown
// name fails the whole call.
func (s *LocationService) Resolve(ctx context.Context, names []string) ([]models.ResolvedLocation, error) {
	out := make([]models.ResolvedLocation, 0, len(names))
	for _, raw := range names {
		name, err := s.validator.ValidateName(raw)
		if err != nil {
			return nil, validationError(err.Error())
		}
		loc, err := s.store.Locations().GetByName(ctx, name)
		if err != nil {
			return nil, s.notFoundOrInternal(err, name)
		}
		out = append(out, models.ResolvedLocation{Name: loc.Name, Point: loc.Point})
	}
	return out, nil
}

func (s *LocationService) notFoundOrInternal(err error, key string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError(CodeLocationNotFound, fmt.Sprintf("Location '%s' not found", key))
	}
	return internalError(err)
}

func toLatLng(p models.Point) maps.LatLng {
	return maps.LatLng{Lat: p.Latitude, Lng: p.Longitude}
}
