package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// InventoryService is the admin side of the cycle ledger. Allocation and
// release for rides go through BookingService and VerificationService.
type InventoryService struct {
	store     store.Store
	locations Geocoder
	logger    *logrus.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(st store.Store, locations Geocoder, logger *logrus.Logger) *InventoryService {
	return &InventoryService{
		store:     st,
		locations: locations,
		logger:    logger,
	}
}

// AddCycle registers a cycle parked at a named station
func (s *InventoryService) AddCycle(ctx context.Context, req models.CreateCycleRequest) (*models.Cycle, error) {
	name := strings.TrimSpace(req.CycleName)
	if name == "" {
		return nil, validationError("cycle_name is required")
	}
	resolved, err := s.locations.Resolve(ctx, []string{req.Location})
	if err != nil {
		return nil, err
	}

	cycle := &models.Cycle{
		CycleName:       name,
		Status:          models.CycleStatusAvailable,
		CurrentLocation: resolved[0].Point,
	}
	if err := s.store.Cycles().Create(ctx, cycle); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, conflictError(CodeDuplicateCycle, fmt.Sprintf("Cycle '%s' already exists", name))
		}
		return nil, internalError(err)
	}

	s.logger.WithFields(logrus.Fields{
		"cycle_id":   cycle.ID,
		"cycle_name": name,
		"location":   resolved[0].Name,
	}).Info("Cycle added")
	return cycle, nil
}

// CycleQuery narrows ListCycles. Location is a station name.
type CycleQuery struct {
	CycleID  *uuid.UUID
	Location string
	Status   string
}

// ListCycles lists non-retired cycles
func (s *InventoryService) ListCycles(ctx context.Context, q CycleQuery) ([]models.Cycle, error) {
	filter := models.CycleFilter{CycleID: q.CycleID}
	if q.Status != "" {
		status := models.CycleStatus(strings.ToLower(q.Status))
		if !status.Valid() {
			return nil, validationError("unknown cycle status: " + q.Status)
		}
		filter.Status = &status
	}
	if q.Location != "" {
		resolved, err := s.locations.Resolve(ctx, []string{q.Location})
		if err != nil {
			return nil, err
		}
		filter.Location = &resolved[0].Point
	}

	cycles, err := s.store.Cycles().List(ctx, filter)
	if err != nil {
		return nil, internalError(err)
	}
	return cycles, nil
}

// ListAvailable lists every cycle that can be booked right now
func (s *InventoryService) ListAvailable(ctx context.Context) ([]models.Cycle, error) {
	return s.ListCycles(ctx, CycleQuery{Status: string(models.CycleStatusAvailable)})
}

// FindAvailableNear returns one available cycle, optionally at a named
// station. The answer is a hint: allocation re-checks atomically.
func (s *InventoryService) FindAvailableNear(ctx context.Context, location string) (*models.Cycle, error) {
	var at *models.Point
	if location != "" {
		resolved, err := s.locations.Resolve(ctx, []string{location})
		if err != nil {
			return nil, err
		}
		at = &resolved[0].Point
	}
	cycle, err := s.store.Cycles().FindAvailable(ctx, at)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError(CodeCycleNotFound, "No available cycle found")
		}
		return nil, internalError(err)
	}
	return cycle, nil
}

// SetStatus toggles a cycle between available and maintenance. booked is
// only ever entered through allocation.
func (s *InventoryService) SetStatus(ctx context.Context, id uuid.UUID, status models.CycleStatus) (*models.Cycle, error) {
	var from models.CycleStatus
	switch status {
	case models.CycleStatusMaintenance:
		from = models.CycleStatusAvailable
	case models.CycleStatusAvailable:
		from = models.CycleStatusMaintenance
	default:
		return nil, validationError("status must be 'available' or 'maintenance'")
	}

	cycle, err := s.store.Cycles().Transition(ctx, id, from, status, nil)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, notFoundError(CodeCycleNotFound, "Cycle not found")
		case errors.Is(err, store.ErrConflict):
			return nil, newError(KindConflict, CodeInvalidCycleState, fmt.Sprintf("Cycle must be %s to become %s", from, status), err)
		}
		return nil, internalError(err)
	}

	s.logger.WithFields(logrus.Fields{"cycle_id": id, "from": from, "to": status}).Info("Cycle status changed")
	return cycle, nil
}

// Retire soft-deletes a cycle. A booked cycle cannot be retired.
func (s *InventoryService) Retire(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Cycles().Retire(ctx, id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return notFoundError(CodeCycleNotFound, "Cycle not found")
		case errors.Is(err, store.ErrConflict):
			return newError(KindConflict, CodeInvalidCycleState, "A booked cycle cannot be retired", err)
		}
		return internalError(err)
	}
	s.logger.WithField("cycle_id", id).Info("Cycle retired")
	return nil
}
