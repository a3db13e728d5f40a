package models

import (
	"time"

	"github.com/google/uuid"
)

// CycleStatus represents the availability of a bicycle
type CycleStatus string

const (
	CycleStatusAvailable   CycleStatus = "available"
	CycleStatusBooked      CycleStatus = "booked"
	CycleStatusMaintenance CycleStatus = "maintenance"
)

// Valid reports whether s is a known cycle status
func (s CycleStatus) Valid() bool {
	switch s {
	case CycleStatusAvailable, CycleStatusBooked, CycleStatusMaintenance:
		return true
	}
	return false
}

// Cycle is a physical bicycle. Status is only changed through guarded
// store transitions, never by assigning the field and saving.
type Cycle struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	CycleName       string      `json:"cycle_name" db:"cycle_name"`
	Status          CycleStatus `json:"status" db:"status"`
	CurrentLocation Point       `json:"current_location"`
	RetiredAt       *time.Time  `json:"retired_at,omitempty" db:"retired_at"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// CycleFilter narrows cycle listings
type CycleFilter struct {
	CycleID  *uuid.UUID
	Location *Point
	Status   *CycleStatus
}

// CreateCycleRequest is the admin payload for adding a cycle
type CreateCycleRequest struct {
	CycleName string `json:"cycle_name" binding:"required"`
	Location  string `json:"location" binding:"required"`
}

// UpdateCycleStatusRequest toggles maintenance
type UpdateCycleStatusRequest struct {
	Status CycleStatus `json:"status" binding:"required"`
}
