package models

import (
	"time"

	"github.com/google/uuid"
)

// Point is a geographic coordinate pair
type Point struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Coordinates returns the point in [lng, lat] order
func (p Point) Coordinates() [2]float64 {
	return [2]float64{p.Longitude, p.Latitude}
}

// Location is a named station
type Location struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Point     Point     `json:"coordinates"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ResolvedLocation is the output of the geocoding collaborator
type ResolvedLocation struct {
	Name  string `json:"name"`
	Point Point  `json:"coordinates"`
}

// RouteEstimate is the output of the routing collaborator
type RouteEstimate struct {
	DistanceMeters  int64 `json:"distance_meters"`
	DurationSeconds int64 `json:"duration_seconds"`
}

// CreateLocationRequest is the admin payload for a new station
type CreateLocationRequest struct {
	Name      string   `json:"name" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"required"`
}

// UpdateLocationRequest moves a station identified by name
type UpdateLocationRequest struct {
	Name      string   `json:"name" binding:"required"`
	Longitude *float64 `json:"longitude,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
}

// LookupLocationRequest carries [lng, lat]
type LookupLocationRequest struct {
	Coordinates []float64 `json:"coordinates" binding:"required,len=2"`
}
