package validator

import (
	"errors"
	"math"
	"strings"
)

var (
	// ErrEmptyName indicates a station name that is blank after trimming
	ErrEmptyName = errors.New("location name cannot be empty")

	// ErrNameTooLong indicates a station name above MaxNameLength
	ErrNameTooLong = errors.New("location name is too long")

	// ErrInvalidLongitude indicates a longitude outside [-180, 180]
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")

	// ErrInvalidLatitude indicates a latitude outside [-90, 90]
	ErrInvalidLatitude = errors.New("latitude must be between -90 and 90")
)

// MaxNameLength bounds station names
const MaxNameLength = 100

// LocationValidator normalises station names and checks coordinates
type LocationValidator struct{}

// NewLocationValidator creates a new location validator instance
func NewLocationValidator() *LocationValidator {
	return &LocationValidator{}
}

// Normalize trims and lowercases a name so "  Main Gate " and "main gate"
// refer to the same station
func (v *LocationValidator) Normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// ValidateName returns the normalised name or an error
func (v *LocationValidator) ValidateName(name string) (string, error) {
	normalized := v.Normalize(name)
	if normalized == "" {
		return "", ErrEmptyName
	}
	if len(normalized) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return normalized, nil
}

// ValidateCoordinates checks a longitude/latitude pair
func (v *LocationValidator) ValidateCoordinates(longitude, latitude float64) error {
	if math.IsNaN(longitude) || longitude < -180 || longitude > 180 {
		return ErrInvalidLongitude
	}
	if math.IsNaN(latitude) || latitude < -90 || latitude > 90 {
		return ErrInvalidLatitude
	}
	return nil
}
