package maps

import (
	"context"
	"math"
)

const earthRadiusMeters = 6371000.0

// HaversineMeters is the great-circle distance between two points
func HaversineMeters(a, b LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// StraightLineEstimator routes at a fixed speed along the great circle. It
// is used when no provider key is configured.
type StraightLineEstimator struct {
	SpeedMetersPerSecond float64
}

// Estimate never fails
func (e StraightLineEstimator) Estimate(_ context.Context, origin, destination LatLng) (*Route, error) {
	speed := e.SpeedMetersPerSecond
	if speed <= 0 {
		speed = 4 // about 15 km/h
	}
	d := HaversineMeters(origin, destination)
	return &Route{
		DistanceMeters:  int64(math.Round(d)),
		DurationSeconds: int64(math.Ceil(d / speed)),
	}, nil
}
