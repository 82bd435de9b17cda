package geo

import (
	"context"
	"math"
	"time"
)

const earthRadiusMeters = 6371000

// Point is a WGS84 coordinate pair.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Zone is the fixed geographic circle within which a patrol submission is
// considered valid.
type Zone struct {
	Center       Point
	RadiusMeters float64
}

// Sample is one device-reported position from the geolocation provider.
type Sample struct {
	Point
	AccuracyMeters float64
	At             time.Time
}

// Result reports the evaluator's verdict for a single coordinate pair.
type Result struct {
	DistanceMeters float64
	WithinZone     bool
}

// Evaluate computes the great-circle distance between the current position
// and the zone center on a spherical Earth, and decides inside/outside. A
// sample exactly at the radius is within the zone.
func Evaluate(currentLat, currentLon, zoneLat, zoneLon, radiusMeters float64) Result {
	distance := haversine(currentLat, currentLon, zoneLat, zoneLon)
	return Result{
		DistanceMeters: distance,
		WithinZone:     distance <= radiusMeters,
	}
}

// Evaluate decides whether p falls inside the zone.
func (z Zone) Evaluate(p Point) Result {
	return Evaluate(p.Latitude, p.Longitude, z.Center.Latitude, z.Center.Longitude, z.RadiusMeters)
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// Watcher is the continuous geolocation provider boundary. Watch delivers
// samples at device-driven intervals until ctx is cancelled. A permanent
// provider failure (no permission, no hardware) is reported on the error
// channel and ends the stream.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Sample, <-chan error, error)
}
