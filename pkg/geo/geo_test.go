package geo

import (
	"math"
	"testing"
)

const (
	officeLat = -7.3643555
	officeLng = 108.5324731
)

func TestEvaluateSamePointIsZeroDistance(t *testing.T) {
	for _, radius := range []float64{0, 1, 500} {
		result := Evaluate(officeLat, officeLng, officeLat, officeLng, radius)
		if result.DistanceMeters != 0 {
			t.Fatalf("expected zero distance, got %v", result.DistanceMeters)
		}
		if !result.WithinZone {
			t.Fatalf("same point must be within zone for radius %v", radius)
		}
	}
}

func TestEvaluateIsSymmetric(t *testing.T) {
	aLat, aLng := officeLat, officeLng
	bLat, bLng := -7.3701, 108.5402

	ab := Evaluate(aLat, aLng, bLat, bLng, 0).DistanceMeters
	ba := Evaluate(bLat, bLng, aLat, aLng, 0).DistanceMeters

	if math.Abs(ab-ba) > 1e-6 {
		t.Fatalf("distance not symmetric: %v vs %v", ab, ba)
	}
}

func TestZoneBoundary(t *testing.T) {
	// Walk due north roughly 500 m; one degree of latitude is ~111,195 m on
	// this sphere.
	metersPerDegreeLat := earthRadiusMeters * math.Pi / 180
	sample := Point{Latitude: officeLat + 500/metersPerDegreeLat, Longitude: officeLng}

	distance := Evaluate(sample.Latitude, sample.Longitude, officeLat, officeLng, 0).DistanceMeters

	atRadius := Evaluate(sample.Latitude, sample.Longitude, officeLat, officeLng, distance)
	if !atRadius.WithinZone {
		t.Fatalf("a sample exactly at the radius must be within the zone (distance %v)", atRadius.DistanceMeters)
	}

	oneMeterShortRadius := Evaluate(sample.Latitude, sample.Longitude, officeLat, officeLng, distance-1)
	if oneMeterShortRadius.WithinZone {
		t.Fatalf("a sample one meter beyond the radius must be outside the zone")
	}
}

func TestEvaluateKnownDistance(t *testing.T) {
	// Jakarta to Surabaya is roughly 663 km.
	result := Evaluate(-6.2088, 106.8456, -7.2575, 112.7521, 0)
	if result.DistanceMeters < 650_000 || result.DistanceMeters > 680_000 {
		t.Fatalf("implausible Jakarta-Surabaya distance: %v m", result.DistanceMeters)
	}
	if result.WithinZone {
		t.Fatalf("663 km should not be within a zero-radius zone")
	}
}
