// Package location decides whether a location sample satisfies the geofence
// and anti-spoof policy.
package location

import (
	"math"

	"checkin.engine/internal/core/model"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance between a and b.
// Coordinates outside ±90/±180 are a caller error and are not checked.
func DistanceMeters(a, b model.Coordinate) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := lat2 - lat1
	dLon := toRadians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	// Clamp for points that are nearly antipodal.
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// NearestZone returns the zone whose center is closest to c, with its distance.
// It returns nil when zones is empty.
func NearestZone(c model.Coordinate, zones []model.GeofenceZone) (*model.GeofenceZone, float64) {
	var best *model.GeofenceZone
	bestDistance := math.Inf(1)

	for i := range zones {
		d := DistanceMeters(c, zones[i].Center())
		if d < bestDistance {
			bestDistance = d
			best = &zones[i]
		}
	}

	if best == nil {
		return nil, 0
	}
	return best, bestDistance
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
