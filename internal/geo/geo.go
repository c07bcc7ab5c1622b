// Package geo holds the pure distance and coverage math used by the
// topology and stats layers.
package geo

import "math"

const earthRadiusKm = 6371

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// ValidPoint reports whether p is a well-formed coordinate pair.
func ValidPoint(p Point) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// HaversineKm returns the great-circle distance between a and b in
// kilometers.
func HaversineKm(a, b Point) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// EstimateCoverageAreaKm2 estimates the area covered by a set of points as
// their bounding box, using a flat 111 km-per-degree conversion. The
// approximation degrades near the poles and across the antimeridian; it is
// kept for compatibility with the historical stats series. Zero or one
// points cover no area.
func EstimateCoverageAreaKm2(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}

	minLat, maxLat := points[0].Lat, points[0].Lat
	minLng, maxLng := points[0].Lng, points[0].Lng
	for _, p := range points[1:] {
		minLat = math.Min(minLat, p.Lat)
		maxLat = math.Max(maxLat, p.Lat)
		minLng = math.Min(minLng, p.Lng)
		maxLng = math.Max(maxLng, p.Lng)
	}

	return (maxLat - minLat) * (maxLng - minLng) * 111 * 111
}
