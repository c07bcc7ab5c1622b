package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineSymmetry(t *testing.T) {
	pairs := [][2]Point{
		{{Lat: 37.7749, Lng: -122.4194}, {Lat: 40.7128, Lng: -74.0060}},
		{{Lat: -33.8688, Lng: 151.2093}, {Lat: 51.5074, Lng: -0.1278}},
		{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 180}},
	}
	for _, p := range pairs {
		assert.InDelta(t, HaversineKm(p[0], p[1]), HaversineKm(p[1], p[0]), 1e-9)
	}
}

func TestHaversineZeroForSamePoint(t *testing.T) {
	p := Point{Lat: 37.7749, Lng: -122.4194}
	assert.Equal(t, 0.0, HaversineKm(p, p))
}

func TestHaversineKnownDistance(t *testing.T) {
	// San Francisco to Los Angeles is roughly 559 km.
	sf := Point{Lat: 37.7749, Lng: -122.4194}
	la := Point{Lat: 34.0522, Lng: -118.2437}
	assert.InDelta(t, 559, HaversineKm(sf, la), 5)
}

func TestValidPoint(t *testing.T) {
	assert.True(t, ValidPoint(Point{Lat: 0, Lng: 0}))
	assert.True(t, ValidPoint(Point{Lat: -90, Lng: 180}))
	assert.False(t, ValidPoint(Point{Lat: 90.1, Lng: 0}))
	assert.False(t, ValidPoint(Point{Lat: 0, Lng: -180.5}))
}

func TestCoverageAreaDegenerateSets(t *testing.T) {
	assert.Equal(t, 0.0, EstimateCoverageAreaKm2(nil))
	assert.Equal(t, 0.0, EstimateCoverageAreaKm2([]Point{{Lat: 37.7749, Lng: -122.4194}}))
}

func TestCoverageAreaBoundingBox(t *testing.T) {
	// A one-degree square is 111*111 km2 under the flat approximation.
	points := []Point{
		{Lat: 0, Lng: 0},
		{Lat: 1, Lng: 1},
		{Lat: 0.5, Lng: 0.5}, // interior point must not change the box
	}
	assert.InDelta(t, 111*111, EstimateCoverageAreaKm2(points), 1e-9)
}
