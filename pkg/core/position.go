// pkg/core/position.go
package core

import "math"

// LatLng is a WGS84 coordinate in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both components are finite and inside the WGS84 range.
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Bounds is an axis-aligned lat/lng box.
type Bounds struct {
	SouthWest LatLng `json:"southWest"`
	NorthEast LatLng `json:"northEast"`
}

// Center returns the arithmetic center of the box.
func (b Bounds) Center() LatLng {
	return LatLng{
		Lat: (b.SouthWest.Lat + b.NorthEast.Lat) / 2,
		Lng: (b.SouthWest.Lng + b.NorthEast.Lng) / 2,
	}
}

// LocationSample is a single fix from a location source. Immutable once created.
type LocationSample struct {
	Position    LatLng   `json:"position"`
	HeadingDeg  *float64 `json:"headingDeg,omitempty"` // nil when the sensor has no reliable heading
	TimestampMs int64    `json:"timestampMs"`
}

// Heading returns a pointer to a copy of deg, for building samples inline.
func Heading(deg float64) *float64 {
	return &deg
}
