package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pilgrimsafe/tracker/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Points handed to storage are WGS84 (SRID 4326) unless noted; web mercator
// (SRID 3857) is provided for renderers and databases that want planar units.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6_371_000.0

// Haversine returns the great-circle distance in meters between a and b.
func Haversine(a, b core.LatLng) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	φ1, φ2 := rad(a.Lat), rad(b.Lat)
	Δφ := rad(b.Lat - a.Lat)
	Δλ := rad(b.Lng - a.Lng)
	h := math.Sin(Δφ/2)*math.Sin(Δφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// ParseLatLng parses a "lat,lng" string.
func ParseLatLng(coords string) (core.LatLng, error) {
	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	p := core.LatLng{Lat: lat, Lng: lng}
	if !p.Valid() {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	return p, nil
}

// PointFromLatLng builds a 4326 point (x = longitude, y = latitude).
// Non-finite coordinates yield an empty point.
func PointFromLatLng(p core.LatLng) geom.Point {
	pt, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.Lng, Y: p.Lat},
		Type: geom.DimXY,
	})
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY)
	}
	return pt
}

// Coords3857From4326 projects a WGS84 coordinate to web mercator.
func Coords3857From4326(p core.LatLng) (geom.Point, error) {
	if !p.Valid() {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(p.Lng, p.Lat, 0)
	pt, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: y},
		Type: geom.DimXY,
	})
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), fmt.Errorf("project %v: %w", p, err)
	}
	return pt, nil
}

// NormalizeHeading maps deg into [0, 360). Non-finite input yields nil.
func NormalizeHeading(deg *float64) *float64 {
	if deg == nil || math.IsNaN(*deg) || math.IsInf(*deg, 0) {
		return nil
	}
	h := math.Mod(*deg, 360)
	if h < 0 {
		h += 360
	}
	return &h
}

// Bearing returns the initial great-circle bearing from a to b in degrees,
// clockwise from north in [0, 360).
func Bearing(a, b core.LatLng) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	φ1, φ2 := rad(a.Lat), rad(b.Lat)
	Δλ := rad(b.Lng - a.Lng)
	y := math.Sin(Δλ) * math.Cos(φ2)
	x := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return *NormalizeHeading(&deg)
}

// Offset returns the point reached from p after meters along bearingDeg.
func Offset(p core.LatLng, bearingDeg, meters float64) core.LatLng {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	deg := func(r float64) float64 { return r * 180 / math.Pi }
	δ := meters / EarthRadiusMeters
	θ := rad(bearingDeg)
	φ1, λ1 := rad(p.Lat), rad(p.Lng)
	φ2 := math.Asin(math.Sin(φ1)*math.Cos(δ) + math.Cos(φ1)*math.Sin(δ)*math.Cos(θ))
	λ2 := λ1 + math.Atan2(math.Sin(θ)*math.Sin(δ)*math.Cos(φ1), math.Cos(δ)-math.Sin(φ1)*math.Sin(φ2))
	lng := math.Mod(deg(λ2)+540, 360) - 180
	return core.LatLng{Lat: deg(φ2), Lng: lng}
}
