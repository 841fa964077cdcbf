package geo

import (
	"github.com/paulmach/orb"
	"github.com/pilgrimsafe/tracker/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Lerp interpolates linearly between a and b, component-wise.
// At city scale this is close enough to great-circle interpolation.
func Lerp(a, b core.LatLng, t float64) core.LatLng {
	return core.LatLng{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lng: a.Lng + (b.Lng-a.Lng)*t,
	}
}

// BoundsOf returns the bounding box of points. ok is false for no points.
func BoundsOf(points ...core.LatLng) (b core.Bounds, ok bool) {
	if len(points) == 0 {
		return core.Bounds{}, false
	}
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.Lng, p.Lat}
	}
	bound := mp.Bound()
	return core.Bounds{
		SouthWest: core.LatLng{Lat: bound.Min.Lat(), Lng: bound.Min.Lon()},
		NorthEast: core.LatLng{Lat: bound.Max.Lat(), Lng: bound.Max.Lon()},
	}, true
}

// PathLength returns the along-path haversine length of path in meters.
func PathLength(path []core.LatLng) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += Haversine(path[i-1], path[i])
	}
	return total
}

// PathMidpoint returns the point halfway along path by distance.
func PathMidpoint(path []core.LatLng) (core.LatLng, bool) {
	switch len(path) {
	case 0:
		return core.LatLng{}, false
	case 1:
		return path[0], true
	}
	half := PathLength(path) / 2
	var walked float64
	for i := 1; i < len(path); i++ {
		seg := Haversine(path[i-1], path[i])
		if walked+seg >= half {
			if seg == 0 {
				return path[i], true
			}
			return Lerp(path[i-1], path[i], (half-walked)/seg), true
		}
		walked += seg
	}
	return path[len(path)-1], true
}

// LineStringFromPath converts a path to a 4326 LineString (x = longitude).
// Paths shorter than two points, or with non-finite points, yield an empty
// LineString.
func LineStringFromPath(path []core.LatLng) geom.LineString {
	if len(path) < 2 {
		return geom.LineString{}
	}
	coords := make([]float64, 0, len(path)*2)
	for _, p := range path {
		coords = append(coords, p.Lng, p.Lat)
	}
	ls, err := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
	if err != nil {
		return geom.LineString{}
	}
	return ls
}

// PathFromLineString is the inverse of LineStringFromPath.
func PathFromLineString(ls geom.LineString) []core.LatLng {
	seq := ls.Coordinates()
	n := seq.Length()
	if n == 0 {
		return nil
	}
	path := make([]core.LatLng, n)
	for i := 0; i < n; i++ {
		xy := seq.GetXY(i)
		path[i] = core.LatLng{Lat: xy.Y, Lng: xy.X}
	}
	return path
}
