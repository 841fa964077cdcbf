package geo

import "github.com/pilgrimsafe/tracker/pkg/core"

// Nearest returns the candidate closest to origin by great-circle distance,
// with that distance in meters. On equal distances the earlier candidate wins.
func Nearest(origin core.LatLng, candidates []core.HelpCenter) (core.HelpCenter, float64, error) {
	if !origin.Valid() {
		return core.HelpCenter{}, 0, ErrInvalidCoordinates
	}
	if len(candidates) == 0 {
		return core.HelpCenter{}, 0, core.ErrNoCandidates
	}
	best := 0
	bestDist := Haversine(origin, candidates[0].Position())
	for i := 1; i < len(candidates); i++ {
		if d := Haversine(origin, candidates[i].Position()); d < bestDist {
			best, bestDist = i, d
		}
	}
	return candidates[best], bestDist, nil
}
