package routing

import (
	"context"

	"github.com/pilgrimsafe/tracker/internal/geo"
	"github.com/pilgrimsafe/tracker/pkg/core"
)

// DefaultWalkingSpeed is an average adult walking pace in m/s.
const DefaultWalkingSpeed = 1.3

// Direct estimates a straight-line walk. Used when no route server is
// reachable, e.g. in crowded areas without coverage.
type Direct struct {
	speedMps float64
}

// NewDirect creates a Direct estimator walking at speedMps.
func NewDirect(speedMps float64) *Direct {
	if speedMps <= 0 {
		speedMps = DefaultWalkingSpeed
	}
	return &Direct{speedMps: speedMps}
}

func (d *Direct) Route(ctx context.Context, origin, destination core.LatLng) (core.RouteResult, error) {
	if err := ctx.Err(); err != nil {
		return core.RouteResult{}, err
	}
	meters := geo.Haversine(origin, destination)
	return core.RouteResult{Routes: []core.Route{{
		Polyline:       []core.LatLng{origin, destination},
		DistanceMeters: meters,
		EtaSeconds:     meters / d.speedMps,
	}}}, nil
}
