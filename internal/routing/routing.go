// Package routing computes walking routes. Providers block; Async adapts
// one to mapapi.RoutingService by running requests off the owner loop and
// posting results back.
package routing

import (
	"context"
	"errors"

	"github.com/pilgrimsafe/tracker/pkg/core"
)

const instrumentationName = "github.com/pilgrimsafe/tracker/internal/routing"

// ErrRouting is wrapped by every provider failure other than "no route".
var ErrRouting = errors.New("routing failed")

// Provider computes routes synchronously. An empty result with a nil error
// means no path exists.
type Provider interface {
	Route(ctx context.Context, origin, destination core.LatLng) (core.RouteResult, error)
}
