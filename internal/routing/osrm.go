package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"

	"github.com/pilgrimsafe/tracker/pkg/core"
)

// simplifyThreshold is the Douglas-Peucker tolerance in degrees, about one
// meter at the equator.
const simplifyThreshold = 1e-5

// OSRMConfig configures an OSRM route service client.
type OSRMConfig struct {
	BaseURL      string
	Profile      string // foot, bike, car
	Alternatives bool
	Timeout      time.Duration
}

// OSRM queries the route service of an OSRM server.
type OSRM struct {
	baseURL      string
	profile      string
	alternatives bool
	httpClient   *http.Client
}

// NewOSRM creates an OSRM client.
func NewOSRM(cfg OSRMConfig) *OSRM {
	if cfg.Profile == "" {
		cfg.Profile = "foot"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &OSRM{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		profile:      cfg.Profile,
		alternatives: cfg.Alternatives,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}
}

type osrmResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Geometry geojson.Geometry `json:"geometry"`
	Distance float64          `json:"distance"` // meters
	Duration float64          `json:"duration"` // seconds
}

// Route requests a route from origin to destination.
func (o *OSRM) Route(ctx context.Context, origin, destination core.LatLng) (core.RouteResult, error) {
	// OSRM takes lng,lat pairs
	coords := fmt.Sprintf("%f,%f;%f,%f", origin.Lng, origin.Lat, destination.Lng, destination.Lat)
	q := url.Values{}
	q.Set("overview", "full")
	q.Set("geometries", "geojson")
	q.Set("alternatives", fmt.Sprintf("%t", o.alternatives))
	u := fmt.Sprintf("%s/route/v1/%s/%s?%s", o.baseURL, o.profile, coords, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return core.RouteResult{}, fmt.Errorf("%w: create request: %w", ErrRouting, err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return core.RouteResult{}, fmt.Errorf("%w: request: %w", ErrRouting, err)
	}
	defer resp.Body.Close()

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return core.RouteResult{}, fmt.Errorf("%w: decode response (status %d): %w", ErrRouting, resp.StatusCode, err)
	}

	switch body.Code {
	case "Ok":
	case "NoRoute", "NoSegment":
		return core.RouteResult{}, nil
	default:
		return core.RouteResult{}, fmt.Errorf("%w: %s: %s", ErrRouting, body.Code, body.Message)
	}

	result := core.RouteResult{Routes: make([]core.Route, 0, len(body.Routes))}
	for _, r := range body.Routes {
		ls, ok := r.Geometry.Coordinates.(orb.LineString)
		if !ok {
			return core.RouteResult{}, fmt.Errorf("%w: unexpected geometry %T", ErrRouting, r.Geometry.Coordinates)
		}
		result.Routes = append(result.Routes, core.Route{
			Polyline:       pathFromLineString(ls),
			DistanceMeters: r.Distance,
			EtaSeconds:     r.Duration,
		})
	}
	return result, nil
}

func pathFromLineString(ls orb.LineString) []core.LatLng {
	if len(ls) > 2 {
		ls = simplify.DouglasPeucker(simplifyThreshold).Simplify(ls.Clone()).(orb.LineString)
	}
	path := make([]core.LatLng, len(ls))
	for i, p := range ls {
		path[i] = core.LatLng{Lat: p.Lat(), Lng: p.Lon()}
	}
	return path
}
