// pkg/core/route.go
package core

// Endpoint is one end of a route, identified by the entity it belongs to.
type Endpoint struct {
	ID       string `json:"id"`
	Position LatLng `json:"position"`
}

// Route is one path returned by a routing service.
type Route struct {
	Polyline       []LatLng `json:"polyline"`
	DistanceMeters float64  `json:"distanceMeters"`
	EtaSeconds     float64  `json:"etaSeconds"`
}

// RouteResult holds the routes computed for one request. Routes[0] is the
// primary route; the rest are alternates. No routes means no path was found.
type RouteResult struct {
	Routes []Route `json:"routes"`
}

// Primary returns the first route, if any.
func (r RouteResult) Primary() (Route, bool) {
	if len(r.Routes) == 0 || len(r.Routes[0].Polyline) < 2 {
		return Route{}, false
	}
	return r.Routes[0], true
}

// Alternates returns every route after the primary one.
func (r RouteResult) Alternates() []Route {
	if len(r.Routes) < 2 {
		return nil
	}
	return r.Routes[1:]
}

// RouteOverlay is the single rendered route between the user and a target.
type RouteOverlay struct {
	OriginID       string   `json:"originId"`
	DestinationID  string   `json:"destinationId"`
	Polyline       []LatLng `json:"polyline"`
	DistanceMeters float64  `json:"distanceMeters"`
	EtaSeconds     float64  `json:"etaSeconds"`
}
