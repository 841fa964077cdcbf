// Package route draws the single route overlay between the user and the
// selected target and keeps it current as either end moves.
package route

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/pilgrimsafe/tracker/internal/geo"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/pilgrimsafe/tracker/pkg/mapapi"
)

// DefaultFitPaddingPx is the viewport padding used when fitting a new route.
const DefaultFitPaddingPx = 48

// Summary formats a route distance and ETA for the popup.
func Summary(meters, etaSeconds float64) string {
	return fmt.Sprintf("%.2f km · %d min", meters/1000, int(math.Round(etaSeconds/60)))
}

// Controller owns the route overlay: one primary polyline, any alternates
// and one popup. Responses to superseded requests are discarded.
type Controller struct {
	m          mapapi.Map
	router     mapapi.RoutingService
	logger     *slog.Logger
	paddingPx  int
	onRendered func(core.RouteOverlay)

	active      bool
	origin      core.Endpoint
	destination core.Endpoint

	gen     uint64
	cancel  func()
	lastErr error

	primary    mapapi.PolylineHandle
	alternates []mapapi.PolylineHandle
	popup      mapapi.PopupHandle
	overlay    *core.RouteOverlay
	fittedDest string
}

// Option configures a Controller.
type Option func(*Controller)

// WithFitPadding sets the padding used when fitting the viewport to a route.
func WithFitPadding(px int) Option {
	return func(c *Controller) { c.paddingPx = px }
}

// OnRendered registers a callback for every successfully drawn route.
func OnRendered(fn func(core.RouteOverlay)) Option {
	return func(c *Controller) { c.onRendered = fn }
}

// New creates a Controller.
func New(m mapapi.Map, router mapapi.RoutingService, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		m:         m,
		router:    router,
		logger:    logger,
		paddingPx: DefaultFitPaddingPx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetRoute requests a route between origin and destination. Calling it
// again with the same waypoints is a no-op, including after a failure; the
// next attempt happens when a waypoint moves or changes. A new destination
// id removes the drawn route at once; a moved endpoint keeps it until the
// new one arrives.
func (c *Controller) SetRoute(origin, destination core.Endpoint) error {
	if !origin.Position.Valid() || !destination.Position.Valid() {
		return fmt.Errorf("route %s -> %s: %w", origin.ID, destination.ID, core.ErrInvalidPosition)
	}
	if c.active && origin == c.origin && destination == c.destination {
		return nil
	}
	if c.active && destination.ID != c.destination.ID {
		c.logger.Debug("route destination changed", "from", c.destination.ID, "to", destination.ID)
		c.removeOverlay()
		c.lastErr = nil
	}

	c.active = true
	c.origin = origin
	c.destination = destination
	c.request()
	return nil
}

func (c *Controller) request() {
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	dest := c.destination
	orig := c.origin

	c.logger.Debug("requesting route", "origin", orig.ID, "destination", dest.ID, "generation", gen)
	answered := false
	cancel := c.router.ComputeRoute(orig.Position, dest.Position, func(res core.RouteResult, err error) {
		answered = true
		c.handle(gen, orig, dest, res, err)
	})
	// a synchronous service has already answered
	if !answered && gen == c.gen {
		c.cancel = cancel
	}
}

func (c *Controller) handle(gen uint64, origin, dest core.Endpoint, res core.RouteResult, err error) {
	if gen != c.gen || !c.active {
		c.logger.Debug("discarding stale route response", "generation", gen, "current", c.gen)
		return
	}
	c.cancel = nil

	primary, ok := res.Primary()
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("no route between %s and %s", origin.ID, dest.ID)
		}
		c.lastErr = fmt.Errorf("%w: %w", core.ErrRouteFailed, err)
		c.logger.Warn("route request failed", "destination", dest.ID, "error", err)
		return
	}

	c.lastErr = nil
	c.render(primary, res.Alternates())

	overlay := core.RouteOverlay{
		OriginID:       origin.ID,
		DestinationID:  dest.ID,
		Polyline:       append([]core.LatLng(nil), primary.Polyline...),
		DistanceMeters: primary.DistanceMeters,
		EtaSeconds:     primary.EtaSeconds,
	}
	c.overlay = &overlay

	if c.fittedDest != dest.ID {
		if b, ok := geo.BoundsOf(primary.Polyline...); ok {
			c.m.FitBounds(b, c.paddingPx)
		}
		c.fittedDest = dest.ID
	}

	if c.onRendered != nil {
		c.onRendered(overlay)
	}
}

func (c *Controller) render(primary core.Route, alternates []core.Route) {
	if c.primary == nil {
		c.primary = c.m.AddPolyline(primary.Polyline, mapapi.LineActive)
	} else {
		c.primary.SetPath(primary.Polyline)
	}

	for i, alt := range alternates {
		if i < len(c.alternates) {
			c.alternates[i].SetPath(alt.Polyline)
			continue
		}
		c.alternates = append(c.alternates, c.m.AddPolyline(alt.Polyline, mapapi.LineAlternate))
	}
	for _, extra := range c.alternates[min(len(alternates), len(c.alternates)):] {
		extra.Remove()
	}
	c.alternates = c.alternates[:min(len(alternates), len(c.alternates))]

	mid, _ := geo.PathMidpoint(primary.Polyline)
	content := Summary(primary.DistanceMeters, primary.EtaSeconds)
	if c.popup == nil {
		c.popup = c.m.OpenPopup(mid, content)
		return
	}
	c.popup.SetPosition(mid)
	c.popup.SetContent(content)
}

// ClearRoute removes the overlay and cancels any in-flight request. It is
// a no-op when no route is active.
func (c *Controller) ClearRoute() {
	if !c.active && c.primary == nil && c.popup == nil {
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	// responses already queued for the old generation are dropped
	c.gen++
	c.removeOverlay()

	c.active = false
	c.origin = core.Endpoint{}
	c.destination = core.Endpoint{}
	c.fittedDest = ""
	c.lastErr = nil
}

// removeOverlay takes the polylines and popup off the map.
func (c *Controller) removeOverlay() {
	if c.primary != nil {
		c.primary.Remove()
		c.primary = nil
	}
	for _, alt := range c.alternates {
		alt.Remove()
	}
	c.alternates = nil
	if c.popup != nil {
		c.popup.Close()
		c.popup = nil
	}
	c.overlay = nil
}

// Active reports whether a route is requested or drawn.
func (c *Controller) Active() bool {
	return c.active
}

// Destination returns the current destination endpoint.
func (c *Controller) Destination() (core.Endpoint, bool) {
	return c.destination, c.active
}

// Pending reports whether a request is in flight.
func (c *Controller) Pending() bool {
	return c.cancel != nil
}

// Overlay returns the last successfully drawn route.
func (c *Controller) Overlay() (core.RouteOverlay, bool) {
	if c.overlay == nil {
		return core.RouteOverlay{}, false
	}
	return *c.overlay, true
}

// Err returns the advisory error of the latest attempt, wrapping
// core.ErrRouteFailed, or nil.
func (c *Controller) Err() error {
	return c.lastErr
}
