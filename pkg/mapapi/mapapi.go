// Package mapapi defines the collaborator interfaces the tracking core drives:
// the map viewport, marker/overlay primitives, the location sensor, the
// membership feed and the routing service. Implementations decide how
// callbacks reach the owner loop; the core assumes every callback it
// receives runs on that loop.
package mapapi

import "github.com/pilgrimsafe/tracker/pkg/core"

// Icon describes how a marker is drawn. Kind, heading and status are
// encoded by the renderer (color, rotation, ring).
type Icon struct {
	Kind       core.EntityKind   `json:"kind"`
	HeadingDeg *float64          `json:"headingDeg,omitempty"`
	Status     core.MemberStatus `json:"status,omitempty"`
	Label      string            `json:"label,omitempty"`
}

// Equal reports whether two icons render identically.
func (i Icon) Equal(o Icon) bool {
	if i.Kind != o.Kind || i.Status != o.Status || i.Label != o.Label {
		return false
	}
	if (i.HeadingDeg == nil) != (o.HeadingDeg == nil) {
		return false
	}
	return i.HeadingDeg == nil || *i.HeadingDeg == *o.HeadingDeg
}

// LineStyle selects how a polyline is drawn.
type LineStyle string

const (
	LineActive    LineStyle = "active"
	LineAlternate LineStyle = "alternate"
)

// MarkerHandle is a positioned icon on the map.
type MarkerHandle interface {
	SetPosition(p core.LatLng)
	SetIcon(icon Icon)
	Remove()
}

// PolylineHandle is a drawn path on the map.
type PolylineHandle interface {
	SetPath(path []core.LatLng)
	SetStyle(style LineStyle)
	Remove()
}

// PopupHandle is an anchored text bubble on the map.
type PopupHandle interface {
	SetPosition(p core.LatLng)
	SetContent(content string)
	Close()
}

// Surface creates overlay primitives.
type Surface interface {
	AddMarker(pos core.LatLng, icon Icon, onClick func()) MarkerHandle
	AddPolyline(path []core.LatLng, style LineStyle) PolylineHandle
	OpenPopup(pos core.LatLng, content string) PopupHandle
}

// Viewport controls the visible region of the map.
type Viewport interface {
	SetView(center core.LatLng, zoom float64)
	FlyTo(center core.LatLng, zoom float64)
	FitBounds(b core.Bounds, paddingPx int)
	PanTo(center core.LatLng)
}

// Map is a full map renderer.
type Map interface {
	Surface
	Viewport
}

// LocationSensor pushes device fixes until unsubscribed.
type LocationSensor interface {
	Subscribe(onUpdate func(core.LocationSample), onError func(error)) (unsubscribe func())
}

// MembershipFeed exposes the current group and notifies on change.
// Updates for a given member ID are monotonic in TimestampMs.
type MembershipFeed interface {
	Members() []core.MemberUpdate
	Subscribe(onChange func([]core.MemberUpdate)) (unsubscribe func())
}

// RoutingService computes routes asynchronously. done is invoked at most
// once, on the owner loop; cancel stops a request that has not completed.
type RoutingService interface {
	ComputeRoute(origin, destination core.LatLng, done func(core.RouteResult, error)) (cancel func())
}
