// Package maptest provides recording fakes of the map, sensor, feed and
// routing collaborators for deterministic tests.
package maptest

import (
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/pilgrimsafe/tracker/pkg/mapapi"
)

// Marker is a recorded marker handle.
type Marker struct {
	m         *Map
	ID        int
	Position  core.LatLng
	Icon      mapapi.Icon
	OnClick   func()
	Removed   bool
	Moves     int
	IconSets  int
	Positions []core.LatLng
}

func (k *Marker) SetPosition(p core.LatLng) {
	k.m.Ops++
	k.Moves++
	k.Position = p
	k.Positions = append(k.Positions, p)
}

func (k *Marker) SetIcon(icon mapapi.Icon) {
	k.m.Ops++
	k.IconSets++
	k.Icon = icon
}

func (k *Marker) Remove() {
	k.m.Ops++
	k.Removed = true
}

// Click simulates a user tap.
func (k *Marker) Click() {
	if k.OnClick != nil {
		k.OnClick()
	}
}

// Polyline is a recorded polyline handle.
type Polyline struct {
	m        *Map
	Path     []core.LatLng
	Style    mapapi.LineStyle
	Removed  bool
	PathSets int
}

func (l *Polyline) SetPath(path []core.LatLng) {
	l.m.Ops++
	l.PathSets++
	l.Path = append([]core.LatLng(nil), path...)
}

func (l *Polyline) SetStyle(style mapapi.LineStyle) {
	l.m.Ops++
	l.Style = style
}

func (l *Polyline) Remove() {
	l.m.Ops++
	l.Removed = true
}

// Popup is a recorded popup handle.
type Popup struct {
	m        *Map
	Position core.LatLng
	Content  string
	Closed   bool
}

func (p *Popup) SetPosition(pos core.LatLng) {
	p.m.Ops++
	p.Position = pos
}

func (p *Popup) SetContent(content string) {
	p.m.Ops++
	p.Content = content
}

func (p *Popup) Close() {
	p.m.Ops++
	p.Closed = true
}

// ViewCall is a recorded viewport operation.
type ViewCall struct {
	Op      string
	Center  core.LatLng
	Zoom    float64
	Bounds  core.Bounds
	Padding int
}

// Map records every call made through mapapi.Map.
type Map struct {
	Ops       int
	Markers   []*Marker
	Polylines []*Polyline
	Popups    []*Popup
	Views     []ViewCall
}

var _ mapapi.Map = (*Map)(nil)

// NewMap returns an empty recording map.
func NewMap() *Map {
	return &Map{}
}

func (m *Map) AddMarker(pos core.LatLng, icon mapapi.Icon, onClick func()) mapapi.MarkerHandle {
	m.Ops++
	k := &Marker{m: m, ID: len(m.Markers) + 1, Position: pos, Icon: icon, OnClick: onClick}
	m.Markers = append(m.Markers, k)
	return k
}

func (m *Map) AddPolyline(path []core.LatLng, style mapapi.LineStyle) mapapi.PolylineHandle {
	m.Ops++
	l := &Polyline{m: m, Path: append([]core.LatLng(nil), path...), Style: style}
	m.Polylines = append(m.Polylines, l)
	return l
}

func (m *Map) OpenPopup(pos core.LatLng, content string) mapapi.PopupHandle {
	m.Ops++
	p := &Popup{m: m, Position: pos, Content: content}
	m.Popups = append(m.Popups, p)
	return p
}

func (m *Map) SetView(center core.LatLng, zoom float64) {
	m.Ops++
	m.Views = append(m.Views, ViewCall{Op: "setView", Center: center, Zoom: zoom})
}

func (m *Map) FlyTo(center core.LatLng, zoom float64) {
	m.Ops++
	m.Views = append(m.Views, ViewCall{Op: "flyTo", Center: center, Zoom: zoom})
}

func (m *Map) FitBounds(b core.Bounds, paddingPx int) {
	m.Ops++
	m.Views = append(m.Views, ViewCall{Op: "fitBounds", Bounds: b, Padding: paddingPx})
}

func (m *Map) PanTo(center core.LatLng) {
	m.Ops++
	m.Views = append(m.Views, ViewCall{Op: "panTo", Center: center})
}

// LiveMarkers returns markers not yet removed, in creation order.
func (m *Map) LiveMarkers() []*Marker {
	var out []*Marker
	for _, k := range m.Markers {
		if !k.Removed {
			out = append(out, k)
		}
	}
	return out
}

// LiveMarkersOfKind filters LiveMarkers by icon kind.
func (m *Map) LiveMarkersOfKind(kind core.EntityKind) []*Marker {
	var out []*Marker
	for _, k := range m.LiveMarkers() {
		if k.Icon.Kind == kind {
			out = append(out, k)
		}
	}
	return out
}

// LivePolylines returns polylines not yet removed.
func (m *Map) LivePolylines() []*Polyline {
	var out []*Polyline
	for _, l := range m.Polylines {
		if !l.Removed {
			out = append(out, l)
		}
	}
	return out
}

// OpenPopups returns popups not yet closed.
func (m *Map) OpenPopups() []*Popup {
	var out []*Popup
	for _, p := range m.Popups {
		if !p.Closed {
			out = append(out, p)
		}
	}
	return out
}

// ViewsOf returns recorded viewport calls with the given op name.
func (m *Map) ViewsOf(op string) []ViewCall {
	var out []ViewCall
	for _, v := range m.Views {
		if v.Op == op {
			out = append(out, v)
		}
	}
	return out
}
