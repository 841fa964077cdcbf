// Package headless is a map surface with no renderer. It keeps the overlay
// count and the last viewport so the tracker can run and be inspected
// through the HTTP API alone.
package headless

import (
	"log/slog"
	"sync"

	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/pilgrimsafe/tracker/pkg/mapapi"
)

// View is the last viewport command.
type View struct {
	Op     string
	Center core.LatLng
	Zoom   float64
	Bounds core.Bounds
}

// Map logs viewport changes at debug level and tracks live overlays.
type Map struct {
	logger *slog.Logger

	mu        sync.Mutex
	markers   int
	polylines int
	popups    int
	view      View
}

var _ mapapi.Map = (*Map)(nil)

func New(logger *slog.Logger) *Map {
	if logger == nil {
		logger = slog.Default()
	}
	return &Map{logger: logger}
}

// Counts returns how many markers, polylines and popups are live.
func (m *Map) Counts() (markers, polylines, popups int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markers, m.polylines, m.popups
}

// View returns the last viewport command.
func (m *Map) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

func (m *Map) AddMarker(pos core.LatLng, icon mapapi.Icon, _ func()) mapapi.MarkerHandle {
	m.mu.Lock()
	m.markers++
	m.mu.Unlock()
	m.logger.Debug("marker added", "kind", icon.Kind, "label", icon.Label, "lat", pos.Lat, "lng", pos.Lng)
	return &handle{release: func() { m.markers-- }, mu: &m.mu}
}

func (m *Map) AddPolyline(path []core.LatLng, style mapapi.LineStyle) mapapi.PolylineHandle {
	m.mu.Lock()
	m.polylines++
	m.mu.Unlock()
	m.logger.Debug("polyline added", "style", style, "points", len(path))
	return &handle{release: func() { m.polylines-- }, mu: &m.mu}
}

func (m *Map) OpenPopup(pos core.LatLng, content string) mapapi.PopupHandle {
	m.mu.Lock()
	m.popups++
	m.mu.Unlock()
	m.logger.Debug("popup opened", "content", content, "lat", pos.Lat, "lng", pos.Lng)
	return &handle{release: func() { m.popups-- }, mu: &m.mu}
}

func (m *Map) SetView(center core.LatLng, zoom float64) {
	m.setView(View{Op: "setView", Center: center, Zoom: zoom})
}

func (m *Map) FlyTo(center core.LatLng, zoom float64) {
	m.setView(View{Op: "flyTo", Center: center, Zoom: zoom})
}

func (m *Map) FitBounds(b core.Bounds, _ int) {
	m.setView(View{Op: "fitBounds", Bounds: b})
}

func (m *Map) PanTo(center core.LatLng) {
	m.mu.Lock()
	zoom := m.view.Zoom
	m.mu.Unlock()
	m.setView(View{Op: "panTo", Center: center, Zoom: zoom})
}

func (m *Map) setView(v View) {
	m.mu.Lock()
	m.view = v
	m.mu.Unlock()
	m.logger.Debug("viewport", "op", v.Op, "lat", v.Center.Lat, "lng", v.Center.Lng, "zoom", v.Zoom)
}

// handle serves as marker, polyline and popup. Updates are no-ops; only
// the first Remove or Close releases the overlay.
type handle struct {
	mu      *sync.Mutex
	release func()
	removed bool
}

func (h *handle) SetPosition(core.LatLng)   {}
func (h *handle) SetIcon(mapapi.Icon)       {}
func (h *handle) SetPath([]core.LatLng)     {}
func (h *handle) SetStyle(mapapi.LineStyle) {}
func (h *handle) SetContent(string)         {}
func (h *handle) Remove()                   { h.drop() }
func (h *handle) Close()                    { h.drop() }

func (h *handle) drop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.removed {
		return
	}
	h.removed = true
	h.release()
}
