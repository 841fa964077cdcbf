// Package stream implements mapapi.Map by sending draw commands to a remote
// web renderer over WebSocket. The renderer applies add_* commands as
// upserts and ignores removals of unknown ids; after a reconnect it gets a
// reset_scene followed by the full current scene.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/pilgrimsafe/tracker/internal/schedule"
	"github.com/pilgrimsafe/tracker/internal/wsconn"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/pilgrimsafe/tracker/pkg/mapapi"
	"github.com/pilgrimsafe/tracker/pkg/streaming"
)

// Config holds the renderer address.
type Config struct {
	URL    string
	Secret string
}

type marker struct {
	seq     uint64
	pos     core.LatLng
	icon    mapapi.Icon
	onClick func()
}

type polyline struct {
	seq   uint64
	path  []core.LatLng
	style mapapi.LineStyle
}

type popup struct {
	seq     uint64
	pos     core.LatLng
	content string
}

// Map is a mapapi.Map backed by a WebSocket renderer. Draw calls come from
// the owner loop; marker clicks are posted back to it.
type Map struct {
	cfg    Config
	conn   *wsconn.Conn
	poster schedule.Poster
	logger *slog.Logger

	mu        sync.Mutex
	seq       uint64
	markers   map[string]*marker
	polylines map[string]*polyline
	popups    map[string]*popup
	lastView  []byte // last viewport command, replayed after reconnect
}

var _ mapapi.Map = (*Map)(nil)

// New creates an unconnected Map. Clicks are posted through poster.
func New(cfg Config, poster schedule.Poster, logger *slog.Logger) *Map {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Map{
		cfg:       cfg,
		poster:    poster,
		logger:    logger,
		markers:   make(map[string]*marker),
		polylines: make(map[string]*polyline),
		popups:    make(map[string]*popup),
	}
	m.conn = wsconn.New(logger, wsconn.Options{
		Replay:    m.scene,
		OnMessage: m.handleMessage,
	})
	return m
}

// Start connects to the renderer. If it is not up yet, connecting continues
// in the background and the scene is sent once it answers.
func (m *Map) Start() {
	if err := m.conn.Dial(m.cfg.URL, m.cfg.Secret); err != nil {
		m.logger.Warn("Map renderer not reachable, retrying in background", "url", m.cfg.URL, "error", err)
		m.conn.DialInBackground(m.cfg.URL, m.cfg.Secret)
		return
	}
	// a renderer may have drawn an earlier run
	m.sendRaw(m.scene())
}

// Connected reports whether the renderer is attached.
func (m *Map) Connected() bool {
	return m.conn.Connected()
}

// Close disconnects from the renderer.
func (m *Map) Close() error {
	return m.conn.Close()
}

func (m *Map) nextID(prefix string) (string, uint64) {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq), m.seq
}

func (m *Map) send(msgType string, payload any) []byte {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		m.logger.Error("Failed to marshal map command", "type", msgType, "error", err)
		return nil
	}
	m.conn.Send(data)
	return data
}

func (m *Map) sendRaw(msgs [][]byte) {
	for _, data := range msgs {
		m.conn.Send(data)
	}
}

func (m *Map) AddMarker(pos core.LatLng, icon mapapi.Icon, onClick func()) mapapi.MarkerHandle {
	m.mu.Lock()
	id, seq := m.nextID("marker")
	m.markers[id] = &marker{seq: seq, pos: pos, icon: icon, onClick: onClick}
	m.mu.Unlock()

	m.send(streaming.TypeAddMarker, streaming.MarkerPayload{ID: id, Position: &pos, Icon: &icon})
	return &markerHandle{m: m, id: id}
}

func (m *Map) AddPolyline(path []core.LatLng, style mapapi.LineStyle) mapapi.PolylineHandle {
	path = append([]core.LatLng(nil), path...)
	m.mu.Lock()
	id, seq := m.nextID("polyline")
	m.polylines[id] = &polyline{seq: seq, path: path, style: style}
	m.mu.Unlock()

	m.send(streaming.TypeAddPolyline, streaming.PolylinePayload{ID: id, Path: path, Style: style})
	return &polylineHandle{m: m, id: id}
}

func (m *Map) OpenPopup(pos core.LatLng, content string) mapapi.PopupHandle {
	m.mu.Lock()
	id, seq := m.nextID("popup")
	m.popups[id] = &popup{seq: seq, pos: pos, content: content}
	m.mu.Unlock()

	m.send(streaming.TypeOpenPopup, streaming.PopupPayload{ID: id, Position: &pos, Content: &content})
	return &popupHandle{m: m, id: id}
}

func (m *Map) SetView(center core.LatLng, zoom float64) {
	m.view(streaming.TypeSetView, streaming.ViewPayload{Center: center, Zoom: &zoom})
}

func (m *Map) FlyTo(center core.LatLng, zoom float64) {
	m.view(streaming.TypeFlyTo, streaming.ViewPayload{Center: center, Zoom: &zoom})
}

func (m *Map) FitBounds(b core.Bounds, paddingPx int) {
	m.view(streaming.TypeFitBounds, streaming.FitBoundsPayload{Bounds: b, PaddingPx: paddingPx})
}

func (m *Map) PanTo(center core.LatLng) {
	m.view(streaming.TypePanTo, streaming.ViewPayload{Center: center})
}

func (m *Map) view(msgType string, payload any) {
	data := m.send(msgType, payload)
	if data == nil {
		return
	}
	m.mu.Lock()
	m.lastView = data
	m.mu.Unlock()
}

// scene returns the commands that redraw the current state from scratch.
func (m *Map) scene() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	type entry struct {
		seq     uint64
		msgType string
		payload any
	}
	entries := make([]entry, 0, len(m.markers)+len(m.polylines)+len(m.popups))
	for id, mk := range m.markers {
		pos, icon := mk.pos, mk.icon
		entries = append(entries, entry{mk.seq, streaming.TypeAddMarker, streaming.MarkerPayload{ID: id, Position: &pos, Icon: &icon}})
	}
	for id, pl := range m.polylines {
		entries = append(entries, entry{pl.seq, streaming.TypeAddPolyline, streaming.PolylinePayload{ID: id, Path: pl.path, Style: pl.style}})
	}
	for id, pp := range m.popups {
		pos, content := pp.pos, pp.content
		entries = append(entries, entry{pp.seq, streaming.TypeOpenPopup, streaming.PopupPayload{ID: id, Position: &pos, Content: &content}})
	}
	// creation order keeps z-order stable
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([][]byte, 0, len(entries)+2)
	reset, _ := streaming.Marshal(streaming.TypeResetScene, struct{}{})
	out = append(out, reset)
	for _, e := range entries {
		data, err := streaming.Marshal(e.msgType, e.payload)
		if err != nil {
			continue
		}
		out = append(out, data)
	}
	if m.lastView != nil {
		out = append(out, m.lastView)
	}
	return out
}

// handleMessage runs on the read goroutine.
func (m *Map) handleMessage(env streaming.Envelope) {
	if env.Type != streaming.TypeMarkerClick {
		m.logger.Debug("Ignoring renderer message", "type", env.Type)
		return
	}
	var p streaming.MarkerClickPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		m.logger.Warn("Invalid marker_click payload", "error", err)
		return
	}

	m.mu.Lock()
	mk, ok := m.markers[p.ID]
	m.mu.Unlock()
	if !ok || mk.onClick == nil {
		return
	}
	onClick := mk.onClick
	if err := m.poster.Post(func() {
		// the marker may have been removed while the click was queued
		m.mu.Lock()
		_, live := m.markers[p.ID]
		m.mu.Unlock()
		if live {
			onClick()
		}
	}); err != nil {
		m.logger.Warn("Dropped marker click", "id", p.ID, "error", err)
	}
}

type markerHandle struct {
	m  *Map
	id string
}

func (h *markerHandle) SetPosition(p core.LatLng) {
	h.m.mu.Lock()
	mk, ok := h.m.markers[h.id]
	if ok {
		mk.pos = p
	}
	h.m.mu.Unlock()
	if ok {
		h.m.send(streaming.TypeSetMarkerPosition, streaming.MarkerPayload{ID: h.id, Position: &p})
	}
}

func (h *markerHandle) SetIcon(icon mapapi.Icon) {
	h.m.mu.Lock()
	mk, ok := h.m.markers[h.id]
	if ok {
		mk.icon = icon
	}
	h.m.mu.Unlock()
	if ok {
		h.m.send(streaming.TypeSetMarkerIcon, streaming.MarkerPayload{ID: h.id, Icon: &icon})
	}
}

func (h *markerHandle) Remove() {
	h.m.mu.Lock()
	_, ok := h.m.markers[h.id]
	delete(h.m.markers, h.id)
	h.m.mu.Unlock()
	if ok {
		h.m.send(streaming.TypeRemoveMarker, streaming.RemovePayload{ID: h.id})
	}
}

type polylineHandle struct {
	m  *Map
	id string
}

func (h *polylineHandle) SetPath(path []core.LatLng) {
	path = append([]core.LatLng(nil), path...)
	h.m.mu.Lock()
	pl, ok := h.m.polylines[h.id]
	if ok {
		pl.path = path
	}
	h.m.mu.Unlock()
	if ok {
		h.m.send(streaming.TypeSetPolylinePath, streaming.PolylinePayload{ID: h.id, Path: path})
	}
}

func (h *polylineHandle) SetStyle(style mapapi.LineStyle) {
	h.m.mu.Lock()
	pl, ok := h.m.polylines[h.id]
	if ok {
		pl.style = style
	}
	h.m.mu.Unlock()
	if ok {
		h.m.send(streaming.TypeSetPolylineStyle, streaming.PolylinePayload{ID: h.id, Style: style})
	}
}

func (h *polylineHandle) Remove() {
	h.m.mu.Lock()
	_, ok := h.m.polylines[h.id]
	delete(h.m.polylines, h.id)
	h.m.mu.Unlock()
	if ok {
		h.m.send(streaming.TypeRemovePolyline, streaming.RemovePayload{ID: h.id})
	}
}

type popupHandle struct {
	m  *Map
	id string
}

func (h *popupHandle) SetPosition(p core.LatLng) {
	h.m.mu.Lock()
	pp, ok := h.m.popups[h.id]
	if ok {
		pp.pos = p
	}
	h.m.mu.Unlock()
	if ok {
		h.m.send(streaming.TypeSetPopupPosition, streaming.PopupPayload{ID: h.id, Position: &p})
	}
}

func (h *popupHandle) SetContent(content string) {
	h.m.mu.Lock()
	pp, ok := h.m.popups[h.id]
	if ok {
		pp.content = content
	}
	h.m.mu.Unlock()
	if ok {
		h.m.send(streaming.TypeSetPopupContent, streaming.PopupPayload{ID: h.id, Content: &content})
	}
}

func (h *popupHandle) Close() {
	h.m.mu.Lock()
	_, ok := h.m.popups[h.id]
	delete(h.m.popups, h.id)
	h.m.mu.Unlock()
	if ok {
		h.m.send(streaming.TypeClosePopup, streaming.RemovePayload{ID: h.id})
	}
}
