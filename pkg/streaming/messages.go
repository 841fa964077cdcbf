// Package streaming defines the JSON messages exchanged over WebSocket, both
// by the track streaming backend and by the remote map renderer.
package streaming

import (
	"encoding/json"

	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/pilgrimsafe/tracker/pkg/mapapi"
)

// Track streaming message types.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeTrackSample  = "track_sample"
	TypeRoute        = "route"
	TypeCenterHint   = "center_hint"
)

// Map renderer message types. Commands flow to the renderer, events flow back.
const (
	TypeResetScene = "reset_scene"

	TypeAddMarker         = "add_marker"
	TypeSetMarkerPosition = "set_marker_position"
	TypeSetMarkerIcon     = "set_marker_icon"
	TypeRemoveMarker      = "remove_marker"

	TypeAddPolyline      = "add_polyline"
	TypeSetPolylinePath  = "set_polyline_path"
	TypeSetPolylineStyle = "set_polyline_style"
	TypeRemovePolyline   = "remove_polyline"

	TypeOpenPopup        = "open_popup"
	TypeSetPopupPosition = "set_popup_position"
	TypeSetPopupContent  = "set_popup_content"
	TypeClosePopup       = "close_popup"

	TypeSetView   = "set_view"
	TypeFlyTo     = "fly_to"
	TypeFitBounds = "fit_bounds"
	TypePanTo     = "pan_to"

	TypeMarkerClick = "marker_click"
)

// TypeAck is the Type of every AckMessage.
const TypeAck = "ack"

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload carries the session being recorded.
type StartSessionPayload struct {
	SessionID   string `json:"sessionId"`
	GroupName   string `json:"groupName"`
	Device      string `json:"device,omitempty"`
	StartTimeMs int64  `json:"startTimeMs"`
}

// EndSessionPayload closes the session started last.
type EndSessionPayload struct {
	SessionID string `json:"sessionId"`
	EndTimeMs int64  `json:"endTimeMs"`
}

// TrackSamplePayload is one entity position.
type TrackSamplePayload struct {
	SessionID string              `json:"sessionId"`
	EntityID  string              `json:"entityId"`
	Kind      string              `json:"kind"`
	Sample    core.LocationSample `json:"sample"`
}

// RoutePayload is one rendered route.
type RoutePayload struct {
	SessionID string            `json:"sessionId"`
	TimeMs    int64             `json:"timeMs"`
	Overlay   core.RouteOverlay `json:"overlay"`
}

// CenterHintPayload is one accepted center hint.
type CenterHintPayload struct {
	SessionID string          `json:"sessionId"`
	TimeMs    int64           `json:"timeMs"`
	Hint      core.CenterHint `json:"hint"`
}

// MarkerPayload creates or updates a marker. Unused fields are omitted.
type MarkerPayload struct {
	ID       string       `json:"id"`
	Position *core.LatLng `json:"position,omitempty"`
	Icon     *mapapi.Icon `json:"icon,omitempty"`
}

// PolylinePayload creates or updates a polyline.
type PolylinePayload struct {
	ID    string           `json:"id"`
	Path  []core.LatLng    `json:"path,omitempty"`
	Style mapapi.LineStyle `json:"style,omitempty"`
}

// PopupPayload creates or updates a popup.
type PopupPayload struct {
	ID       string       `json:"id"`
	Position *core.LatLng `json:"position,omitempty"`
	Content  *string      `json:"content,omitempty"`
}

// RemovePayload removes a marker or polyline, or closes a popup.
type RemovePayload struct {
	ID string `json:"id"`
}

// ViewPayload moves the viewport. Zoom is omitted for pan_to.
type ViewPayload struct {
	Center core.LatLng `json:"center"`
	Zoom   *float64    `json:"zoom,omitempty"`
}

// FitBoundsPayload frames a bounding box.
type FitBoundsPayload struct {
	Bounds    core.Bounds `json:"bounds"`
	PaddingPx int         `json:"paddingPx"`
}

// MarkerClickPayload reports a tap on a marker by the renderer.
type MarkerClickPayload struct {
	ID string `json:"id"`
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
