// pkg/core/session.go
package core

import "time"

// Session is one tracking run of the map screen, used by track recorders.
type Session struct {
	ID        string
	StartTime time.Time
	EndTime   time.Time
	GroupName string
	Device    string
}

// EntitySample is a position sample attributed to one entity.
type EntitySample struct {
	SessionID string
	EntityID  string
	Kind      EntityKind
	Sample    LocationSample
}

// CenterHint asks the map to highlight a coordinate, e.g. from an SOS detail view.
type CenterHint struct {
	ID       string `json:"id"`
	Position LatLng `json:"position"`
	Label    string `json:"label,omitempty"`
}

// EmergencyNumber is a helpline shown alongside the helpdesk view.
type EmergencyNumber struct {
	Name   string `json:"name" yaml:"name" validate:"required"`
	Number string `json:"number" yaml:"number" validate:"required"`
}

// Duration returns how long the session ran. A session that has not ended
// is measured up to now.
func (s Session) Duration(now time.Time) time.Duration {
	end := s.EndTime
	if end.IsZero() {
		end = now
	}
	if end.Before(s.StartTime) {
		return 0
	}
	return end.Sub(s.StartTime)
}

// RouteRecord is a route overlay as it was rendered at Time.
type RouteRecord struct {
	SessionID string
	Time      time.Time
	Overlay   RouteOverlay
}

// HintRecord is a center hint as it was accepted at Time.
type HintRecord struct {
	SessionID string
	Time      time.Time
	Hint      CenterHint
}

// UploadMetadata describes an exported session file for the recordings server.
type UploadMetadata struct {
	SessionID       string
	GroupName       string
	Device          string
	SessionDuration float64 // seconds
}
